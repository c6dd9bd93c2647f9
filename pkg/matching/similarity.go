package matching

import (
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Ramsey-B/clover/pkg/fingerprint"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
)

// Title scoring
const (
	// sharedTokenBonus is the bonus for a title whose tokens are all shared
	sharedTokenBonus = 0.1
)

// Semantic scoring weights
const (
	semanticCategoryWeight = 0.3
	semanticHashWeight     = 0.4
	semanticCosineWeight   = 0.3
)

// SimilarityScorer computes multi-dimensional similarity between fingerprints.
// Scores are pure functions of the two fingerprints and the current configuration;
// the optional pairwise cache is purged whenever the configuration changes.
type SimilarityScorer struct {
	scorer *Scorer

	mu     sync.RWMutex
	config models.DedupConfig
	cache  *lru.Cache[string, models.SimilarityScore]

	hits   atomic.Int64
	misses atomic.Int64
}

// CacheStats reports pairwise cache usage
type CacheStats struct {
	Enabled bool  `json:"enabled"`
	Size    int   `json:"size"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// NewSimilarityScorer creates a scorer for the given configuration
func NewSimilarityScorer(config models.DedupConfig) (*SimilarityScorer, error) {
	s := &SimilarityScorer{scorer: NewScorer()}
	if err := s.SetConfig(config); err != nil {
		return nil, err
	}
	return s, nil
}

// SetConfig replaces the configuration and invalidates the pairwise cache
func (s *SimilarityScorer) SetConfig(config models.DedupConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}

	var cache *lru.Cache[string, models.SimilarityScore]
	if config.Performance.EnableCaching {
		c, err := lru.New[string, models.SimilarityScore](config.Performance.CacheSize)
		if err != nil {
			return err
		}
		cache = c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = config
	s.cache = cache
	return nil
}

// Config returns the configuration in use
func (s *SimilarityScorer) Config() models.DedupConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// ClearCache drops every cached pairwise score
func (s *SimilarityScorer) ClearCache() {
	s.mu.RLock()
	cache := s.cache
	s.mu.RUnlock()
	if cache != nil {
		cache.Purge()
	}
	s.hits.Store(0)
	s.misses.Store(0)
}

// CacheStats returns the cache usage counters
func (s *SimilarityScorer) CacheStats() CacheStats {
	s.mu.RLock()
	cache := s.cache
	s.mu.RUnlock()

	stats := CacheStats{
		Hits:   s.hits.Load(),
		Misses: s.misses.Load(),
	}
	if cache != nil {
		stats.Enabled = true
		stats.Size = cache.Len()
	}
	return stats
}

// Score compares two fingerprints. Score(a, b) always equals Score(b, a).
// Cached scores are keyed on each side's record id and content digest, so a record
// that comes back with changed content is scored again.
func (s *SimilarityScorer) Score(a, b *fingerprint.Fingerprint) models.SimilarityScore {
	s.mu.RLock()
	config := s.config
	cache := s.cache
	s.mu.RUnlock()

	digestA, digestB := a.Digest(), b.Digest()

	key := ""
	if cache != nil && a.RecordID != "" && b.RecordID != "" {
		key = pairKey(sideKey(a.RecordID, digestA), sideKey(b.RecordID, digestB))
		if score, ok := cache.Get(key); ok {
			s.hits.Add(1)
			metrics.RecordCacheLookup(true)
			return score
		}
		s.misses.Add(1)
		metrics.RecordCacheLookup(false)
	}

	var score models.SimilarityScore
	if a == b || (a.RecordID == b.RecordID && digestA == digestB) {
		score = selfScore(config)
	} else {
		score = s.compute(config, a, b)
	}
	metrics.RecordComparison()

	if key != "" {
		cache.Add(key, score)
	}
	return score
}

// selfScore is the score of a fingerprint against itself
func selfScore(config models.DedupConfig) models.SimilarityScore {
	score := models.SimilarityScore{
		Title:    1,
		Venue:    1,
		Date:     1,
		Location: 1,
	}
	if config.Algorithms.SemanticMatching {
		score.Semantic = 1
	}
	w := config.Weights
	score.Overall = clamp01(w.Title + w.Venue + w.Location + w.Date + w.Semantic*score.Semantic)
	return score
}

func (s *SimilarityScorer) compute(config models.DedupConfig, a, b *fingerprint.Fingerprint) models.SimilarityScore {
	score := models.SimilarityScore{
		Title:    s.titleScore(config, a, b),
		Venue:    s.venueScore(config, a, b),
		Date:     s.dateScore(config, a, b),
		Location: s.locationScore(config, a, b),
		Semantic: s.semanticScore(config, a, b),
	}

	w := config.Weights
	overall := w.Title*score.Title +
		w.Venue*score.Venue +
		w.Location*score.Location +
		w.Date*score.Date +
		w.Semantic*score.Semantic
	score.Overall = clamp01(overall)

	return score
}

func (s *SimilarityScorer) titleScore(config models.DedupConfig, a, b *fingerprint.Fingerprint) float64 {
	if a.Title == "" || b.Title == "" {
		return 0
	}
	if a.Title == b.Title {
		return 1
	}
	base := s.scorer.StringSimilarity(config.Algorithms.StringMatching, a.Title, b.Title)
	bonus := sharedTokenBonus * s.scorer.SharedTokenFraction(a.TitleTokens, b.TitleTokens)
	return math.Min(1, base+bonus)
}

func (s *SimilarityScorer) venueScore(config models.DedupConfig, a, b *fingerprint.Fingerprint) float64 {
	if a.Venue == "" || b.Venue == "" {
		return 0
	}
	if a.Venue == b.Venue {
		return 1
	}
	return clamp01(s.scorer.StringSimilarity(config.Algorithms.StringMatching, a.Venue, b.Venue))
}

func (s *SimilarityScorer) dateScore(config models.DedupConfig, a, b *fingerprint.Fingerprint) float64 {
	if !a.HasDate() || !b.HasDate() {
		return 0
	}
	if a.DateKey == b.DateKey {
		return 1
	}
	if !config.Algorithms.FuzzyDate {
		return 0
	}

	days := dayGap(a, b)
	switch {
	case days <= 1:
		if a.TimeBucket == b.TimeBucket {
			return 0.9
		}
		return 0.7
	case days <= 7:
		return 0.3
	default:
		return 0
	}
}

func (s *SimilarityScorer) locationScore(config models.DedupConfig, a, b *fingerprint.Fingerprint) float64 {
	if a.LocationKey != "" && a.LocationKey == b.LocationKey {
		return 1
	}

	mode := config.Algorithms.LocationMatching
	if a.HasCoordinates && b.HasCoordinates && mode != models.LocationMatchingAddress {
		meters := s.scorer.HaversineMeters(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
		return s.scorer.DistanceScore(meters)
	}

	if mode == models.LocationMatchingCoordinates {
		return 0
	}
	if a.LocationKey == "" || b.LocationKey == "" {
		return 0
	}
	return clamp01(s.scorer.Hybrid(a.LocationKey, b.LocationKey))
}

func (s *SimilarityScorer) semanticScore(config models.DedupConfig, a, b *fingerprint.Fingerprint) float64 {
	if !config.Algorithms.SemanticMatching {
		return 0
	}

	score := 0.0
	if a.Category != "" && a.Category == b.Category {
		score += semanticCategoryWeight
	}
	if a.ContentHash == b.ContentHash {
		score += semanticHashWeight
	}
	score += semanticCosineWeight * s.scorer.Cosine(a.SemanticHash, b.SemanticHash)
	return clamp01(score)
}

// dayGap returns the absolute number of calendar days between two dated fingerprints
func dayGap(a, b *fingerprint.Fingerprint) int {
	da := time.Date(a.Date.Year(), a.Date.Month(), a.Date.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Date.Year(), b.Date.Month(), b.Date.Day(), 0, 0, 0, 0, time.UTC)
	hours := da.Sub(db).Hours()
	if hours < 0 {
		hours = -hours
	}
	return int(math.Round(hours / 24))
}

func sideKey(id string, digest uint64) string {
	return id + "#" + strconv.FormatUint(digest, 16)
}

func pairKey(a, b string) string {
	a, b = ordered(a, b)
	return a + "|" + b
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
