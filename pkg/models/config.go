package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// String matching modes
const (
	StringMatchingHybrid      = "hybrid"
	StringMatchingLevenshtein = "levenshtein"
	StringMatchingJaroWinkler = "jaro_winkler"
	StringMatchingCosine      = "cosine"
)

// Location matching modes
const (
	LocationMatchingHybrid      = "hybrid"
	LocationMatchingCoordinates = "coordinates"
	LocationMatchingAddress     = "address"
)

// ErrInvalidConfig is returned when a dedupe configuration cannot be used.
var ErrInvalidConfig = errors.New("invalid dedupe configuration")

// Thresholds gate duplicate acceptance per dimension.
type Thresholds struct {
	Title    float64 `json:"title" yaml:"title"`
	Venue    float64 `json:"venue" yaml:"venue"`
	Location float64 `json:"location" yaml:"location"`
	Date     float64 `json:"date" yaml:"date"`
	Semantic float64 `json:"semantic" yaml:"semantic"`
	Overall  float64 `json:"overall" yaml:"overall"`
}

// Dimension returns the threshold for a named dimension.
func (t Thresholds) Dimension(name string) float64 {
	switch name {
	case DimensionTitle:
		return t.Title
	case DimensionVenue:
		return t.Venue
	case DimensionLocation:
		return t.Location
	case DimensionDate:
		return t.Date
	case DimensionSemantic:
		return t.Semantic
	default:
		return 1
	}
}

// Weights are the per-dimension weights of the overall score. By convention they sum to 1.
type Weights struct {
	Title    float64 `json:"title" yaml:"title"`
	Venue    float64 `json:"venue" yaml:"venue"`
	Location float64 `json:"location" yaml:"location"`
	Date     float64 `json:"date" yaml:"date"`
	Semantic float64 `json:"semantic" yaml:"semantic"`
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.Title + w.Venue + w.Location + w.Date + w.Semantic
}

// Algorithms selects the matching algorithms.
type Algorithms struct {
	StringMatching   string `json:"string_matching" yaml:"string_matching"`
	SemanticMatching bool   `json:"semantic_matching" yaml:"semantic_matching"`
	LocationMatching string `json:"location_matching" yaml:"location_matching"`
	FuzzyDate        bool   `json:"fuzzy_date" yaml:"fuzzy_date"`
}

// Performance bounds batch processing.
type Performance struct {
	BatchSize      int  `json:"batch_size" yaml:"batch_size"`
	MaxCandidates  int  `json:"max_candidates" yaml:"max_candidates"`
	EnableCaching  bool `json:"enable_caching" yaml:"enable_caching"`
	CacheSize      int  `json:"cache_size" yaml:"cache_size"`
	MaxConcurrency int  `json:"max_concurrency" yaml:"max_concurrency"`
}

// Quality controls merge acceptance and review.
type Quality struct {
	MinimumQualityScore float64 `json:"minimum_quality_score" yaml:"minimum_quality_score"`
	ForceManualReview   bool    `json:"force_manual_review" yaml:"force_manual_review"`
	AutoMergeThreshold  float64 `json:"auto_merge_threshold" yaml:"auto_merge_threshold"`
}

// DedupConfig is the full tuning surface of the deduplication engine.
type DedupConfig struct {
	Thresholds  Thresholds  `json:"thresholds" yaml:"thresholds"`
	Weights     Weights     `json:"weights" yaml:"weights"`
	Algorithms  Algorithms  `json:"algorithms" yaml:"algorithms"`
	Performance Performance `json:"performance" yaml:"performance"`
	Quality     Quality     `json:"quality" yaml:"quality"`
}

// DefaultDedupConfig returns the default engine configuration.
func DefaultDedupConfig() DedupConfig {
	return DedupConfig{
		Thresholds: Thresholds{
			Title:    0.85,
			Venue:    0.80,
			Location: 0.75,
			Date:     0.90,
			Semantic: 0.75,
			Overall:  0.80,
		},
		Weights: Weights{
			Title:    0.35,
			Venue:    0.25,
			Location: 0.20,
			Date:     0.15,
			Semantic: 0.05,
		},
		Algorithms: Algorithms{
			StringMatching:   StringMatchingHybrid,
			SemanticMatching: true,
			LocationMatching: LocationMatchingHybrid,
			FuzzyDate:        true,
		},
		Performance: Performance{
			BatchSize:      500,
			MaxCandidates:  50,
			EnableCaching:  true,
			CacheSize:      10000,
			MaxConcurrency: 8,
		},
		Quality: Quality{
			MinimumQualityScore: 0.5,
			ForceManualReview:   false,
			AutoMergeThreshold:  0.80,
		},
	}
}

// Validate checks that every value is usable.
func (c DedupConfig) Validate() error {
	var problems []string

	check01 := func(name string, v float64) {
		if math.IsNaN(v) || v < 0 || v > 1 {
			problems = append(problems, fmt.Sprintf("%s must be between 0 and 1", name))
		}
	}

	check01("thresholds.title", c.Thresholds.Title)
	check01("thresholds.venue", c.Thresholds.Venue)
	check01("thresholds.location", c.Thresholds.Location)
	check01("thresholds.date", c.Thresholds.Date)
	check01("thresholds.semantic", c.Thresholds.Semantic)
	check01("thresholds.overall", c.Thresholds.Overall)
	check01("weights.title", c.Weights.Title)
	check01("weights.venue", c.Weights.Venue)
	check01("weights.location", c.Weights.Location)
	check01("weights.date", c.Weights.Date)
	check01("weights.semantic", c.Weights.Semantic)
	check01("quality.minimum_quality_score", c.Quality.MinimumQualityScore)
	check01("quality.auto_merge_threshold", c.Quality.AutoMergeThreshold)

	if c.Weights.Sum() <= 0 {
		problems = append(problems, "weights must not all be zero")
	}

	switch c.Algorithms.StringMatching {
	case StringMatchingHybrid, StringMatchingLevenshtein, StringMatchingJaroWinkler, StringMatchingCosine:
	default:
		problems = append(problems, fmt.Sprintf("unknown algorithms.string_matching %q", c.Algorithms.StringMatching))
	}

	switch c.Algorithms.LocationMatching {
	case LocationMatchingHybrid, LocationMatchingCoordinates, LocationMatchingAddress:
	default:
		problems = append(problems, fmt.Sprintf("unknown algorithms.location_matching %q", c.Algorithms.LocationMatching))
	}

	if c.Performance.BatchSize < 1 {
		problems = append(problems, "performance.batch_size must be at least 1")
	}
	if c.Performance.MaxCandidates < 1 {
		problems = append(problems, "performance.max_candidates must be at least 1")
	}
	if c.Performance.MaxConcurrency < 1 {
		problems = append(problems, "performance.max_concurrency must be at least 1")
	}
	if c.Performance.EnableCaching && c.Performance.CacheSize < 1 {
		problems = append(problems, "performance.cache_size must be at least 1 when caching is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, problems)
	}
	return nil
}

// ApplyPatch deep-merges a partial JSON document over the config and returns the result.
// Sections and keys absent from the patch keep their current values.
func (c DedupConfig) ApplyPatch(patch json.RawMessage) (DedupConfig, error) {
	current, err := json.Marshal(c)
	if err != nil {
		return c, err
	}

	var target map[string]any
	if err := json.Unmarshal(current, &target); err != nil {
		return c, err
	}

	var source map[string]any
	if err := json.Unmarshal(patch, &source); err != nil {
		return c, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	deepMerge(target, source)

	merged, err := json.Marshal(target)
	if err != nil {
		return c, err
	}

	var out DedupConfig
	if err := json.Unmarshal(merged, &out); err != nil {
		return c, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := out.Validate(); err != nil {
		return c, err
	}
	return out, nil
}

// deepMerge recursively merges source map into target map.
// Nested maps are merged; all other values overwrite.
func deepMerge(target, source map[string]any) {
	for key, sourceVal := range source {
		if targetVal, exists := target[key]; exists {
			targetMap, targetIsMap := targetVal.(map[string]any)
			sourceMap, sourceIsMap := sourceVal.(map[string]any)

			if targetIsMap && sourceIsMap {
				deepMerge(targetMap, sourceMap)
				continue
			}
		}
		target[key] = sourceVal
	}
}
