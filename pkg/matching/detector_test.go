package matching

import (
	"context"
	"fmt"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/fingerprint"
	"github.com/Ramsey-B/clover/pkg/models"
)

func newTestDetector(t *testing.T, mutate func(*models.DedupConfig)) *Detector {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewDetector(logger, newTestScorer(t, mutate))
}

func TestDetector_CheckForDuplicates_BlueNote(t *testing.T) {
	d := newTestDetector(t, nil)
	a, b := blueNote()

	result := d.CheckForDuplicates(context.Background(), a, []*models.EventRecord{a, b})

	require.True(t, result.IsDuplicate)
	assert.Equal(t, "evt-b", result.PrimaryEventID)
	assert.Equal(t, []string{"evt-b"}, result.DuplicateIDs)
	require.Len(t, result.Matches, 1, "the target never matches itself")
	assert.Contains(t, result.Recommendation, "evt-b")

	match := result.Matches[0]
	assert.Equal(t, "evt-a", match.TargetID)
	assert.GreaterOrEqual(t, match.Confidence, 0.80)
	assert.Contains(t, match.Reasons, "Venue similarity 100%")
	assert.Empty(t, match.RiskFactors)
}

func TestDetector_CheckForDuplicates(t *testing.T) {
	a, b := blueNote()
	copyOfA := a.Clone()
	copyOfA.ID = "evt-a-copy"
	unrelated := &models.EventRecord{
		ID:        "evt-z",
		Title:     "Farmers Market",
		VenueName: "Union Square",
		StartTime: at("2025-06-14T09:00:00Z"),
	}

	tests := []struct {
		name           string
		candidates     []*models.EventRecord
		wantDuplicate  bool
		wantPrimary    string
		wantDuplicates []string
		wantRecommend  string
	}{
		{
			name:          "no candidates",
			candidates:    nil,
			wantRecommend: "No duplicates found",
		},
		{
			name:          "nothing similar",
			candidates:    []*models.EventRecord{unrelated},
			wantRecommend: "No duplicates found",
		},
		{
			name:           "exact copy ranks first",
			candidates:     []*models.EventRecord{unrelated, b, copyOfA},
			wantDuplicate:  true,
			wantPrimary:    "evt-a-copy",
			wantDuplicates: []string{"evt-a-copy", "evt-b"},
			wantRecommend:  "2 high-confidence duplicates",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDetector(t, nil)
			result := d.CheckForDuplicates(context.Background(), a, tt.candidates)

			assert.Equal(t, tt.wantDuplicate, result.IsDuplicate)
			assert.Equal(t, tt.wantPrimary, result.PrimaryEventID)
			assert.Equal(t, tt.wantDuplicates, result.DuplicateIDs)
			assert.Contains(t, result.Recommendation, tt.wantRecommend)
		})
	}

	t.Run("matches below the auto-merge threshold need review", func(t *testing.T) {
		d := newTestDetector(t, func(c *models.DedupConfig) {
			c.Quality.AutoMergeThreshold = 1
		})
		result := d.CheckForDuplicates(context.Background(), a, []*models.EventRecord{b})

		assert.False(t, result.IsDuplicate)
		assert.Len(t, result.Matches, 1)
		assert.Contains(t, result.Recommendation, "review manually")
	})
}

func TestDetector_CheckForDuplicates_RedeliveredCandidate(t *testing.T) {
	d := newTestDetector(t, nil)
	a, b := blueNote()

	first := d.CheckForDuplicates(context.Background(), a, []*models.EventRecord{b})
	require.True(t, first.IsDuplicate)

	redelivered := b.Clone()
	redelivered.Title = "Kids Pottery Workshop"
	redelivered.VenueName = "Clay Studio"
	redelivered.Latitude = ptr(40.808)
	redelivered.Longitude = ptr(-74.0)

	second := d.CheckForDuplicates(context.Background(), a, []*models.EventRecord{redelivered})

	assert.False(t, second.IsDuplicate)
	assert.Empty(t, second.DuplicateIDs)
}

func TestDetector_FindMatches_MaxCandidates(t *testing.T) {
	d := newTestDetector(t, func(c *models.DedupConfig) {
		c.Performance.MaxCandidates = 3
	})
	a, _ := blueNote()

	candidates := make([]*models.EventRecord, 0, 6)
	for i := 0; i < 6; i++ {
		c := a.Clone()
		c.ID = fmt.Sprintf("copy-%d", i)
		candidates = append(candidates, c)
	}

	matches := d.FindMatches(context.Background(), a, candidates)

	require.Len(t, matches, 3)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Confidence, matches[i].Confidence)
	}
	// stable ordering keeps input order among equal matches
	assert.Equal(t, "copy-0", matches[0].Candidate.ID)
}

func TestConfidence_Monotonic(t *testing.T) {
	thresholds := models.DefaultDedupConfig().Thresholds

	base := models.SimilarityScore{
		Title:    0.70,
		Venue:    0.70,
		Location: 0.70,
		Date:     0.70,
		Semantic: 0.70,
		Overall:  0.85,
	}
	previous := Confidence(base, thresholds)

	raise := []func(*models.SimilarityScore){
		func(s *models.SimilarityScore) { s.Title = 0.9 },
		func(s *models.SimilarityScore) { s.Venue = 0.9 },
		func(s *models.SimilarityScore) { s.Location = 0.9 },
		func(s *models.SimilarityScore) { s.Date = 0.95 },
		func(s *models.SimilarityScore) { s.Semantic = 0.9 },
	}

	score := base
	for i, fn := range raise {
		fn(&score)
		next := Confidence(score, thresholds)
		assert.GreaterOrEqual(t, next, previous, "raising dimension %d", i)
		previous = next
	}

	assert.Equal(t, 1.0, previous)
	assert.InDelta(t, 0.1, Confidence(base, thresholds), 1e-9)
}

func TestRiskFactors(t *testing.T) {
	evening := &models.EventRecord{
		ID:        "a",
		StartTime: at("2025-03-01T19:00:00Z"),
		PriceMin:  ptr(10.0),
		PriceMax:  ptr(20.0),
		Category:  "Music",
	}

	tests := []struct {
		name  string
		other *models.EventRecord
		want  []string
	}{
		{
			name:  "same evening show",
			other: &models.EventRecord{ID: "b", StartTime: at("2025-03-01T20:30:00Z"), PriceMin: ptr(15.0), Category: "music"},
			want:  []string{},
		},
		{
			name:  "matinee",
			other: &models.EventRecord{ID: "b", StartTime: at("2025-03-01T14:00:00Z")},
			want:  []string{"Same date but different time of day (evening vs afternoon)"},
		},
		{
			name:  "price gap",
			other: &models.EventRecord{ID: "b", PriceMin: ptr(10.0), PriceMax: ptr(45.0)},
			want:  []string{"Price difference of 25.00"},
		},
		{
			name:  "category",
			other: &models.EventRecord{ID: "b", Category: "Comedy"},
			want:  []string{"Different categories (music vs comedy)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RiskFactors(fingerprint.Build(evening), fingerprint.Build(tt.other))
			assert.Equal(t, tt.want, got)
		})
	}
}
