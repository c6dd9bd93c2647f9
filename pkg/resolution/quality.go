package resolution

import (
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Confidence blend of source reliability and value quality
const (
	reliabilityWeight = 0.7
	qualityWeight     = 0.3
	sanityBonus       = 0.05
)

// minTitleLength is the shortest title that earns the sanity bonus
const minTitleLength = 5

var placeholderTitles = map[string]bool{
	"tbd":      true,
	"tba":      true,
	"untitled": true,
	"event":    true,
	"n/a":      true,
	"na":       true,
	"test":     true,
	"none":     true,
	"null":     true,
}

// ValueConfidence blends source reliability with value quality and adds field sanity bonuses
func ValueConfidence(field string, value any, reliability, quality float64) float64 {
	confidence := reliabilityWeight*reliability + qualityWeight*quality + SanityBonus(field, value)
	return math.Min(1, math.Max(0, confidence))
}

// SanityBonus rewards values that pass a cheap field-specific plausibility check
func SanityBonus(field string, value any) float64 {
	switch field {
	case models.FieldTitle:
		if s, ok := value.(string); ok && len([]rune(strings.TrimSpace(s))) >= minTitleLength {
			return sanityBonus
		}
	case models.FieldLatitude:
		if f, ok := models.ToFloat(value); ok && f >= -90 && f <= 90 {
			return sanityBonus
		}
	case models.FieldLongitude:
		if f, ok := models.ToFloat(value); ok && f >= -180 && f <= 180 {
			return sanityBonus
		}
	case models.FieldStartTime, models.FieldEndTime:
		if t, ok := value.(time.Time); ok && !t.IsZero() {
			return sanityBonus
		}
	}
	return 0
}

// ValueQuality scores a value in [0,1] on its own merits, independent of its source
func ValueQuality(field string, value any) float64 {
	switch v := value.(type) {
	case nil:
		return 0
	case string:
		return stringQuality(field, v)
	case time.Time:
		if v.IsZero() {
			return 0
		}
		return 0.9
	case []string:
		return arrayQuality(len(v))
	case []any:
		return arrayQuality(len(v))
	case map[string]any:
		return math.Min(1, 0.5+0.1*float64(len(v)))
	}

	if f, ok := models.ToFloat(value); ok {
		return numberQuality(field, f)
	}
	return 0.5
}

func stringQuality(field, s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	length := len([]rune(s))

	switch field {
	case models.FieldTitle:
		if placeholderTitles[strings.ToLower(s)] {
			return 0.1
		}
		if length < minTitleLength {
			return 0.4
		}
		return math.Min(1, 0.6+float64(length)/100)
	case models.FieldTicketURL:
		if validURL(s) {
			return 0.9
		}
		return 0.2
	case models.FieldDescription:
		switch {
		case length < 20:
			return 0.3
		case length < 100:
			return 0.6
		case length < 500:
			return 0.8
		default:
			return 0.9
		}
	case models.FieldCurrency:
		if length == 3 {
			return 0.9
		}
		return 0.4
	default:
		if length < 3 {
			return 0.5
		}
		return 0.8
	}
}

func numberQuality(field string, f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	switch field {
	case models.FieldLatitude:
		if f < -90 || f > 90 {
			return 0
		}
		if f == 0 {
			return 0.3
		}
		return 1
	case models.FieldLongitude:
		if f < -180 || f > 180 {
			return 0
		}
		if f == 0 {
			return 0.3
		}
		return 1
	case models.FieldPriceMin, models.FieldPriceMax:
		if f < 0 {
			return 0
		}
		return 0.9
	case models.FieldInterestCount:
		if f < 0 {
			return 0
		}
		return 0.8
	default:
		return 0.8
	}
}

func arrayQuality(n int) float64 {
	if n == 0 {
		return 0
	}
	return math.Min(1, 0.5+0.1*float64(n))
}

func validURL(s string) bool {
	u, err := url.ParseRequestURI(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Completeness scores how complete a value is relative to the largest value of its kind.
// Strings and arrays are length ratios, maps are populated-key ratios, scalars are complete.
func Completeness(value any, maxLen int) float64 {
	switch v := value.(type) {
	case nil:
		return 0
	case string:
		return lengthRatio(len([]rune(strings.TrimSpace(v))), maxLen)
	case []string:
		return lengthRatio(len(v), maxLen)
	case []any:
		return lengthRatio(len(v), maxLen)
	case map[string]any:
		if len(v) == 0 {
			return 0
		}
		populated := 0
		for _, item := range v {
			if !isEmpty(item) {
				populated++
			}
		}
		return float64(populated) / float64(len(v))
	default:
		return 1
	}
}

func lengthRatio(n, maxLen int) float64 {
	if maxLen <= 0 {
		return 0
	}
	return math.Min(1, float64(n)/float64(maxLen))
}

// valueLength is the length used to normalize completeness
func valueLength(value any) int {
	switch v := value.(type) {
	case string:
		return len([]rune(strings.TrimSpace(v)))
	case []string:
		return len(v)
	case []any:
		return len(v)
	default:
		return 0
	}
}

// stdDev returns the population standard deviation
func stdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(values)))
}
