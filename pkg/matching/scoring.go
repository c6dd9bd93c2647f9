package matching

import (
	"math"
	"strings"
)

// Hybrid blend weights
const (
	hybridLevenshteinWeight = 0.4
	hybridJaroWinklerWeight = 0.4
	hybridCosineWeight      = 0.2
)

// earthRadiusMeters is the mean Earth radius used by Haversine
const earthRadiusMeters = 6371000.0

// Scorer provides string and geographic comparison algorithms.
// Every method is symmetric in its two arguments.
type Scorer struct{}

// NewScorer creates a new Scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// JaroWinkler calculates the Jaro-Winkler similarity between two strings
// Returns a value between 0.0 (no similarity) and 1.0 (exact match)
func (s *Scorer) JaroWinkler(a, b string) float64 {
	if a == b {
		return 1.0
	}
	a, b = ordered(a, b)

	jaro := s.Jaro(a, b)

	ra, rb := []rune(a), []rune(b)

	// Winkler modification: boost for common prefix of up to 4 characters
	prefixLen := 0
	maxPrefix := 4
	for i := 0; i < len(ra) && i < len(rb) && i < maxPrefix; i++ {
		if ra[i] != rb[i] {
			break
		}
		prefixLen++
	}

	scalingFactor := 0.1
	return jaro + float64(prefixLen)*scalingFactor*(1.0-jaro)
}

// Jaro calculates the Jaro similarity between two strings
func (s *Scorer) Jaro(a, b string) float64 {
	if a == b {
		return 1.0
	}
	a, b = ordered(a, b)

	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0.0
	}

	// Maximum distance for character matching
	matchDist := max(len(ra), len(rb))/2 - 1
	if matchDist < 0 {
		matchDist = 0
	}

	aMatches := make([]bool, len(ra))
	bMatches := make([]bool, len(rb))

	matches := 0
	transpositions := 0

	for i := 0; i < len(ra); i++ {
		start := max(0, i-matchDist)
		end := min(len(rb), i+matchDist+1)

		for j := start; j < end; j++ {
			if bMatches[j] || ra[i] != rb[j] {
				continue
			}
			aMatches[i] = true
			bMatches[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0.0
	}

	k := 0
	for i := 0; i < len(ra); i++ {
		if !aMatches[i] {
			continue
		}
		for !bMatches[k] {
			k++
		}
		if ra[i] != rb[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	t := float64(transpositions) / 2

	return (m/float64(len(ra)) + m/float64(len(rb)) + (m-t)/m) / 3
}

// Levenshtein returns the normalized edit similarity between 0.0 and 1.0
func (s *Scorer) Levenshtein(a, b string) float64 {
	maxLen := max(len([]rune(a)), len([]rune(b)))
	if maxLen == 0 {
		return 1.0
	}
	distance := s.LevenshteinDistance(a, b)
	return 1.0 - float64(distance)/float64(maxLen)
}

// LevenshteinDistance calculates the edit distance between two strings
func (s *Scorer) LevenshteinDistance(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	// Two rows for dynamic programming
	row := make([]int, len(rb)+1)
	prevRow := make([]int, len(rb)+1)

	for j := 0; j <= len(rb); j++ {
		prevRow[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		row[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 0
			if ra[i-1] != rb[j-1] {
				cost = 1
			}
			row[j] = min(min(row[j-1]+1, prevRow[j]+1), prevRow[j-1]+cost)
		}
		row, prevRow = prevRow, row
	}

	return prevRow[len(rb)]
}

// Cosine computes the cosine similarity of the whitespace token sets of two strings
func (s *Scorer) Cosine(a, b string) float64 {
	return s.TokenCosine(strings.Fields(a), strings.Fields(b))
}

// TokenCosine computes the cosine similarity of two token sets
func (s *Scorer) TokenCosine(a, b []string) float64 {
	setA := toSet(a)
	setB := toSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0.0
	}

	shared := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			shared++
		}
	}

	return float64(shared) / math.Sqrt(float64(len(setA))*float64(len(setB)))
}

// SharedTokenFraction returns the share of the smaller token set that also appears in the other set
func (s *Scorer) SharedTokenFraction(a, b []string) float64 {
	setA := toSet(a)
	setB := toSet(b)
	smaller := min(len(setA), len(setB))
	if smaller == 0 {
		return 0.0
	}

	shared := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			shared++
		}
	}
	return float64(shared) / float64(smaller)
}

// Hybrid blends Levenshtein, Jaro-Winkler and token cosine similarity
func (s *Scorer) Hybrid(a, b string) float64 {
	if a == b {
		return 1.0
	}
	return hybridLevenshteinWeight*s.Levenshtein(a, b) +
		hybridJaroWinklerWeight*s.JaroWinkler(a, b) +
		hybridCosineWeight*s.Cosine(a, b)
}

// StringSimilarity compares two strings with the named algorithm, defaulting to Hybrid
func (s *Scorer) StringSimilarity(mode, a, b string) float64 {
	switch mode {
	case "levenshtein":
		return s.Levenshtein(a, b)
	case "jaro_winkler":
		return s.JaroWinkler(a, b)
	case "cosine":
		return s.Cosine(a, b)
	default:
		return s.Hybrid(a, b)
	}
}

// HaversineMeters returns the great-circle distance between two coordinates in meters
func (s *Scorer) HaversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)

	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// DistanceScore maps a distance to a similarity score using fixed bands
func (s *Scorer) DistanceScore(meters float64) float64 {
	switch {
	case meters <= 100:
		return 1.0
	case meters <= 500:
		return 0.8
	case meters <= 1000:
		return 0.6
	case meters <= 5000:
		return 0.3
	default:
		return 0.0
	}
}

// ordered returns the pair in a fixed order so asymmetric scans stay symmetric
func ordered(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

func toSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}
