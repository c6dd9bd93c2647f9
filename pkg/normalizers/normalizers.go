// Package normalizers provides text normalization used to build event fingerprints
package normalizers

import (
	"regexp"
	"strings"
	"unicode"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("remove_punctuation", RemovePunctuation)
	Register("collapse_whitespace", CollapseWhitespace)
	Register("ntitle", NormalizeTitle)
	Register("nvenue", NormalizeVenue)
	Register("naddress", NormalizeAddress)
	Register("ncity", NormalizeCity)
	Register("ncategory", NormalizeCategory)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// MinTokenLength is the shortest token kept by Tokenize.
const MinTokenLength = 3

// venueStopwords are generic venue nouns that carry no identity
var venueStopwords = map[string]bool{
	"the":        true,
	"hall":       true,
	"theatre":    true,
	"theater":    true,
	"club":       true,
	"venue":      true,
	"center":     true,
	"centre":     true,
	"arena":      true,
	"bar":        true,
	"lounge":     true,
	"room":       true,
	"stadium":    true,
	"auditorium": true,
	"pavilion":   true,
	"ballroom":   true,
}

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// RemovePunctuation replaces every character that is not a letter, digit or space with a space
func RemovePunctuation(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			result.WriteRune(r)
		} else {
			result.WriteRune(' ')
		}
	}
	return result.String()
}

var spaceRe = regexp.MustCompile(`\s+`)

// CollapseWhitespace replaces runs of whitespace with a single space
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// Tokenize lowercases, strips punctuation and splits on whitespace.
// Tokens shorter than MinTokenLength are dropped.
func Tokenize(s string) []string {
	fields := strings.Fields(RemovePunctuation(strings.ToLower(s)))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < MinTokenLength {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// NormalizeTitle returns the title tokens joined by single spaces
func NormalizeTitle(s string) string {
	return strings.Join(Tokenize(s), " ")
}

// VenueTokens tokenizes a venue name and removes generic venue nouns
func VenueTokens(s string) []string {
	tokens := Tokenize(s)
	out := tokens[:0]
	for _, t := range tokens {
		if venueStopwords[t] {
			continue
		}
		out = append(out, t)
	}
	return out
}

// NormalizeVenue returns the identifying part of a venue name
func NormalizeVenue(s string) string {
	return strings.Join(VenueTokens(s), " ")
}

// addressReplacements maps long address words to their abbreviations
var addressReplacements = map[string]string{
	"street":    "st",
	"avenue":    "ave",
	"boulevard": "blvd",
	"drive":     "dr",
	"road":      "rd",
	"lane":      "ln",
	"court":     "ct",
	"circle":    "cir",
	"place":     "pl",
	"square":    "sq",
	"apartment": "apt",
	"suite":     "ste",
	"north":     "n",
	"south":     "s",
	"east":      "e",
	"west":      "w",
}

// NormalizeAddress lowercases an address, strips punctuation and abbreviates street words
func NormalizeAddress(s string) string {
	words := strings.Fields(RemovePunctuation(strings.ToLower(s)))
	for i, w := range words {
		if abbr, ok := addressReplacements[w]; ok {
			words[i] = abbr
		}
	}
	return strings.Join(words, " ")
}

// NormalizeCity lowercases a city name and collapses whitespace
func NormalizeCity(s string) string {
	return CollapseWhitespace(RemovePunctuation(strings.ToLower(s)))
}

// NormalizeCategory lowercases a category and joins its words with underscores
func NormalizeCategory(s string) string {
	return strings.Join(strings.Fields(RemovePunctuation(strings.ToLower(s))), "_")
}
