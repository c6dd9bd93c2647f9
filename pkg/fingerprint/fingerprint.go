// Package fingerprint derives compact, comparable summaries of event records
package fingerprint

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
)

// TimeBucket is a coarse time-of-day bucket
type TimeBucket string

const (
	BucketMorning   TimeBucket = "morning"    // 05:00-11:59
	BucketAfternoon TimeBucket = "afternoon"  // 12:00-16:59
	BucketEvening   TimeBucket = "evening"    // 17:00-20:59
	BucketNight     TimeBucket = "night"      // 21:00-23:59
	BucketLateNight TimeBucket = "late_night" // 00:00-04:59
	BucketUnknown   TimeBucket = "unknown"
)

// DateKeyLayout is the layout of Fingerprint.DateKey
const DateKeyLayout = "2006-01-02"

// descriptionHashLength is how many runes of the description feed the content hash
const descriptionHashLength = 100

// Fingerprint is the derived representation of an event used only for matching.
type Fingerprint struct {
	RecordID       string
	TitleTokens    []string
	Title          string
	Venue          string
	LocationKey    string
	HasCoordinates bool
	Latitude       float64
	Longitude      float64
	DateKey        string
	Date           time.Time
	TimeBucket     TimeBucket
	ContentHash    string
	SemanticHash   string
	Category       string
	HasPrice       bool
	PriceMin       float64
	PriceMax       float64
}

// HasDate reports whether the fingerprint carries a date key.
func (f *Fingerprint) HasDate() bool {
	return f.DateKey != ""
}

// Digest hashes every field that takes part in scoring, excluding RecordID.
// Two fingerprints with equal digests score identically against any other fingerprint.
func (f *Fingerprint) Digest() uint64 {
	d := xxhash.New()
	write := func(part string) {
		_, _ = d.WriteString(part)
		_, _ = d.WriteString("\x1f")
	}

	write(f.Title)
	write(strings.Join(f.TitleTokens, " "))
	write(f.Venue)
	write(f.LocationKey)
	write(strconv.FormatBool(f.HasCoordinates))
	if f.HasCoordinates {
		write(strconv.FormatFloat(f.Latitude, 'g', -1, 64))
		write(strconv.FormatFloat(f.Longitude, 'g', -1, 64))
	}
	write(f.DateKey)
	if f.HasDate() {
		write(f.Date.Format(time.RFC3339Nano))
	}
	write(string(f.TimeBucket))
	write(f.Category)
	write(f.ContentHash)
	write(f.SemanticHash)
	write(strconv.FormatBool(f.HasPrice))
	if f.HasPrice {
		write(strconv.FormatFloat(f.PriceMin, 'g', -1, 64))
		write(strconv.FormatFloat(f.PriceMax, 'g', -1, 64))
	}
	return d.Sum64()
}

// Build derives the fingerprint of a record. It never fails; absent fields yield empty values.
func Build(record *models.EventRecord) *Fingerprint {
	fp := &Fingerprint{
		RecordID:   record.ID,
		TimeBucket: BucketUnknown,
	}

	fp.TitleTokens = normalizers.Tokenize(record.Title)
	fp.Title = strings.Join(fp.TitleTokens, " ")
	fp.Venue = normalizers.NormalizeVenue(record.VenueName)
	fp.Category = normalizers.NormalizeCategory(record.Category)

	if record.HasCoordinates() {
		fp.HasCoordinates = true
		fp.Latitude = *record.Latitude
		fp.Longitude = *record.Longitude
	}
	fp.LocationKey = LocationKey(record)

	if start := bestStart(record); start != nil {
		fp.Date = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
		fp.DateKey = start.Format(DateKeyLayout)
		fp.TimeBucket = BucketForHour(start.Hour())
	}

	if record.PriceMin != nil || record.PriceMax != nil {
		fp.HasPrice = true
		switch {
		case record.PriceMin != nil && record.PriceMax != nil:
			fp.PriceMin, fp.PriceMax = *record.PriceMin, *record.PriceMax
		case record.PriceMin != nil:
			fp.PriceMin, fp.PriceMax = *record.PriceMin, *record.PriceMin
		default:
			fp.PriceMin, fp.PriceMax = *record.PriceMax, *record.PriceMax
		}
	}

	fp.ContentHash = contentHash(record, fp)
	fp.SemanticHash = semanticHash(fp, record.Tags)

	return fp
}

// LocationKey prefers coordinates rounded to roughly 100 m, then the normalized address,
// then the normalized city.
func LocationKey(record *models.EventRecord) string {
	if record.HasCoordinates() {
		return fmt.Sprintf("%.3f,%.3f", *record.Latitude, *record.Longitude)
	}
	if addr := normalizers.NormalizeAddress(record.Address); addr != "" {
		return addr
	}
	return normalizers.NormalizeCity(record.City)
}

// BucketForHour maps a local hour to its time bucket
func BucketForHour(hour int) TimeBucket {
	switch {
	case hour >= 5 && hour < 12:
		return BucketMorning
	case hour >= 12 && hour < 17:
		return BucketAfternoon
	case hour >= 17 && hour < 21:
		return BucketEvening
	case hour >= 21 && hour < 24:
		return BucketNight
	case hour >= 0 && hour < 5:
		return BucketLateNight
	default:
		return BucketUnknown
	}
}

func bestStart(record *models.EventRecord) *time.Time {
	if record.StartTime != nil && !record.StartTime.IsZero() {
		return record.StartTime
	}
	if record.EndTime != nil && !record.EndTime.IsZero() {
		return record.EndTime
	}
	return nil
}

// contentHash is a fast equality check, not a trust signal.
func contentHash(record *models.EventRecord, fp *Fingerprint) string {
	desc := []rune(strings.ToLower(strings.TrimSpace(record.Description)))
	if len(desc) > descriptionHashLength {
		desc = desc[:descriptionHashLength]
	}

	start := ""
	if record.StartTime != nil {
		start = record.StartTime.UTC().Format(time.RFC3339)
	}

	d := xxhash.New()
	for _, part := range []string{fp.Title, fp.Venue, string(desc), start} {
		_, _ = d.WriteString(part)
		_, _ = d.WriteString("|")
	}
	return strconv.FormatUint(d.Sum64(), 16)
}

// semanticHash is the sorted unique token set of title, category and tags.
func semanticHash(fp *Fingerprint, tags []string) string {
	set := make(map[string]struct{}, len(fp.TitleTokens)+len(tags)+1)
	for _, t := range fp.TitleTokens {
		set[t] = struct{}{}
	}
	if fp.Category != "" {
		set[fp.Category] = struct{}{}
	}
	for _, tag := range tags {
		for _, t := range normalizers.Tokenize(tag) {
			set[t] = struct{}{}
		}
	}

	tokens := make([]string, 0, len(set))
	for t := range set {
		tokens = append(tokens, t)
	}
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
