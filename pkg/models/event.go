package models

import (
	"fmt"
	"time"
)

// Field names used by fingerprinting, conflict rules and merge history.
const (
	FieldTitle         = "title"
	FieldDescription   = "description"
	FieldVenueName     = "venue_name"
	FieldAddress       = "address"
	FieldCity          = "city"
	FieldLatitude      = "latitude"
	FieldLongitude     = "longitude"
	FieldStartTime     = "start_time"
	FieldEndTime       = "end_time"
	FieldPriceMin      = "price_min"
	FieldPriceMax      = "price_max"
	FieldCurrency      = "currency"
	FieldCategory      = "category"
	FieldTags          = "tags"
	FieldExternalID    = "external_id"
	FieldImageURLs     = "image_urls"
	FieldTicketURL     = "ticket_url"
	FieldInterestCount = "interest_count"
	FieldMetadata      = "metadata"
)

// MergeableFields lists every field the merge planner resolves, in resolution order.
var MergeableFields = []string{
	FieldTitle,
	FieldDescription,
	FieldVenueName,
	FieldAddress,
	FieldCity,
	FieldLatitude,
	FieldLongitude,
	FieldStartTime,
	FieldEndTime,
	FieldPriceMin,
	FieldPriceMax,
	FieldCurrency,
	FieldCategory,
	FieldTags,
	FieldExternalID,
	FieldImageURLs,
	FieldTicketURL,
	FieldInterestCount,
	FieldMetadata,
}

// EventRecord is a scraped event as delivered by the ingestion pipeline.
// The dedupe engine only reads records and produces new merged copies.
type EventRecord struct {
	ID            string         `json:"id" yaml:"id"`
	Title         string         `json:"title" yaml:"title"`
	Description   string         `json:"description,omitempty" yaml:"description,omitempty"`
	VenueName     string         `json:"venue_name,omitempty" yaml:"venue_name,omitempty"`
	Address       string         `json:"address,omitempty" yaml:"address,omitempty"`
	City          string         `json:"city,omitempty" yaml:"city,omitempty"`
	Latitude      *float64       `json:"latitude,omitempty" yaml:"latitude,omitempty"`
	Longitude     *float64       `json:"longitude,omitempty" yaml:"longitude,omitempty"`
	StartTime     *time.Time     `json:"start_time,omitempty" yaml:"start_time,omitempty"`
	EndTime       *time.Time     `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	PriceMin      *float64       `json:"price_min,omitempty" yaml:"price_min,omitempty"`
	PriceMax      *float64       `json:"price_max,omitempty" yaml:"price_max,omitempty"`
	Currency      string         `json:"currency,omitempty" yaml:"currency,omitempty"`
	Category      string         `json:"category,omitempty" yaml:"category,omitempty"`
	Tags          []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
	ExternalID    string         `json:"external_id,omitempty" yaml:"external_id,omitempty"`
	SourceName    string         `json:"source_name,omitempty" yaml:"source_name,omitempty"`
	ImageURLs     []string       `json:"image_urls,omitempty" yaml:"image_urls,omitempty"`
	TicketURL     string         `json:"ticket_url,omitempty" yaml:"ticket_url,omitempty"`
	InterestCount *int           `json:"interest_count,omitempty" yaml:"interest_count,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	UpdatedAt     time.Time      `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// HasCoordinates reports whether both latitude and longitude are present.
func (e *EventRecord) HasCoordinates() bool {
	return e.Latitude != nil && e.Longitude != nil
}

// Fields returns the mergeable fields of the record keyed by field name.
// Absent optional fields map to nil.
func (e *EventRecord) Fields() map[string]any {
	fields := make(map[string]any, len(MergeableFields))
	for _, name := range MergeableFields {
		fields[name] = e.Field(name)
	}
	return fields
}

// Field returns a single field value, or nil when the field is absent.
func (e *EventRecord) Field(name string) any {
	switch name {
	case FieldTitle:
		return nilIfEmpty(e.Title)
	case FieldDescription:
		return nilIfEmpty(e.Description)
	case FieldVenueName:
		return nilIfEmpty(e.VenueName)
	case FieldAddress:
		return nilIfEmpty(e.Address)
	case FieldCity:
		return nilIfEmpty(e.City)
	case FieldLatitude:
		return derefFloat(e.Latitude)
	case FieldLongitude:
		return derefFloat(e.Longitude)
	case FieldStartTime:
		return derefTime(e.StartTime)
	case FieldEndTime:
		return derefTime(e.EndTime)
	case FieldPriceMin:
		return derefFloat(e.PriceMin)
	case FieldPriceMax:
		return derefFloat(e.PriceMax)
	case FieldCurrency:
		return nilIfEmpty(e.Currency)
	case FieldCategory:
		return nilIfEmpty(e.Category)
	case FieldTags:
		if len(e.Tags) == 0 {
			return nil
		}
		return append([]string(nil), e.Tags...)
	case FieldExternalID:
		return nilIfEmpty(e.ExternalID)
	case FieldImageURLs:
		if len(e.ImageURLs) == 0 {
			return nil
		}
		return append([]string(nil), e.ImageURLs...)
	case FieldTicketURL:
		return nilIfEmpty(e.TicketURL)
	case FieldInterestCount:
		if e.InterestCount == nil {
			return nil
		}
		return *e.InterestCount
	case FieldMetadata:
		if len(e.Metadata) == 0 {
			return nil
		}
		return copyMap(e.Metadata)
	default:
		return nil
	}
}

// Clone returns a deep copy of the record.
func (e *EventRecord) Clone() *EventRecord {
	if e == nil {
		return nil
	}
	c := *e
	c.Latitude = cloneFloat(e.Latitude)
	c.Longitude = cloneFloat(e.Longitude)
	c.PriceMin = cloneFloat(e.PriceMin)
	c.PriceMax = cloneFloat(e.PriceMax)
	c.StartTime = cloneTime(e.StartTime)
	c.EndTime = cloneTime(e.EndTime)
	if e.InterestCount != nil {
		n := *e.InterestCount
		c.InterestCount = &n
	}
	if e.Tags != nil {
		c.Tags = append([]string(nil), e.Tags...)
	}
	if e.ImageURLs != nil {
		c.ImageURLs = append([]string(nil), e.ImageURLs...)
	}
	if e.Metadata != nil {
		c.Metadata = copyMap(e.Metadata)
	}
	return &c
}

// WithField returns a copy of the record with one field replaced.
// A nil value clears the field. Values of the wrong type are rejected.
func (e *EventRecord) WithField(name string, value any) (*EventRecord, error) {
	c := e.Clone()
	if err := c.setField(name, value); err != nil {
		return nil, err
	}
	return c, nil
}

func (e *EventRecord) setField(name string, value any) error {
	switch name {
	case FieldTitle:
		return setString(&e.Title, name, value)
	case FieldDescription:
		return setString(&e.Description, name, value)
	case FieldVenueName:
		return setString(&e.VenueName, name, value)
	case FieldAddress:
		return setString(&e.Address, name, value)
	case FieldCity:
		return setString(&e.City, name, value)
	case FieldCurrency:
		return setString(&e.Currency, name, value)
	case FieldCategory:
		return setString(&e.Category, name, value)
	case FieldExternalID:
		return setString(&e.ExternalID, name, value)
	case FieldTicketURL:
		return setString(&e.TicketURL, name, value)
	case FieldLatitude:
		return setFloat(&e.Latitude, name, value)
	case FieldLongitude:
		return setFloat(&e.Longitude, name, value)
	case FieldPriceMin:
		return setFloat(&e.PriceMin, name, value)
	case FieldPriceMax:
		return setFloat(&e.PriceMax, name, value)
	case FieldStartTime:
		return setTime(&e.StartTime, name, value)
	case FieldEndTime:
		return setTime(&e.EndTime, name, value)
	case FieldTags:
		return setStrings(&e.Tags, name, value)
	case FieldImageURLs:
		return setStrings(&e.ImageURLs, name, value)
	case FieldInterestCount:
		if value == nil {
			e.InterestCount = nil
			return nil
		}
		n, ok := ToFloat(value)
		if !ok {
			return fieldTypeError(name, value)
		}
		count := int(n)
		e.InterestCount = &count
		return nil
	case FieldMetadata:
		if value == nil {
			e.Metadata = nil
			return nil
		}
		m, ok := value.(map[string]any)
		if !ok {
			return fieldTypeError(name, value)
		}
		e.Metadata = copyMap(m)
		return nil
	default:
		return fmt.Errorf("unknown field %q", name)
	}
}

// ToFloat converts the numeric kinds that appear in event fields to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}

func setString(dst *string, name string, value any) error {
	if value == nil {
		*dst = ""
		return nil
	}
	s, ok := value.(string)
	if !ok {
		return fieldTypeError(name, value)
	}
	*dst = s
	return nil
}

func setFloat(dst **float64, name string, value any) error {
	if value == nil {
		*dst = nil
		return nil
	}
	f, ok := ToFloat(value)
	if !ok {
		return fieldTypeError(name, value)
	}
	*dst = &f
	return nil
}

func setTime(dst **time.Time, name string, value any) error {
	switch t := value.(type) {
	case nil:
		*dst = nil
	case time.Time:
		*dst = &t
	case *time.Time:
		*dst = cloneTime(t)
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		*dst = &parsed
	default:
		return fieldTypeError(name, value)
	}
	return nil
}

func setStrings(dst *[]string, name string, value any) error {
	switch v := value.(type) {
	case nil:
		*dst = nil
	case []string:
		*dst = append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return fieldTypeError(name, value)
			}
			out = append(out, s)
		}
		*dst = out
	default:
		return fieldTypeError(name, value)
	}
	return nil
}

func fieldTypeError(name string, value any) error {
	return fmt.Errorf("field %q cannot hold a value of type %T", name, value)
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func derefFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func derefTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return *t
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies the slice and map values a field can hold.
// Other values are returned as they are.
func CloneValue(v any) any {
	switch t := v.(type) {
	case []string:
		if t == nil {
			return t
		}
		return append([]string(nil), t...)
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = CloneValue(item)
		}
		return out
	case map[string]any:
		if t == nil {
			return t
		}
		return copyMap(t)
	case map[string]string:
		if t == nil {
			return t
		}
		out := make(map[string]string, len(t))
		for k, item := range t {
			out[k] = item
		}
		return out
	case *float64:
		return cloneFloat(t)
	case *time.Time:
		return cloneTime(t)
	default:
		return v
	}
}
