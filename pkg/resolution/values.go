package resolution

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
)

// FieldValue is one record's value for a field, offered to the resolver
type FieldValue struct {
	Value      any
	RecordID   string
	SourceName string
	// UpdatedAt is the record's own update time; the source's registry timestamp is used when zero
	UpdatedAt time.Time
}

// normalizeValue converts a raw field value into its canonical Go type.
// It returns false for absent, empty or malformed values, which are skipped.
func normalizeValue(field string, value any) (any, bool) {
	if isEmpty(value) {
		return nil, false
	}

	switch field {
	case models.FieldLatitude, models.FieldLongitude, models.FieldPriceMin, models.FieldPriceMax:
		f, ok := models.ToFloat(deref(value))
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false
		}
		return f, true
	case models.FieldInterestCount:
		f, ok := models.ToFloat(deref(value))
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false
		}
		return int(f), true
	case models.FieldStartTime, models.FieldEndTime:
		switch t := deref(value).(type) {
		case time.Time:
			return t, !t.IsZero()
		case string:
			parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(t))
			if err != nil {
				return nil, false
			}
			return parsed, true
		default:
			return nil, false
		}
	case models.FieldTags, models.FieldImageURLs:
		switch items := value.(type) {
		case []string:
			out := make([]string, 0, len(items))
			for _, item := range items {
				if strings.TrimSpace(item) != "" {
					out = append(out, item)
				}
			}
			return out, len(out) > 0
		case []any:
			out := make([]string, 0, len(items))
			for _, item := range items {
				s, ok := item.(string)
				if ok && strings.TrimSpace(s) != "" {
					out = append(out, s)
				}
			}
			return out, len(out) > 0
		default:
			return nil, false
		}
	case models.FieldMetadata:
		m, ok := value.(map[string]any)
		return m, ok && len(m) > 0
	default:
		if _, isString := value.(string); !isString && isStringField(field) {
			return nil, false
		}
		return value, true
	}
}

func isStringField(field string) bool {
	switch field {
	case models.FieldTitle, models.FieldDescription, models.FieldVenueName, models.FieldAddress,
		models.FieldCity, models.FieldCurrency, models.FieldCategory, models.FieldExternalID,
		models.FieldTicketURL:
		return true
	}
	return false
}

func deref(value any) any {
	switch v := value.(type) {
	case *float64:
		if v == nil {
			return nil
		}
		return *v
	case *int:
		if v == nil {
			return nil
		}
		return *v
	case *time.Time:
		if v == nil {
			return nil
		}
		return *v
	}
	return value
}

// isEmpty reports whether a value carries no information
func isEmpty(value any) bool {
	if value == nil {
		return true
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v) == ""
	case time.Time:
		return v.IsZero()
	case float64:
		return math.IsNaN(v)
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		return rv.IsNil()
	case reflect.Slice, reflect.Map:
		return rv.Len() == 0
	}
	return false
}

// sameValue compares two resolved values for equality
func sameValue(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	if reflect.DeepEqual(a, b) {
		return true
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
