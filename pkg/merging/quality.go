package merging

import (
	"github.com/Ramsey-B/clover/pkg/models"
)

// fieldImportance weights field presence when scoring record completeness
var fieldImportance = map[string]float64{
	models.FieldTitle:         3,
	models.FieldVenueName:     3,
	models.FieldStartTime:     3,
	models.FieldAddress:       2,
	models.FieldLatitude:      1.5,
	models.FieldLongitude:     1.5,
	models.FieldDescription:   2,
	models.FieldEndTime:       1,
	models.FieldCity:          1,
	models.FieldPriceMin:      1,
	models.FieldPriceMax:      1,
	models.FieldCurrency:      0.5,
	models.FieldCategory:      1,
	models.FieldTags:          0.5,
	models.FieldImageURLs:     1,
	models.FieldTicketURL:     1,
	models.FieldExternalID:    0.5,
	models.FieldInterestCount: 0.5,
	models.FieldMetadata:      0.5,
}

// Completeness returns the importance-weighted share of populated fields, in [0,1]
func Completeness(record *models.EventRecord) float64 {
	if record == nil {
		return 0
	}

	total, present := 0.0, 0.0
	for _, field := range models.MergeableFields {
		weight := fieldImportance[field]
		total += weight
		if record.Field(field) != nil {
			present += weight
		}
	}
	if total == 0 {
		return 0
	}
	return present / total
}

// QualityImprovement is the completeness gained by the merged record over the pre-merge primary.
// It is negative when the merge loses information.
func QualityImprovement(before, after *models.EventRecord) float64 {
	return Completeness(after) - Completeness(before)
}
