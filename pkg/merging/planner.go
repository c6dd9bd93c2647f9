// Package merging plans and executes merges of duplicate event records
package merging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/resolution"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var (
	// ErrNoPrimary is returned when a merge has no primary record
	ErrNoPrimary = errors.New("merge requires a primary record")
	// ErrNoDuplicates is returned when a merge has no duplicate records
	ErrNoDuplicates = errors.New("merge requires at least one duplicate")
	// ErrUnknownStrategy is returned for merge strategies that are neither automatic nor a conflict strategy
	ErrUnknownStrategy = errors.New("unknown merge strategy")
)

// ValidationError lists every problem found in a merge decision
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "invalid merge decision: " + strings.Join(e.Errors, "; ")
}

// Planner builds merge decisions from a primary record and its duplicates
type Planner struct {
	logger   ectologger.Logger
	resolver *resolution.Resolver
	now      func() time.Time
}

// NewPlanner creates a new merge planner
func NewPlanner(logger ectologger.Logger, resolver *resolution.Resolver) *Planner {
	return &Planner{
		logger:   logger,
		resolver: resolver,
		now:      time.Now,
	}
}

// CreateMergeDecision resolves every mergeable field and assembles a preview of the merged record.
// The strategy is models.MergeStrategyAutomatic (per-field rules) or a conflict strategy applied to
// every field. Field-level problems never fail the decision; they are flagged for review instead.
func (p *Planner) CreateMergeDecision(
	ctx context.Context,
	primary *models.EventRecord,
	duplicates []*models.EventRecord,
	strategy string,
) (*models.MergeDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Planner.CreateMergeDecision")
	defer span.End()

	if primary == nil {
		return nil, ErrNoPrimary
	}

	dups := make([]*models.EventRecord, 0, len(duplicates))
	for _, d := range duplicates {
		if d != nil && d != primary && d.ID != primary.ID {
			dups = append(dups, d)
		}
	}
	if len(dups) == 0 {
		return nil, ErrNoDuplicates
	}

	if strategy == "" {
		strategy = models.MergeStrategyAutomatic
	}
	override := models.ConflictStrategy(strategy)
	if strategy != models.MergeStrategyAutomatic && !override.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, strategy)
	}

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"primary_id": primary.ID,
		"duplicates": len(dups),
		"strategy":   strategy,
	})

	decision := &models.MergeDecision{
		PrimaryID:    primary.ID,
		DuplicateIDs: make([]string, 0, len(dups)),
		Strategy:     strategy,
		Resolutions:  make([]models.ConflictResolution, 0, len(models.MergeableFields)),
		CreatedAt:    p.now().UTC(),
	}
	for _, d := range dups {
		decision.DuplicateIDs = append(decision.DuplicateIDs, d.ID)
	}

	preview := primary.Clone()
	confidenceSum, resolved := 0.0, 0

	for _, field := range models.MergeableFields {
		values := p.fieldValues(field, primary, dups)

		var res models.ConflictResolution
		if strategy == models.MergeStrategyAutomatic {
			res = p.resolver.ResolveField(ctx, field, values)
		} else {
			res = p.resolver.ResolveFieldWithStrategy(ctx, field, values, override)
		}

		if res.ResolvedValue != nil {
			next, err := preview.WithField(field, res.ResolvedValue)
			if err != nil {
				res.RequiresManualReview = true
				res.ReviewReasons = append(res.ReviewReasons, err.Error())
				log.WithError(err).WithField("field", field).Warn("Resolved value could not be applied to preview")
			} else {
				preview = next
			}
			confidenceSum += res.Confidence
			resolved++
		}

		decision.Resolutions = append(decision.Resolutions, res)
	}

	if resolved > 0 {
		decision.Confidence = confidenceSum / float64(resolved)
	}
	decision.Preview = preview

	log.WithFields(map[string]any{
		"confidence":     decision.Confidence,
		"review_fields":  len(decision.ManualReviewFields()),
		"resolved_count": resolved,
	}).Debug("Created merge decision")

	return decision, nil
}

// ValidateMergeDecision checks a decision's structure before execution
func ValidateMergeDecision(decision *models.MergeDecision) error {
	if decision == nil {
		return &ValidationError{Errors: []string{"decision is required"}}
	}

	problems := make([]string, 0)
	if decision.PrimaryID == "" {
		problems = append(problems, "primary id is required")
	}
	if len(decision.DuplicateIDs) == 0 {
		problems = append(problems, "at least one duplicate id is required")
	}
	for _, id := range decision.DuplicateIDs {
		if id == "" {
			problems = append(problems, "duplicate ids must not be empty")
			break
		}
	}
	for _, id := range decision.DuplicateIDs {
		if id != "" && id == decision.PrimaryID {
			problems = append(problems, fmt.Sprintf("primary %s is listed as its own duplicate", id))
			break
		}
	}
	if isEmptyRecord(decision.Preview) {
		problems = append(problems, "merge preview is empty")
	}

	if len(problems) > 0 {
		return &ValidationError{Errors: problems}
	}
	return nil
}

// fieldValues collects a field's values with the primary offered under the primary source name.
// The primary carries its own source's update time when the record has none.
func (p *Planner) fieldValues(field string, primary *models.EventRecord, duplicates []*models.EventRecord) []resolution.FieldValue {
	primaryUpdated := primary.UpdatedAt
	if primaryUpdated.IsZero() && primary.SourceName != "" {
		primaryUpdated = p.resolver.Sources().LastUpdated(primary.SourceName)
	}

	values := make([]resolution.FieldValue, 0, len(duplicates)+1)
	values = append(values, resolution.FieldValue{
		Value:      primary.Field(field),
		RecordID:   primary.ID,
		SourceName: models.SourcePrimary,
		UpdatedAt:  primaryUpdated,
	})
	for _, d := range duplicates {
		values = append(values, resolution.FieldValue{
			Value:      d.Field(field),
			RecordID:   d.ID,
			SourceName: d.SourceName,
			UpdatedAt:  d.UpdatedAt,
		})
	}
	return values
}

func isEmptyRecord(record *models.EventRecord) bool {
	if record == nil {
		return true
	}
	for _, value := range record.Fields() {
		if value != nil {
			return false
		}
	}
	return true
}
