package models

import (
	"time"
)

// MergeStrategyAutomatic resolves every field with its configured conflict rule.
// Any ConflictStrategy may also be used as a merge strategy to override all field rules.
const MergeStrategyAutomatic = "automatic"

// MergeDecision is a proposed, unexecuted plan to combine a primary record with duplicates.
// Decisions are built by the merge planner and must not be modified afterwards.
type MergeDecision struct {
	PrimaryID    string               `json:"primary_id"`
	DuplicateIDs []string             `json:"duplicate_ids"`
	Strategy     string               `json:"strategy"`
	Resolutions  []ConflictResolution `json:"resolutions"`
	Confidence   float64              `json:"confidence"`
	Preview      *EventRecord         `json:"preview"`
	CreatedAt    time.Time            `json:"created_at"`
}

// Resolution returns the resolution for a field, or nil.
func (d *MergeDecision) Resolution(field string) *ConflictResolution {
	for i := range d.Resolutions {
		if d.Resolutions[i].Field == field {
			return &d.Resolutions[i]
		}
	}
	return nil
}

// ManualReviewFields lists the fields flagged for manual review.
func (d *MergeDecision) ManualReviewFields() []string {
	fields := make([]string, 0)
	for _, r := range d.Resolutions {
		if r.RequiresManualReview {
			fields = append(fields, r.Field)
		}
	}
	return fields
}

// MergeResult is the outcome of executing a merge decision.
type MergeResult struct {
	Success            bool          `json:"success"`
	Merged             *EventRecord  `json:"merged,omitempty"`
	Errors             []string      `json:"errors,omitempty"`
	QualityImprovement float64       `json:"quality_improvement"`
	ProcessingTime     time.Duration `json:"processing_time"`
	HistoryID          string        `json:"history_id,omitempty"`
}

// ChangeSource categorizes where a merged field value came from
type ChangeSource string

const (
	ChangeSourcePrimary   ChangeSource = "primary"
	ChangeSourceDuplicate ChangeSource = "duplicate"
	ChangeSourceMerged    ChangeSource = "merged"
	ChangeSourceEnhanced  ChangeSource = "enhanced"
)

// FieldChange is a before/after pair recorded for one field of a merge.
type FieldChange struct {
	Field      string       `json:"field" validate:"required"`
	Before     any          `json:"before"`
	After      any          `json:"after"`
	Source     ChangeSource `json:"source" validate:"required,oneof=primary duplicate merged enhanced"`
	Confidence float64      `json:"confidence" validate:"gte=0,lte=1"`
}

// MergeHistory is an immutable audit entry for one executed merge.
type MergeHistory struct {
	ID                 string        `json:"id" validate:"required"`
	PrimaryID          string        `json:"primary_id" validate:"required"`
	DuplicateIDs       []string      `json:"duplicate_ids" validate:"required,min=1,dive,required"`
	Timestamp          time.Time     `json:"timestamp" validate:"required"`
	Operator           string        `json:"operator" validate:"required"`
	Strategy           string        `json:"strategy" validate:"required"`
	Confidence         float64       `json:"confidence" validate:"gte=0,lte=1"`
	Changes            []FieldChange `json:"changes" validate:"dive"`
	QualityImprovement float64       `json:"quality_improvement"`
	ProcessingTimeMs   int64         `json:"processing_time_ms" validate:"gte=0"`
}
