package dedupe

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// MergeOutcome is the decision and result of a complete merge
type MergeOutcome struct {
	Decision *models.MergeDecision `json:"decision"`
	Result   *models.MergeResult   `json:"result"`
}

// CreateMergeDecision plans a merge without executing it
func (s *Service) CreateMergeDecision(ctx context.Context, primary *models.EventRecord, duplicates []*models.EventRecord, strategy string) (*models.MergeDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "dedupe.Service.CreateMergeDecision")
	defer span.End()

	return s.planner.CreateMergeDecision(ctx, primary, duplicates, strategy)
}

// ValidateMergeDecision returns a *merging.ValidationError listing every problem, or nil
func (s *Service) ValidateMergeDecision(decision *models.MergeDecision) error {
	return merging.ValidateMergeDecision(decision)
}

// ExecuteMerge materializes a decision, records it in the ledger and publishes it.
// Execution problems are reported in the result. The error is only set when a successful
// merge could not be recorded.
func (s *Service) ExecuteMerge(ctx context.Context, decision *models.MergeDecision, primary *models.EventRecord, operator string) (*models.MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "dedupe.Service.ExecuteMerge")
	defer span.End()

	result := s.executor.ExecuteMerge(ctx, decision, primary)
	span.SetAttributes(attribute.Bool("merge.success", result.Success))
	if !result.Success {
		return result, nil
	}

	historyID, err := s.ledger.RecordMerge(
		ctx,
		decision,
		primary,
		result.Merged,
		operator,
		result.ProcessingTime.Milliseconds(),
		result.QualityImprovement,
	)
	if err != nil {
		tracing.RecordError(span, err)
		s.logger.WithContext(ctx).WithError(err).WithField("primary_id", decision.PrimaryID).Error("Failed to record merge")
		return result, fmt.Errorf("failed to record merge of %s: %w", decision.PrimaryID, err)
	}
	result.HistoryID = historyID

	s.publish(ctx, historyID, result.Merged)

	return result, nil
}

// Merge plans, validates, executes and records a merge in one call
func (s *Service) Merge(ctx context.Context, primary *models.EventRecord, duplicates []*models.EventRecord, strategy, operator string) (*MergeOutcome, error) {
	ctx, span := tracing.StartSpan(ctx, "dedupe.Service.Merge")
	defer span.End()

	decision, err := s.planner.CreateMergeDecision(ctx, primary, duplicates, strategy)
	if err != nil {
		return nil, err
	}
	if err := merging.ValidateMergeDecision(decision); err != nil {
		return &MergeOutcome{Decision: decision}, err
	}

	result, err := s.ExecuteMerge(ctx, decision, primary, operator)
	return &MergeOutcome{Decision: decision, Result: result}, err
}

// MergeCluster merges one batch cluster with per-field rules
func (s *Service) MergeCluster(ctx context.Context, primary *models.EventRecord, duplicates []*models.EventRecord) (*models.MergeResult, error) {
	outcome, err := s.Merge(ctx, primary, duplicates, models.MergeStrategyAutomatic, BatchOperator)
	if outcome == nil {
		return nil, err
	}
	return outcome.Result, err
}

func (s *Service) publish(ctx context.Context, historyID string, merged *models.EventRecord) {
	if s.publisher == nil {
		return
	}
	entry, ok := s.ledger.Get(historyID)
	if !ok {
		return
	}
	if err := s.publisher.PublishMerge(ctx, entry, merged); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("history_id", historyID).Warn("Failed to publish merge")
	}
}
