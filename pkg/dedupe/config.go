package dedupe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Config document formats
const (
	ConfigFormatJSON = "json"
	ConfigFormatYAML = "yaml"
)

// ErrUnsupportedConfigFormat is returned for config formats other than JSON and YAML
var ErrUnsupportedConfigFormat = errors.New("unsupported config format")

// GetConfig returns the configuration in use
func (s *Service) GetConfig() models.DedupConfig {
	return s.scorer.Config()
}

// UpdateConfig deep-merges a partial JSON or YAML document over the current configuration.
// An invalid patch leaves the configuration unchanged. Any change purges the similarity cache.
func (s *Service) UpdateConfig(ctx context.Context, patch []byte) (models.DedupConfig, error) {
	ctx, span := tracing.StartSpan(ctx, "dedupe.Service.UpdateConfig")
	defer span.End()

	s.configMu.Lock()
	defer s.configMu.Unlock()

	return s.applyPatch(ctx, s.scorer.Config(), patch)
}

// ImportConfig replaces the configuration with a document merged over the defaults
func (s *Service) ImportConfig(ctx context.Context, document []byte) (models.DedupConfig, error) {
	ctx, span := tracing.StartSpan(ctx, "dedupe.Service.ImportConfig")
	defer span.End()

	s.configMu.Lock()
	defer s.configMu.Unlock()

	return s.applyPatch(ctx, models.DefaultDedupConfig(), document)
}

// ExportConfig renders the configuration as JSON or YAML
func (s *Service) ExportConfig(format string) ([]byte, error) {
	return EncodeConfig(s.GetConfig(), format)
}

func (s *Service) applyPatch(ctx context.Context, base models.DedupConfig, patch []byte) (models.DedupConfig, error) {
	current := s.scorer.Config()

	raw, err := toJSON(patch)
	if err != nil {
		return current, err
	}

	next, err := base.ApplyPatch(raw)
	if err != nil {
		return current, err
	}

	if err := s.scorer.SetConfig(next); err != nil {
		return current, err
	}
	s.resolver.SetForceManualReview(next.Quality.ForceManualReview)

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"overall_threshold":    next.Thresholds.Overall,
		"auto_merge_threshold": next.Quality.AutoMergeThreshold,
		"force_manual_review":  next.Quality.ForceManualReview,
	}).Info("Updated dedupe configuration")

	return next, nil
}

// EncodeConfig renders a configuration as JSON or YAML
func EncodeConfig(config models.DedupConfig, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", ConfigFormatJSON:
		return json.MarshalIndent(config, "", "  ")
	case ConfigFormatYAML, "yml":
		return yaml.Marshal(config)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedConfigFormat, format)
	}
}

// LoadConfigFile reads a JSON or YAML configuration file and merges it over the defaults
func LoadConfigFile(path string) (models.DedupConfig, error) {
	defaults := models.DefaultDedupConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return defaults, fmt.Errorf("failed to read dedupe config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
	default:
		return defaults, fmt.Errorf("%w: %s", ErrUnsupportedConfigFormat, filepath.Ext(path))
	}

	raw, err := toJSON(data)
	if err != nil {
		return defaults, err
	}
	return defaults.ApplyPatch(raw)
}

// toJSON accepts a JSON or YAML document and returns it as JSON.
// YAML is a superset of JSON, so a JSON document decodes the same way.
func toJSON(document []byte) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(document))
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty document", models.ErrInvalidConfig)
	}
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(document, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidConfig, err)
	}
	encoded, err := json.Marshal(parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidConfig, err)
	}
	return encoded, nil
}
