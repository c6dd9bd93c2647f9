package ledger

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// DocumentVersion is the version written to exported ledger documents
const DocumentVersion = 1

// Export formats
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// ErrUnsupportedFormat is returned for unknown export or import formats
var ErrUnsupportedFormat = errors.New("unsupported ledger format")

var validate = validator.New(validator.WithRequiredStructEnabled())

var csvHeader = []string{
	"id",
	"primary_id",
	"duplicate_ids",
	"timestamp",
	"operator",
	"strategy",
	"confidence",
	"quality_improvement",
	"processing_time_ms",
	"changes",
}

// Document is the structured export of the ledger
type Document struct {
	Version    int                   `json:"version"`
	ExportedAt time.Time             `json:"exported_at"`
	Entries    []models.MergeHistory `json:"entries"`
}

// ImportError describes one rejected entry
type ImportError struct {
	Index   int    `json:"index"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message"`
}

// ImportResult summarizes an import
type ImportResult struct {
	Imported int           `json:"imported"`
	Rejected int           `json:"rejected"`
	Errors   []ImportError `json:"errors,omitempty"`
}

// Export writes the ledger in the given format
func (l *Ledger) Export(ctx context.Context, w io.Writer, format string) error {
	_, span := tracing.StartSpan(ctx, "ledger.Ledger.Export")
	defer span.End()

	entries := l.Snapshot()

	switch strings.ToLower(format) {
	case "", FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(Document{
			Version:    DocumentVersion,
			ExportedAt: l.now().UTC(),
			Entries:    entries,
		})
	case FormatCSV:
		return writeCSV(w, entries)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func writeCSV(w io.Writer, entries []models.MergeHistory) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, entry := range entries {
		changes, err := json.Marshal(entry.Changes)
		if err != nil {
			return fmt.Errorf("failed to encode changes of %s: %w", entry.ID, err)
		}
		record := []string{
			entry.ID,
			entry.PrimaryID,
			strings.Join(entry.DuplicateIDs, ";"),
			entry.Timestamp.UTC().Format(time.RFC3339Nano),
			entry.Operator,
			entry.Strategy,
			strconv.FormatFloat(entry.Confidence, 'f', -1, 64),
			strconv.FormatFloat(entry.QualityImprovement, 'f', -1, 64),
			strconv.FormatInt(entry.ProcessingTimeMs, 10),
			string(changes),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Import reads entries in the given format. Invalid entries are reported and skipped;
// every valid entry is appended. Only an unreadable document returns an error.
func (l *Ledger) Import(ctx context.Context, r io.Reader, format string) (*ImportResult, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Ledger.Import")
	defer span.End()

	var (
		raw []json.RawMessage
		err error
	)
	switch strings.ToLower(format) {
	case "", FormatJSON:
		raw, err = readJSON(r)
	case FormatCSV:
		raw, err = readCSV(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	for i, item := range raw {
		var entry models.MergeHistory
		if err := json.Unmarshal(item, &entry); err != nil {
			result.reject(i, "", err.Error())
			continue
		}
		l.restore(i, entry, result)
	}

	l.logger.WithContext(ctx).WithFields(map[string]any{
		"imported": result.Imported,
		"rejected": result.Rejected,
	}).Info("Imported merge history")

	return result, nil
}

// Restore appends previously recorded entries, such as those replayed from an archive.
// Entries are validated like imported ones and are not archived again.
func (l *Ledger) Restore(ctx context.Context, entries []models.MergeHistory) *ImportResult {
	_, span := tracing.StartSpan(ctx, "ledger.Ledger.Restore")
	defer span.End()

	result := &ImportResult{}
	for i, entry := range entries {
		l.restore(i, entry, result)
	}
	return result
}

func (l *Ledger) restore(index int, entry models.MergeHistory, result *ImportResult) {
	if err := validate.Struct(entry); err != nil {
		result.reject(index, entry.ID, validationMessage(err))
		return
	}
	if err := l.append(entry); err != nil {
		result.reject(index, entry.ID, err.Error())
		return
	}
	result.Imported++
}

func (r *ImportResult) reject(index int, id, message string) {
	r.Rejected++
	r.Errors = append(r.Errors, ImportError{Index: index, ID: id, Message: message})
}

func readJSON(r io.Reader) ([]json.RawMessage, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var entries []json.RawMessage
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("failed to parse ledger entries: %w", err)
		}
		return entries, nil
	}

	var doc struct {
		Version int               `json:"version"`
		Entries []json.RawMessage `json:"entries"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse ledger document: %w", err)
	}
	if doc.Version > DocumentVersion {
		return nil, fmt.Errorf("ledger document version %d is newer than supported version %d", doc.Version, DocumentVersion)
	}
	return doc.Entries, nil
}

// readCSV converts rows to the JSON form of an entry so both formats share validation
func readCSV(r io.Reader) ([]json.RawMessage, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvHeader)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger csv header: %w", err)
	}
	for i, name := range csvHeader {
		if header[i] != name {
			return nil, fmt.Errorf("unexpected ledger csv column %q at %d", header[i], i)
		}
	}

	out := make([]json.RawMessage, 0)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read ledger csv: %w", err)
		}

		item := map[string]any{
			"id":         row[0],
			"primary_id": row[1],
			"operator":   row[4],
			"strategy":   row[5],
		}
		if row[2] != "" {
			item["duplicate_ids"] = strings.Split(row[2], ";")
		}
		if row[3] != "" {
			item["timestamp"] = row[3]
		}
		if f, err := strconv.ParseFloat(row[6], 64); err == nil {
			item["confidence"] = f
		}
		if f, err := strconv.ParseFloat(row[7], 64); err == nil {
			item["quality_improvement"] = f
		}
		if n, err := strconv.ParseInt(row[8], 10, 64); err == nil {
			item["processing_time_ms"] = n
		}
		if row[9] != "" {
			item["changes"] = json.RawMessage(row[9])
		}

		encoded, err := json.Marshal(item)
		if err != nil {
			// a malformed changes column; let the entry fail validation on its own
			encoded, _ = json.Marshal(map[string]any{"id": row[0]})
		}
		out = append(out, encoded)
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("field '%s' failed rule '%s'", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
