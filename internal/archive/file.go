package archive

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// maxLineBytes bounds one archived entry
const maxLineBytes = 4 << 20

// FileStore archives entries as JSON lines in a local file
type FileStore struct {
	path   string
	logger ectologger.Logger

	mu   sync.Mutex
	file *os.File
}

// NewFileStore opens or creates the archive file
func NewFileStore(path string, logger ectologger.Logger) (*FileStore, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger archive %s: %w", path, err)
	}
	return &FileStore{
		path:   path,
		logger: logger,
		file:   file,
	}, nil
}

// Archive appends an entry as one line
func (s *FileStore) Archive(ctx context.Context, entry models.MergeHistory) error {
	_, span := tracing.StartSpan(ctx, "archive.FileStore.Archive")
	defer span.End()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger entry: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return os.ErrClosed
	}
	if _, err := s.file.Write(data); err != nil {
		return fmt.Errorf("failed to archive ledger entry %s: %w", entry.ID, err)
	}
	return nil
}

// Replay reads every archived entry, oldest first. Unreadable lines are skipped.
func (s *FileStore) Replay(ctx context.Context) ([]models.MergeHistory, error) {
	ctx, span := tracing.StartSpan(ctx, "archive.FileStore.Replay")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []models.MergeHistory{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger archive %s: %w", s.path, err)
	}
	defer file.Close()

	entries := make([]models.MergeHistory, 0)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var entry models.MergeHistory
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			s.logger.WithContext(ctx).WithError(err).WithField("line", line).Warn("Skipping unreadable ledger archive line")
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ledger archive %s: %w", s.path, err)
	}

	return entries, nil
}

// Close closes the archive file
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
