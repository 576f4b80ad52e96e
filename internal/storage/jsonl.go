package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"pmrouter/internal/model"
)

// JsonlStorage appends records to a JSONL file.
type JsonlStorage struct {
	path string
	mu   sync.Mutex
}

// NewJsonlStorage appends to path, creating it and its directory on first write.
func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

// Path returns the output file.
func (s *JsonlStorage) Path() string { return s.path }

// PutLogBatch appends a batch of log records as JSON lines.
func (s *JsonlStorage) PutLogBatch(logs []model.LogRecord) error {
	records := make([]any, len(logs))
	for i := range logs {
		records[i] = logs[i]
	}
	return s.appendLines(records)
}

// PutEvents appends events as JSON lines.
func (s *JsonlStorage) PutEvents(_ context.Context, events []model.Event) error {
	records := make([]any, len(events))
	for i := range events {
		records[i] = events[i]
	}
	return s.appendLines(records)
}

// PutDecodeErrors appends decode failures as JSON lines.
func (s *JsonlStorage) PutDecodeErrors(errs []model.DecodeError) error {
	records := make([]any, len(errs))
	for i := range errs {
		records[i] = errs[i]
	}
	return s.appendLines(records)
}

// Truncate empties the file, creating nothing when it does not exist.
func (s *JsonlStorage) Truncate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Truncate(s.path, 0); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("truncate %s: %w", s.path, err)
	}
	return nil
}

func (s *JsonlStorage) appendLines(records []any) error {
	if len(records) == 0 {
		return nil
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	// json.Encoder terminates every value with a newline.
	w := bufio.NewWriter(file)
	enc := json.NewEncoder(w)
	for i, record := range records {
		if err := enc.Encode(record); err != nil {
			return fmt.Errorf("write record %d: %w", i, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return file.Sync()
}

// ReadEvents loads every event in a JSONL file. Blank lines are skipped.
func ReadEvents(path string) ([]model.Event, error) {
	var events []model.Event
	err := ScanJSONL(context.Background(), path, func(line int, ev model.Event, decodeErr error) error {
		if decodeErr != nil {
			return fmt.Errorf("line %d: %w", line, decodeErr)
		}
		events = append(events, ev)
		return nil
	})
	return events, err
}
