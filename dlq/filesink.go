package dlq

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/mjones3/event-governance-poc-sub000/contracts"
)

// FileSink appends DLQ records to a JSONL file, one record per line. It is
// the last line of defense when both the DLQ topic and the primary store are
// unreachable, so writes are synchronous and optionally fsynced.
type FileSink struct {
	mu    sync.Mutex
	path  string
	fsync bool
}

// FileSinkOption configures the FileSink
type FileSinkOption func(*FileSink)

// WithFsync forces an fsync after every append
func WithFsync(enabled bool) FileSinkOption {
	return func(s *FileSink) {
		s.fsync = enabled
	}
}

// NewFileSink creates a sink appending to path. The file is created on first
// append.
func NewFileSink(path string, options ...FileSinkOption) *FileSink {
	s := &FileSink{path: path}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Append writes one record as a single JSON line
func (s *FileSink) Append(record *contracts.DLQRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal dlq record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open dlq sink file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append dlq record: %w", err)
	}
	if s.fsync {
		if err := f.Sync(); err != nil {
			return fmt.Errorf("failed to sync dlq sink file: %w", err)
		}
	}
	return nil
}

// ReadAll loads every record from the sink file. Missing file means no
// records. Malformed lines are skipped with their line numbers reported.
func (s *FileSink) ReadAll() ([]*contracts.DLQRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open dlq sink file: %w", err)
	}
	defer f.Close()

	var records []*contracts.DLQRecord
	var badLines []int

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}
		var record contracts.DLQRecord
		if err := json.Unmarshal(text, &record); err != nil {
			badLines = append(badLines, line)
			continue
		}
		records = append(records, &record)
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("failed to read dlq sink file: %w", err)
	}
	if len(badLines) > 0 {
		return records, fmt.Errorf("skipped %d malformed lines: %v", len(badLines), badLines)
	}
	return records, nil
}

// Path returns the sink file path
func (s *FileSink) Path() string {
	return s.path
}
