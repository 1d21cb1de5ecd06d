package dlq

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mjones3/event-governance-poc-sub000/contracts"
)

// ListFilter narrows a Store listing. Zero values match everything.
type ListFilter struct {
	Kinds         []contracts.ErrorKind
	Statuses      []contracts.Status
	Module        string
	CreatedAfter  time.Time
	CreatedBefore time.Time
	Limit         int
}

// StoreStats summarizes the records currently held
type StoreStats struct {
	Total      int
	ByKind     map[contracts.ErrorKind]int
	ByStatus   map[contracts.Status]int
	ByPriority map[contracts.Priority]int
}

// Store persists DLQ records through their reprocessing lifecycle.
// Update enforces the status transition rules; an illegal transition returns
// contracts.ErrInvalidTransition.
type Store interface {
	Save(ctx context.Context, record *contracts.DLQRecord) error
	Get(ctx context.Context, dlqID string) (*contracts.DLQRecord, error)
	Update(ctx context.Context, record *contracts.DLQRecord) error

	// Claim atomically moves a PENDING or FAILED record to IN_PROGRESS and
	// returns the claimed copy. At most one caller wins a given claim; a
	// record already IN_PROGRESS returns ErrReprocessingInProgress. A
	// COMPLETED record is returned unchanged so the caller can treat the
	// replay as an idempotent no-op.
	Claim(ctx context.Context, dlqID string) (*contracts.DLQRecord, error)

	List(ctx context.Context, filter ListFilter) ([]*contracts.DLQRecord, error)
	Stats(ctx context.Context) (StoreStats, error)
}

// InMemoryStore is a thread-safe in-memory Store. Records are deep-copied on
// the way in and out so callers cannot mutate stored state directly.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*contracts.DLQRecord
}

// NewInMemoryStore creates an empty in-memory store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[string]*contracts.DLQRecord),
	}
}

// Save stores a new record
func (s *InMemoryStore) Save(ctx context.Context, record *contracts.DLQRecord) error {
	if record == nil || record.DLQID == "" {
		return fmt.Errorf("record must have a dlqId")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.DLQID]; exists {
		return fmt.Errorf("record %s already exists", record.DLQID)
	}

	s.records[record.DLQID] = copyRecord(record)
	return nil
}

// Get returns the record with the given ID
func (s *InMemoryStore) Get(ctx context.Context, dlqID string) (*contracts.DLQRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[dlqID]
	if !ok {
		return nil, fmt.Errorf("dlq record %s: %w", dlqID, contracts.ErrRecordNotFound)
	}
	return copyRecord(record), nil
}

// Update replaces a stored record, enforcing the status lifecycle
func (s *InMemoryStore) Update(ctx context.Context, record *contracts.DLQRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[record.DLQID]
	if !ok {
		return fmt.Errorf("dlq record %s: %w", record.DLQID, contracts.ErrRecordNotFound)
	}

	if !existing.Status.CanTransitionTo(record.Status) {
		return fmt.Errorf("dlq record %s: %s -> %s: %w",
			record.DLQID, existing.Status, record.Status, contracts.ErrInvalidTransition)
	}

	s.records[record.DLQID] = copyRecord(record)
	return nil
}

// Claim implements the atomic reprocessing claim. Status is checked and
// flipped under the write lock, so concurrent claimants cannot both win.
func (s *InMemoryStore) Claim(ctx context.Context, dlqID string) (*contracts.DLQRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[dlqID]
	if !ok {
		return nil, fmt.Errorf("dlq record %s: %w", dlqID, contracts.ErrRecordNotFound)
	}

	switch record.Status {
	case contracts.StatusCompleted:
		return copyRecord(record), nil
	case contracts.StatusInProgress:
		return nil, fmt.Errorf("dlq record %s: %w", dlqID, ErrReprocessingInProgress)
	}

	record.Status = contracts.StatusInProgress
	return copyRecord(record), nil
}

// List returns matching records ordered by creation time, oldest first
func (s *InMemoryStore) List(ctx context.Context, filter ListFilter) ([]*contracts.DLQRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*contracts.DLQRecord
	for _, record := range s.records {
		if filter.matches(record) {
			out = append(out, copyRecord(record))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Stats returns aggregate counts
func (s *InMemoryStore) Stats(ctx context.Context) (StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := StoreStats{
		Total:      len(s.records),
		ByKind:     make(map[contracts.ErrorKind]int),
		ByStatus:   make(map[contracts.Status]int),
		ByPriority: make(map[contracts.Priority]int),
	}
	for _, record := range s.records {
		stats.ByKind[record.ErrorKind]++
		stats.ByStatus[record.Status]++
		stats.ByPriority[record.Priority]++
	}
	return stats, nil
}

func (f ListFilter) matches(record *contracts.DLQRecord) bool {
	if len(f.Kinds) > 0 && !containsKind(f.Kinds, record.ErrorKind) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, record.Status) {
		return false
	}
	if f.Module != "" && f.Module != record.Module {
		return false
	}
	if !f.CreatedAfter.IsZero() && record.CreatedAt.Before(f.CreatedAfter) {
		return false
	}
	if !f.CreatedBefore.IsZero() && record.CreatedAt.After(f.CreatedBefore) {
		return false
	}
	return true
}

func containsKind(kinds []contracts.ErrorKind, kind contracts.ErrorKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func containsStatus(statuses []contracts.Status, status contracts.Status) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func copyRecord(record *contracts.DLQRecord) *contracts.DLQRecord {
	c := *record
	if record.OriginalPayload != nil {
		c.OriginalPayload = append([]byte(nil), record.OriginalPayload...)
	}
	if record.LastReprocessedAt != nil {
		ts := *record.LastReprocessedAt
		c.LastReprocessedAt = &ts
	}
	return &c
}
