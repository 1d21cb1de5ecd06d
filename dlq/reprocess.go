package dlq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mjones3/event-governance-poc-sub000/contracts"
	"github.com/mjones3/event-governance-poc-sub000/messaging"
)

// ErrReprocessingInProgress is returned when a record is already being
// reprocessed by someone else
var ErrReprocessingInProgress = errors.New("dlq record reprocessing already in progress")

// Republisher replays an already validated payload through the resilient
// publish path without creating a new DLQ record. Implemented by
// messaging.EventPublisher.
type Republisher interface {
	Republish(ctx context.Context, topic, key string, payload []byte) error
}

// ReprocessResult reports the outcome of one reprocessing attempt
type ReprocessResult struct {
	DLQID            string
	Status           contracts.Status
	AlreadyCompleted bool
}

// ReprocessingService replays DLQ records through the publisher path and
// drives their status lifecycle. Reprocessing a COMPLETED record is an
// idempotent no-op; a failed replay moves the record back to FAILED, never
// to PENDING.
type ReprocessingService struct {
	store       Store
	republisher Republisher
	logger      *slog.Logger
	metrics     messaging.MetricsCollector
	nowFunc     func() time.Time
}

// ReprocessingOption configures the ReprocessingService
type ReprocessingOption func(*ReprocessingService)

// WithReprocessingLogger sets the logger
func WithReprocessingLogger(logger *slog.Logger) ReprocessingOption {
	return func(s *ReprocessingService) {
		s.logger = logger
	}
}

// WithReprocessingMetrics sets the metrics collector
func WithReprocessingMetrics(metrics messaging.MetricsCollector) ReprocessingOption {
	return func(s *ReprocessingService) {
		s.metrics = metrics
	}
}

// NewReprocessingService creates a reprocessing service
func NewReprocessingService(store Store, republisher Republisher, options ...ReprocessingOption) *ReprocessingService {
	s := &ReprocessingService{
		store:       store,
		republisher: republisher,
		logger:      slog.Default(),
		metrics:     messaging.NoOpMetricsCollector{},
		nowFunc:     time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// ReprocessOption configures a single reprocessing call
type ReprocessOption func(*reprocessOptions)

type reprocessOptions struct {
	payload []byte
	topic   string
}

// WithCorrectedPayload replays a corrected payload instead of the original
func WithCorrectedPayload(payload []byte) ReprocessOption {
	return func(o *reprocessOptions) {
		o.payload = payload
	}
}

// WithTargetTopic replays to a different topic than the original
func WithTargetTopic(topic string) ReprocessOption {
	return func(o *reprocessOptions) {
		o.topic = topic
	}
}

// Reprocess replays one record. actor is recorded on the record for audit.
func (s *ReprocessingService) Reprocess(ctx context.Context, dlqID, actor string, options ...ReprocessOption) (*ReprocessResult, error) {
	opts := reprocessOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	// The claim is the serialization point: the store flips the record to
	// IN_PROGRESS atomically, so a concurrent caller loses the claim instead
	// of replaying the payload a second time.
	record, err := s.store.Claim(ctx, dlqID)
	if err != nil {
		return nil, err
	}

	if record.Status == contracts.StatusCompleted {
		// Replaying a completed record must not touch the broker again.
		return &ReprocessResult{
			DLQID:            dlqID,
			Status:           contracts.StatusCompleted,
			AlreadyCompleted: true,
		}, nil
	}

	payload := record.OriginalPayload
	if opts.payload != nil {
		payload = opts.payload
	}
	topic := record.OriginalTopic
	if opts.topic != "" {
		topic = opts.topic
	}

	replayErr := s.republisher.Republish(ctx, topic, record.OriginalEventID, payload)

	now := s.nowFunc()
	record.ReprocessingCount++
	record.LastReprocessedAt = &now
	record.ReprocessedBy = actor

	if replayErr != nil {
		record.Status = contracts.StatusFailed
		if err := s.store.Update(ctx, record); err != nil {
			s.logger.Error("failed to mark dlq record failed",
				"dlqId", dlqID,
				"error", err)
		}
		s.metrics.RecordReprocessing(record.ErrorKind, false)
		s.logger.Error("dlq reprocessing failed",
			"dlqId", dlqID,
			"topic", topic,
			"actor", actor,
			"error", replayErr)
		return &ReprocessResult{DLQID: dlqID, Status: contracts.StatusFailed}, replayErr
	}

	record.Status = contracts.StatusCompleted
	if err := s.store.Update(ctx, record); err != nil {
		return nil, err
	}

	s.metrics.RecordReprocessing(record.ErrorKind, true)
	s.logger.Info("dlq record reprocessed",
		"dlqId", dlqID,
		"originalEventId", record.OriginalEventID,
		"topic", topic,
		"actor", actor,
		"reprocessingCount", record.ReprocessingCount)

	return &ReprocessResult{DLQID: dlqID, Status: contracts.StatusCompleted}, nil
}

// Requeue moves a FAILED record back to PENDING. This is the only path back
// to PENDING; reprocessing failures always land on FAILED.
func (s *ReprocessingService) Requeue(ctx context.Context, dlqID, actor string) error {
	record, err := s.store.Get(ctx, dlqID)
	if err != nil {
		return err
	}

	if record.Status != contracts.StatusFailed {
		return fmt.Errorf("dlq record %s: requeue from %s: %w",
			dlqID, record.Status, contracts.ErrInvalidTransition)
	}

	record.Status = contracts.StatusPending
	record.ReprocessedBy = actor
	if err := s.store.Update(ctx, record); err != nil {
		return err
	}

	s.logger.Info("dlq record requeued",
		"dlqId", dlqID,
		"actor", actor)
	return nil
}

// BatchResult summarizes a batch reprocessing run
type BatchResult struct {
	Selected  int
	Succeeded int
	Failed    int
	Skipped   int
}

// ReprocessBatch replays every PENDING or FAILED record matching the filter.
// The run stops at context cancellation; transitions already completed stay
// as they are. Per-record failures are counted, not fatal.
func (s *ReprocessingService) ReprocessBatch(ctx context.Context, filter ListFilter, actor string) (*BatchResult, error) {
	if len(filter.Statuses) == 0 {
		filter.Statuses = []contracts.Status{contracts.StatusPending, contracts.StatusFailed}
	}

	records, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{Selected: len(records)}
	for _, record := range records {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		res, err := s.Reprocess(ctx, record.DLQID, actor)
		switch {
		case err != nil:
			result.Failed++
		case res.AlreadyCompleted:
			result.Skipped++
		default:
			result.Succeeded++
		}
	}

	s.logger.Info("dlq batch reprocessing finished",
		"selected", result.Selected,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"actor", actor)
	return result, nil
}
