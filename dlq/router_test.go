package dlq

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mjones3/event-governance-poc-sub000/contracts"
	"github.com/mjones3/event-governance-poc-sub000/internal/reliability"
	"github.com/mjones3/event-governance-poc-sub000/messaging"
)

type mockBroker struct {
	mock.Mock
}

func (m *mockBroker) Publish(ctx context.Context, topic, key string, payload []byte) error {
	args := m.Called(ctx, topic, key, payload)
	return args.Error(0)
}

func (m *mockBroker) Name() string { return "kafka" }

func (m *mockBroker) Close() error { return nil }

func sampleInput(err error) messaging.RouteInput {
	return messaging.RouteInput{
		EventID:       "evt-1",
		CorrelationID: "corr-1",
		Module:        "orders",
		EventType:     "OrderCreated",
		OriginalTopic: "orders.events",
		Payload:       []byte(`{"orderNumber":42}`),
		Err:           err,
		RetryCount:    3,
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want contracts.ErrorKind
	}{
		{
			name: "ValidationFailure",
			err:  &contracts.ValidationFailure{Subject: "OrderCreated", Reason: "Unknown field 'extra'"},
			want: contracts.ErrorKindSchemaValidation,
		},
		{
			name: "EncodingFailure",
			err:  &contracts.EncodingFailure{EventID: "evt-1", Err: errors.New("bad payload")},
			want: contracts.ErrorKindDeserialization,
		},
		{
			name: "CircuitBreakerOpen",
			err:  &reliability.CircuitBreakerError{State: reliability.StateOpen, Target: "kafka"},
			want: contracts.ErrorKindCircuitBreakerOpen,
		},
		{
			name: "Timeout",
			err:  fmt.Errorf("publish: %w", context.DeadlineExceeded),
			want: contracts.ErrorKindTimeout,
		},
		{
			name: "TransportFailure",
			err:  &messaging.TransportError{Topic: "orders.events", Err: errors.New("connection refused")},
			want: contracts.ErrorKindKafkaPublish,
		},
		{
			name: "WrappedTransportFailure",
			err: &reliability.RetryError{
				Op:        "kafka",
				Attempts:  3,
				LastError: &messaging.TransportError{Topic: "orders.events", Err: errors.New("connection refused")},
			},
			want: contracts.ErrorKindKafkaPublish,
		},
		{
			name: "UnknownError",
			err:  errors.New("something unexpected"),
			want: contracts.ErrorKindProcessing,
		},
		{
			name: "NilError",
			err:  nil,
			want: contracts.ErrorKindProcessing,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestRouteBuildsRecord(t *testing.T) {
	store := NewInMemoryStore()
	router := NewRouter(store)

	cause := &messaging.TransportError{Topic: "orders.events", Err: errors.New("connection refused")}
	record := router.Route(context.Background(), sampleInput(cause))

	require.NotNil(t, record)
	assert.NotEmpty(t, record.DLQID)
	assert.Equal(t, "evt-1", record.OriginalEventID)
	assert.Equal(t, "corr-1", record.CorrelationID)
	assert.Equal(t, "orders", record.Module)
	assert.Equal(t, "OrderCreated", record.EventType)
	assert.Equal(t, contracts.ErrorKindKafkaPublish, record.ErrorKind)
	assert.Equal(t, "orders.dlq", record.DLQTopic)
	assert.Equal(t, contracts.StatusPending, record.Status)
	assert.Equal(t, 3, record.RetryCount)
	assert.Zero(t, record.ReprocessingCount)
	assert.Equal(t, []byte(`{"orderNumber":42}`), []byte(record.OriginalPayload),
		"original payload must be preserved byte for byte")
	assert.Contains(t, record.ErrorMessage, "connection refused")

	stored, err := store.Get(context.Background(), record.DLQID)
	require.NoError(t, err)
	assert.Equal(t, record.DLQID, stored.DLQID)
}

func TestRouteErrorMessageJoinsCauses(t *testing.T) {
	router := NewRouter(NewInMemoryStore())

	cause := &messaging.TransportError{
		Topic: "orders.events",
		Err:   errors.New("dial tcp 10.0.0.1:9092: connection refused"),
	}
	record := router.Route(context.Background(), sampleInput(cause))

	assert.Equal(t,
		"failed to publish to topic orders.events: dial tcp 10.0.0.1:9092: connection refused",
		record.ErrorMessage)
}

func TestRoutePriority(t *testing.T) {
	t.Run("DefaultsByKind", func(t *testing.T) {
		router := NewRouter(NewInMemoryStore())

		validation := router.Route(context.Background(),
			sampleInput(&contracts.ValidationFailure{Subject: "OrderCreated", Reason: "x"}))
		transport := router.Route(context.Background(),
			sampleInput(&messaging.TransportError{Topic: "t", Err: errors.New("x")}))

		assert.Equal(t, contracts.PriorityHigh, validation.Priority)
		assert.Equal(t, contracts.PriorityMedium, transport.Priority)
	})

	t.Run("RuleOverrides", func(t *testing.T) {
		router := NewRouter(NewInMemoryStore(), WithPriorityRules(
			PriorityRule{Module: "orders", EventType: "OrderCreated", Priority: contracts.PriorityCritical},
		))

		record := router.Route(context.Background(),
			sampleInput(&messaging.TransportError{Topic: "t", Err: errors.New("x")}))

		assert.Equal(t, contracts.PriorityCritical, record.Priority)
	})

	t.Run("RuleWildcardModule", func(t *testing.T) {
		router := NewRouter(NewInMemoryStore(), WithPriorityRules(
			PriorityRule{EventType: "OrderCreated", Priority: contracts.PriorityLow},
		))

		record := router.Route(context.Background(), sampleInput(errors.New("x")))

		assert.Equal(t, contracts.PriorityLow, record.Priority)
	})
}

func TestRoutePublishesToDLQTopic(t *testing.T) {
	broker := &mockBroker{}
	broker.On("Publish", mock.Anything, "orders.dlq", "evt-1", mock.Anything).Return(nil)

	router := NewRouter(NewInMemoryStore(), WithDLQBroker(broker))

	router.Route(context.Background(), sampleInput(errors.New("x")))

	broker.AssertExpectations(t)
}

func TestRouteFallsBackToFileSink(t *testing.T) {
	broker := &mockBroker{}
	broker.On("Publish", mock.Anything, "orders.dlq", mock.Anything, mock.Anything).
		Return(errors.New("dlq topic unreachable"))

	sinkPath := filepath.Join(t.TempDir(), "dlq.jsonl")
	sink := NewFileSink(sinkPath)

	router := NewRouter(NewInMemoryStore(), WithDLQBroker(broker), WithFileSink(sink))

	record := router.Route(context.Background(), sampleInput(errors.New("x")))
	require.NotNil(t, record, "routing never fails")

	saved, err := sink.ReadAll()
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, record.DLQID, saved[0].DLQID)
	assert.Equal(t, []byte(record.OriginalPayload), []byte(saved[0].OriginalPayload))
}

func TestRouteSurvivesTotalFallbackFailure(t *testing.T) {
	broker := &mockBroker{}
	broker.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("dlq topic unreachable"))

	// Sink path points at a directory so the append fails too.
	sink := NewFileSink(t.TempDir())

	router := NewRouter(NewInMemoryStore(), WithDLQBroker(broker), WithFileSink(sink))

	record := router.Route(context.Background(), sampleInput(errors.New("x")))

	require.NotNil(t, record)
	assert.Equal(t, contracts.StatusPending, record.Status)
}

func TestFileSinkAppendAndReadAll(t *testing.T) {
	sink := NewFileSink(filepath.Join(t.TempDir(), "dlq.jsonl"), WithFsync(true))

	now := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		err := sink.Append(&contracts.DLQRecord{
			DLQID:        fmt.Sprintf("dlq-%d", i),
			Status:       contracts.StatusPending,
			CreatedAt:    now,
			DLQEnteredAt: now,
		})
		require.NoError(t, err)
	}

	records, err := sink.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "dlq-0", records[0].DLQID)
	assert.Equal(t, now, records[0].CreatedAt)
}

func TestFileSinkSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dlq.jsonl")
	sink := NewFileSink(path)

	require.NoError(t, sink.Append(&contracts.DLQRecord{DLQID: "dlq-0", Status: contracts.StatusPending}))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, sink.Append(&contracts.DLQRecord{DLQID: "dlq-1", Status: contracts.StatusPending}))

	records, err := sink.ReadAll()
	assert.Error(t, err, "malformed lines are reported")
	require.Len(t, records, 2)
	assert.Equal(t, "dlq-0", records[0].DLQID)
	assert.Equal(t, "dlq-1", records[1].DLQID)
}

func TestFileSinkMissingFile(t *testing.T) {
	sink := NewFileSink(filepath.Join(t.TempDir(), "absent.jsonl"))

	records, err := sink.ReadAll()

	require.NoError(t, err)
	assert.Empty(t, records)
}
