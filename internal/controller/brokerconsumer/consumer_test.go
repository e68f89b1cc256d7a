package brokerconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/Imm0bilize/fraud-prediction-service/internal/entities"
	"github.com/Imm0bilize/fraud-prediction-service/pkg/brokerschemas"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProcessor struct {
	err      error
	requests []entities.ProcessingRequest
}

func (f *fakeProcessor) Process(_ context.Context, msg entities.ProcessingRequest) error {
	f.requests = append(f.requests, msg)
	return f.err
}

// blockingProcessor holds every call until release is closed.
type blockingProcessor struct {
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (b *blockingProcessor) Process(ctx context.Context, _ entities.ProcessingRequest) error {
	b.calls.Add(1)
	b.entered <- struct{}{}
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func features() map[string]json.RawMessage {
	fields := make(map[string]json.RawMessage, entities.FeatureCount)
	for _, name := range entities.RequiredColumns {
		fields[name] = json.RawMessage("1.5")
	}
	return fields
}

func encode(t *testing.T, msg brokerschemas.TransactionMessage) []byte {
	t.Helper()
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	return b
}

func newTestConsumer(t *testing.T, processor MessageProcessor) *KafkaConsumer {
	t.Helper()
	k, err := newKafkaConsumer(nil, "Transactions", 16, zap.NewNop(), processor, nil)
	require.NoError(t, err)
	return k
}

func TestKafkaConsumer_Handle(t *testing.T) {
	t.Run("valid message is processed once", func(t *testing.T) {
		processor := &fakeProcessor{}
		k := newTestConsumer(t, processor)

		msg := encode(t, brokerschemas.TransactionMessage{
			RequestID: uuid.New(),
			ClientID:  "card-7",
			Features:  features(),
		})

		assert.Equal(t, outcomeProcessed, k.handle(context.Background(), msg))
		assert.Equal(t, outcomeDuplicate, k.handle(context.Background(), msg))

		require.Len(t, processor.requests, 1)
		assert.Equal(t, "card-7", processor.requests[0].ClientID)
		assert.Equal(t, 1.5, processor.requests[0].Record[0])
	})

	t.Run("message without request id gets one", func(t *testing.T) {
		processor := &fakeProcessor{}
		k := newTestConsumer(t, processor)

		msg := encode(t, brokerschemas.TransactionMessage{Features: features()})

		assert.Equal(t, outcomeProcessed, k.handle(context.Background(), msg))
		assert.Equal(t, outcomeProcessed, k.handle(context.Background(), msg))
		require.Len(t, processor.requests, 2)
		assert.NotEqual(t, uuid.Nil, processor.requests[0].RequestID)
	})

	t.Run("invalid json is rejected", func(t *testing.T) {
		processor := &fakeProcessor{}
		k := newTestConsumer(t, processor)

		assert.Equal(t, outcomeRejected, k.handle(context.Background(), []byte("{")))
		assert.Empty(t, processor.requests)
	})

	t.Run("missing columns are rejected", func(t *testing.T) {
		processor := &fakeProcessor{}
		k := newTestConsumer(t, processor)

		fields := features()
		delete(fields, "Amount")
		msg := encode(t, brokerschemas.TransactionMessage{RequestID: uuid.New(), Features: fields})

		assert.Equal(t, outcomeRejected, k.handle(context.Background(), msg))
		assert.Empty(t, processor.requests)
	})

	t.Run("failed message can be retried on redelivery", func(t *testing.T) {
		processor := &fakeProcessor{err: errors.New("scorer unavailable")}
		k := newTestConsumer(t, processor)

		msg := encode(t, brokerschemas.TransactionMessage{RequestID: uuid.New(), Features: features()})

		assert.Equal(t, outcomeFailed, k.handle(context.Background(), msg))
		processor.err = nil
		assert.Equal(t, outcomeProcessed, k.handle(context.Background(), msg))
	})

	t.Run("rejected message does not claim its request id", func(t *testing.T) {
		processor := &fakeProcessor{}
		k := newTestConsumer(t, processor)

		id := uuid.New()
		fields := features()
		fields["Amount"] = json.RawMessage(`"abc"`)
		bad := encode(t, brokerschemas.TransactionMessage{RequestID: id, Features: fields})
		good := encode(t, brokerschemas.TransactionMessage{RequestID: id, Features: features()})

		assert.Equal(t, outcomeRejected, k.handle(context.Background(), bad))
		assert.Equal(t, outcomeProcessed, k.handle(context.Background(), good))
		assert.Len(t, processor.requests, 1)
	})

	t.Run("message in flight is not processed twice", func(t *testing.T) {
		processor := &blockingProcessor{
			entered: make(chan struct{}, 2),
			release: make(chan struct{}),
		}
		k := newTestConsumer(t, processor)

		msg := encode(t, brokerschemas.TransactionMessage{RequestID: uuid.New(), Features: features()})

		first := make(chan string, 1)
		go func() { first <- k.handle(context.Background(), msg) }()
		<-processor.entered

		assert.Equal(t, outcomeDuplicate, k.handle(context.Background(), msg))

		close(processor.release)
		assert.Equal(t, outcomeProcessed, <-first)
		assert.Equal(t, int32(1), processor.calls.Load())
	})
}
