package brokerconsumer

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/Imm0bilize/fraud-prediction-service/internal/config"
	"github.com/Imm0bilize/fraud-prediction-service/internal/entities"
	"github.com/Imm0bilize/fraud-prediction-service/internal/observability"
	"github.com/Imm0bilize/fraud-prediction-service/pkg/brokerschemas"
	"github.com/Shopify/sarama"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/Shopify/sarama/otelsarama"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

type MessageProcessor interface {
	Process(ctx context.Context, msg entities.ProcessingRequest) error
}

// Message outcomes reported to metrics.
const (
	outcomeProcessed = "processed"
	outcomeDuplicate = "duplicate"
	outcomeRejected  = "rejected"
	outcomeFailed    = "failed"
)

// KafkaConsumer scores transactions read from a topic. Redelivered messages
// whose request ID was already processed are skipped.
type KafkaConsumer struct {
	logger    *zap.Logger
	processor MessageProcessor
	metrics   *observability.Metrics
	group     sarama.ConsumerGroup
	topic     string
	seen      *lru.Cache[uuid.UUID, struct{}]
}

func NewKafkaConsumer(
	cfg config.KafkaConsumerConfig, logger *zap.Logger, processor MessageProcessor, metrics *observability.Metrics,
) (*KafkaConsumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_3_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.BalanceStrategyRoundRobin}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Group.Session.Timeout = 20 * time.Second
	saramaConfig.Consumer.Group.Heartbeat.Interval = 6 * time.Second
	saramaConfig.Consumer.MaxProcessingTime = 3 * time.Second

	group, err := sarama.NewConsumerGroup(strings.Split(cfg.Peers, ","), cfg.GroupName, saramaConfig)
	if err != nil {
		return nil, errors.Wrap(err, "error creating consumer group client")
	}

	consumer, err := newKafkaConsumer(group, cfg.Topic, cfg.DedupSize, logger, processor, metrics)
	if err != nil {
		_ = group.Close()
		return nil, err
	}

	return consumer, nil
}

func newKafkaConsumer(
	group sarama.ConsumerGroup,
	topic string,
	dedupSize int,
	logger *zap.Logger,
	processor MessageProcessor,
	metrics *observability.Metrics,
) (*KafkaConsumer, error) {
	seen, err := lru.New[uuid.UUID, struct{}](dedupSize)
	if err != nil {
		return nil, errors.Wrap(err, "error creating dedup cache")
	}

	return &KafkaConsumer{
		logger:    logger.Named("kafka-consumer"),
		group:     group,
		processor: processor,
		metrics:   metrics,
		topic:     topic,
		seen:      seen,
	}, nil
}

// Run consumes until ctx is cancelled or the group fails.
func (k *KafkaConsumer) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		for {
			if err := k.group.Consume(ctx, []string{k.topic}, k); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				k.logger.Error("error from consumer", zap.Error(err))
				errChan <- err
				return
			}

			if ctx.Err() != nil {
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		k.logger.Info("terminating consume: context canceled")
	case err := <-errChan:
		_ = k.group.Close()
		return err
	}

	if err := k.group.Close(); err != nil {
		return errors.Wrap(err, "error closing consumer group")
	}

	return nil
}

func (k *KafkaConsumer) Setup(sarama.ConsumerGroupSession) error {
	k.logger.Debug("setup")
	return nil
}

func (k *KafkaConsumer) Cleanup(sarama.ConsumerGroupSession) error {
	k.logger.Debug("cleanup")
	return nil
}

func (k *KafkaConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			ctx := otel.GetTextMapPropagator().Extract(
				session.Context(), otelsarama.NewConsumerMessageCarrier(message),
			)

			k.metrics.CountMessage(k.handle(ctx, message.Value))
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// handle processes one message and returns its outcome. Failed messages are
// logged and not redelivered.
func (k *KafkaConsumer) handle(ctx context.Context, value []byte) string {
	var msg brokerschemas.TransactionMessage

	if err := json.Unmarshal(value, &msg); err != nil {
		k.logger.Error(
			"error unmarshalling Kafka message",
			zap.ByteString("data", value),
			zap.Error(err),
		)
		return outcomeRejected
	}

	if msg.RequestID == uuid.Nil {
		msg.RequestID = uuid.New()
	}

	// The ID is claimed before processing so concurrent claims of the same
	// partition after a rebalance score it once. Unsuccessful attempts release it.
	if found, _ := k.seen.ContainsOrAdd(msg.RequestID, struct{}{}); found {
		k.logger.Debug("skipping duplicate message", zap.String("requestID", msg.RequestID.String()))
		return outcomeDuplicate
	}

	record, err := entities.RecordFromFields(msg.Features)
	if err != nil {
		k.seen.Remove(msg.RequestID)
		k.logger.Warn("invalid transaction",
			zap.String("requestID", msg.RequestID.String()),
			zap.Error(err),
		)
		return outcomeRejected
	}

	if err = k.processor.Process(ctx, entities.ProcessingRequest{
		Record:    record,
		Timestamp: msg.Timestamp,
		RequestID: msg.RequestID,
		ClientID:  msg.ClientID,
	}); err != nil {
		k.seen.Remove(msg.RequestID)
		k.logger.Error("error processing request",
			zap.String("requestID", msg.RequestID.String()),
			zap.Error(err),
		)
		return outcomeFailed
	}

	return outcomeProcessed
}
