package brokerproducer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Imm0bilize/fraud-prediction-service/internal/entities"
	"github.com/Imm0bilize/fraud-prediction-service/pkg/brokerschemas"
	"github.com/Shopify/sarama"
	"github.com/pkg/errors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/Shopify/sarama/otelsarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// KafkaProducer publishes fraud alerts.
type KafkaProducer struct {
	topic    string
	tracer   trace.Tracer
	producer sarama.SyncProducer
	logger   *zap.Logger
}

func NewKafkaProducer(logger *zap.Logger, producer sarama.SyncProducer, topic string) *KafkaProducer {
	tracer := otel.Tracer("msbroker")

	return &KafkaProducer{
		tracer:   tracer,
		producer: producer,
		logger:   logger.Named("kafka-producer"),
		topic:    topic,
	}
}

func (k KafkaProducer) Notify(ctx context.Context, request entities.ProcessingRequest, verdict entities.Verdict) error {
	ctx, span := k.tracer.Start(ctx, "msbroker.Send")
	defer span.End()

	timestamp := request.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	msg := brokerschemas.FraudAlertMessage{
		RequestID: verdict.RequestID,
		ClientID:  request.ClientID,
		Label:     string(verdict.Label),
		Score:     verdict.Score,
		Threshold: entities.FraudThreshold,
		Features:  request.Record.Map(),
		Timestamp: timestamp,
	}

	msgBytes, err := json.Marshal(&msg)
	if err != nil {
		return errors.Wrap(err, "json.Marshal")
	}

	producerMsg := &sarama.ProducerMessage{
		Topic:     k.topic,
		Key:       sarama.StringEncoder(msg.RequestID.String()),
		Value:     sarama.ByteEncoder(msgBytes),
		Timestamp: time.Now(),
	}

	otel.GetTextMapPropagator().Inject(ctx, otelsarama.NewProducerMessageCarrier(producerMsg))

	partition, offset, err := k.producer.SendMessage(producerMsg)
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "can't send message into kafka")
	}

	k.logger.Info(
		"fraud alert successfully send to broker",
		zap.String("requestID", msg.RequestID.String()),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)

	return nil
}

func (k KafkaProducer) Shutdown(_ context.Context) error {
	return k.producer.Close()
}
