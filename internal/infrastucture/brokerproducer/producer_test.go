package brokerproducer

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Imm0bilize/fraud-prediction-service/internal/entities"
	"github.com/Imm0bilize/fraud-prediction-service/pkg/brokerschemas"
	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestKafkaProducer_Notify(t *testing.T) {
	mock := mocks.NewSyncProducer(t, sarama.NewConfig())

	var sent brokerschemas.FraudAlertMessage
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		return json.Unmarshal(val, &sent)
	})

	producer := NewKafkaProducer(zap.NewNop(), mock, "FraudAlerts")

	var record entities.FeatureRecord
	record[entities.FeatureCount-1] = 149.62
	request := entities.ProcessingRequest{Record: record, RequestID: uuid.New(), ClientID: "card-42"}
	verdict := entities.Verdict{RequestID: request.RequestID, Label: entities.LabelFraud, Score: 1}

	require.NoError(t, producer.Notify(context.Background(), request, verdict))
	require.NoError(t, producer.Shutdown(context.Background()))

	assert.Equal(t, request.RequestID, sent.RequestID)
	assert.Equal(t, "card-42", sent.ClientID)
	assert.Equal(t, "Fraud", sent.Label)
	assert.Equal(t, entities.FraudThreshold, sent.Threshold)
	assert.Equal(t, 149.62, sent.Features["Amount"])
	assert.False(t, sent.Timestamp.IsZero())
}

func TestKafkaProducer_NotifyError(t *testing.T) {
	mock := mocks.NewSyncProducer(t, sarama.NewConfig())
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	producer := NewKafkaProducer(zap.NewNop(), mock, "FraudAlerts")
	err := producer.Notify(context.Background(), entities.ProcessingRequest{}, entities.Verdict{Label: entities.LabelFraud})

	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, mock.Close())
}
