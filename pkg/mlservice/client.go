package mlservice

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/Imm0bilize/fraud-prediction-service/internal/config"
	"github.com/Imm0bilize/fraud-prediction-service/internal/entities"
	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client scores records on a remote model server speaking the TorchServe
// inference API.
type Client struct {
	conn      *grpc.ClientConn
	modelName string
	tracer    trace.Tracer
	logger    *zap.Logger
}

// NewClient dials the model server and waits until it answers Ping. Only this
// startup check is retried; predictions are single shot.
func NewClient(cfg config.MLServiceConfig, logger *zap.Logger, opts ...grpc.DialOption) (*Client, error) {
	logger = logger.Named("ml-service-client")

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(codec{})),
	}, opts...)

	conn, err := grpc.Dial(net.JoinHostPort(cfg.Host, cfg.Port), opts...)
	if err != nil {
		return nil, errors.Wrap(err, "can`t create connection to ml-service")
	}

	attempts := cfg.ConnectAttempts
	if attempts == 0 {
		attempts = 1
	}

	var health healthResponse
	if err := retry.Do(
		func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			return conn.Invoke(ctx, pingMethod, &empty{}, &health)
		},
		retry.Attempts(attempts),
		retry.Delay(200*time.Millisecond),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("ml-service is not ready", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "ml-service ping failed")
	}

	logger.Info("ml-service is ready", zap.String("health", health.Health))

	return &Client{
		conn:      conn,
		modelName: cfg.ModelName,
		logger:    logger,
		tracer:    otel.Tracer("mlservice-client"),
	}, nil
}

// Score sends the row as a JSON object keyed by column name under the "data"
// input and reads a single number back.
func (c Client) Score(ctx context.Context, row []float64) (float64, error) {
	ctx, span := c.tracer.Start(ctx, "MLServiceClient.Score")
	defer span.End()

	if len(row) != entities.FeatureCount {
		return 0, errors.Errorf("expected %d features, got %d", entities.FeatureCount, len(row))
	}

	fields := make(map[string]float64, len(row))
	for i, name := range entities.RequiredColumns {
		fields[name] = row[i]
	}

	payload, err := json.Marshal(fields)
	if err != nil {
		return 0, errors.Wrap(err, "json.Marshal")
	}

	var (
		response predictionResponse
		request  = &predictionsRequest{
			ModelName: c.modelName,
			Input:     map[string][]byte{"data": payload},
		}
	)

	if err = c.conn.Invoke(ctx, predictionsMethod, request, &response); err != nil {
		span.RecordError(err)
		c.logger.Error("error during make prediction", zap.Error(err))
		return 0, errors.Wrap(err, "error during make prediction")
	}

	score, err := decodePrediction(response.Prediction)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	span.SetAttributes(attribute.Float64("score", score))

	return score, nil
}

// decodePrediction accepts a bare number or a JSON array whose first element
// is one, e.g. `[0.02]` or `[[1]]`.
func decodePrediction(data []byte) (float64, error) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return 0, errors.Wrap(err, "can't decode prediction")
	}

	for {
		switch t := v.(type) {
		case float64:
			return t, nil
		case []interface{}:
			if len(t) == 0 {
				return 0, errors.New("empty prediction")
			}
			v = t[0]
		default:
			return 0, errors.Errorf("unexpected prediction %s", data)
		}
	}
}

func (c Client) Shutdown(_ context.Context) error {
	return c.conn.Close()
}
