package httpapi

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/Imm0bilize/fraud-prediction-service/internal/entities"
	"github.com/Imm0bilize/fraud-prediction-service/internal/observability"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const HomeMessage = "Credit Card Fraud Prediction API is running"

type Classifier interface {
	Classify(ctx context.Context, request entities.ProcessingRequest) (entities.Verdict, error)
}

type PredictionResponse struct {
	Prediction string `json:"prediction"`
}

type ErrorResponse struct {
	Error   string   `json:"error"`
	Missing []string `json:"missing,omitempty"`
}

type Handler struct {
	classifier Classifier
	metrics    *observability.Metrics
	logger     *zap.Logger
	timeout    time.Duration
}

// NewHandler builds the request handlers. A zero timeout leaves scoring bounded
// only by the client's connection.
func NewHandler(classifier Classifier, timeout time.Duration, metrics *observability.Metrics, logger *zap.Logger) *Handler {
	return &Handler{
		classifier: classifier,
		metrics:    metrics,
		logger:     logger.Named("http"),
		timeout:    timeout,
	}
}

func (h *Handler) Home(c echo.Context) error {
	return c.String(http.StatusOK, HomeMessage)
}

func (h *Handler) Predict(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return h.badRequest(c, &entities.MalformedInputError{Reason: err.Error()})
	}

	record, err := entities.ParseFeatureRecord(body)
	if err != nil {
		return h.badRequest(c, err)
	}

	ctx := c.Request().Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	verdict, err := h.classifier.Classify(ctx, entities.ProcessingRequest{
		Record:    record,
		Timestamp: time.Now().UTC(),
		RequestID: requestID(c),
	})
	if err != nil {
		h.logger.Error("prediction failed",
			zap.String("requestID", c.Response().Header().Get(echo.HeaderXRequestID)),
			zap.Error(err),
		)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}

	return c.JSON(http.StatusOK, PredictionResponse{Prediction: string(verdict.Label)})
}

func (h *Handler) badRequest(c echo.Context, err error) error {
	var (
		missing *entities.MissingColumnsError
		invalid *entities.InvalidValueError
		resp    = ErrorResponse{Error: err.Error()}
		reason  = "malformed"
	)

	switch {
	case errors.Is(err, entities.ErrInputNotProvided):
		reason = "empty"
	case errors.As(err, &missing):
		reason = "missing_columns"
		resp.Missing = missing.Missing
	case errors.As(err, &invalid):
		reason = "invalid_value"
	}

	h.metrics.CountRejected(reason)
	h.logger.Info("input rejected", zap.String("reason", reason), zap.Error(err))

	return c.JSON(http.StatusBadRequest, resp)
}

// requestID reuses the id assigned by the RequestID middleware when it is a UUID.
func requestID(c echo.Context) uuid.UUID {
	if id, err := uuid.Parse(c.Response().Header().Get(echo.HeaderXRequestID)); err == nil {
		return id
	}
	return uuid.New()
}
