package ucase

import (
	"context"
	"time"

	"github.com/Imm0bilize/fraud-prediction-service/internal/entities"
	"github.com/Imm0bilize/fraud-prediction-service/internal/observability"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type (
	ScorerUCase interface {
		Score(ctx context.Context, row []float64) (float64, error)
	}

	AnalyzerUCase interface {
		Analyze(ctx context.Context, score float64) entities.Label
	}

	NotifierUCase interface {
		Notify(ctx context.Context, request entities.ProcessingRequest, verdict entities.Verdict) error
	}
)

type UseCase struct {
	analyzer AnalyzerUCase
	scorer   ScorerUCase
	notifier NotifierUCase
	metrics  *observability.Metrics
	logger   *zap.Logger

	tracer trace.Tracer
}

// NewUseCase wires the scoring pipeline. A nil notifier disables fraud alerts.
func NewUseCase(
	scorer ScorerUCase,
	analyzer AnalyzerUCase,
	notifier NotifierUCase,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *UseCase {
	if notifier == nil {
		notifier = nopNotifier{}
	}

	return &UseCase{
		analyzer: analyzer,
		scorer:   scorer,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger.Named("ucase"),
		tracer:   otel.GetTracerProvider().Tracer("uCase"),
	}
}

// Classify scores a single record. A failed fraud alert is logged and does not
// fail the classification.
func (u UseCase) Classify(ctx context.Context, request entities.ProcessingRequest) (entities.Verdict, error) {
	ctx, span := u.tracer.Start(ctx, "Classify")
	defer span.End()

	verdict, err := u.classify(ctx, request)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return entities.Verdict{}, err
	}

	if err = u.notify(ctx, request, verdict); err != nil {
		span.RecordError(err)
		u.logger.Error("error sending fraud alert",
			zap.String("requestID", request.RequestID.String()),
			zap.Error(err),
		)
	}

	return verdict, nil
}

// Process handles a transaction from the broker; alert failures are returned.
func (u UseCase) Process(ctx context.Context, request entities.ProcessingRequest) error {
	ctx, span := u.tracer.Start(ctx, "ProcessRequest")
	defer span.End()

	verdict, err := u.classify(ctx, request)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err = u.notify(ctx, request, verdict); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}

func (u UseCase) classify(ctx context.Context, request entities.ProcessingRequest) (entities.Verdict, error) {
	start := time.Now()
	score, err := u.scorer.Score(ctx, request.Record.Row())
	u.metrics.ObserveScoring(time.Since(start), err)
	if err != nil {
		return entities.Verdict{}, errors.Wrap(err, "scorer.Score")
	}

	verdict := entities.Verdict{
		RequestID: request.RequestID,
		Label:     u.analyzer.Analyze(ctx, score),
		Score:     score,
	}
	u.metrics.CountVerdict(verdict.Label)

	u.logger.Debug("transaction classified",
		zap.String("requestID", request.RequestID.String()),
		zap.Float64("score", score),
		zap.String("label", string(verdict.Label)),
	)

	return verdict, nil
}

func (u UseCase) notify(ctx context.Context, request entities.ProcessingRequest, verdict entities.Verdict) error {
	if verdict.Label != entities.LabelFraud {
		return nil
	}

	if err := u.notifier.Notify(ctx, request, verdict); err != nil {
		return errors.Wrap(err, "notifier.Notify")
	}

	return nil
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, entities.ProcessingRequest, entities.Verdict) error {
	return nil
}
