package ucase

import (
	"context"

	"github.com/Imm0bilize/fraud-prediction-service/internal/entities"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type AnalyzeUseCase struct {
	tracer    trace.Tracer
	threshold float64
}

var (
	_ AnalyzerUCase = AnalyzeUseCase{}
)

func NewAnalyzeUseCase() *AnalyzeUseCase {
	return &AnalyzeUseCase{
		tracer:    otel.GetTracerProvider().Tracer("AnalyzeUseCase"),
		threshold: entities.FraudThreshold,
	}
}

// Analyze maps a raw model score onto a label.
func (a AnalyzeUseCase) Analyze(ctx context.Context, score float64) entities.Label {
	_, span := a.tracer.Start(ctx, "Analyze")
	defer span.End()

	label := a.binaryClassification(score)
	span.SetAttributes(
		attribute.Float64("score", score),
		attribute.String("label", string(label)),
	)

	return label
}

func (a AnalyzeUseCase) binaryClassification(score float64) entities.Label {
	if score >= a.threshold {
		return entities.LabelFraud
	}

	return entities.LabelNormal
}
