// Package onnxmodel scores feature rows with an ONNX export of the classifier.
package onnxmodel

import (
	"context"
	"os"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Config struct {
	Path       string
	RuntimeLib string
	InputName  string
	OutputName string
	Features   int
}

// ErrClosed is returned by Score once Shutdown has started.
var ErrClosed = errors.New("model is shut down")

// Model is safe for concurrent use.
type Model struct {
	session  *ort.DynamicAdvancedSession
	input    ort.InputOutputInfo
	output   ort.InputOutputInfo
	features int
	tracer   trace.Tracer
	logger   *zap.Logger
	ownsEnv  bool

	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
}

type result struct {
	score float64
	err   error
}

// Load opens the artifact at cfg.Path and prepares an inference session.
func Load(cfg Config, logger *zap.Logger) (*Model, error) {
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, errors.Wrap(err, "can't access model artifact")
	}

	ownsEnv := false
	if !ort.IsInitialized() {
		if cfg.RuntimeLib != "" {
			ort.SetSharedLibraryPath(cfg.RuntimeLib)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, errors.Wrap(err, "can't initialize onnxruntime")
		}
		ownsEnv = true
	}

	m, err := newModel(cfg, logger)
	if err != nil {
		if ownsEnv {
			_ = ort.DestroyEnvironment()
		}
		return nil, err
	}
	m.ownsEnv = ownsEnv

	return m, nil
}

func newModel(cfg Config, logger *zap.Logger) (*Model, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(cfg.Path)
	if err != nil {
		return nil, errors.Wrap(err, "can't read model metadata")
	}

	input, err := pickInput(inputs, cfg.InputName, cfg.Features)
	if err != nil {
		return nil, err
	}

	output, err := pickOutput(outputs, cfg.OutputName)
	if err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(
		cfg.Path, []string{input.Name}, []string{output.Name}, nil,
	)
	if err != nil {
		return nil, errors.Wrap(err, "can't create inference session")
	}

	logger = logger.Named("onnx-model")
	logger.Info("model loaded",
		zap.String("path", cfg.Path),
		zap.String("input", input.Name),
		zap.String("output", output.Name),
	)

	return &Model{
		session:  session,
		input:    input,
		output:   output,
		features: cfg.Features,
		tracer:   otel.Tracer("onnx-model"),
		logger:   logger,
	}, nil
}

// Score runs the model on a single row and returns the first element of the
// selected output. onnxruntime can't be interrupted, so a cancelled context
// only stops the wait.
func (m *Model) Score(ctx context.Context, row []float64) (float64, error) {
	ctx, span := m.tracer.Start(ctx, "ONNXModel.Score")
	defer span.End()

	if len(row) != m.features {
		return 0, errors.Errorf("expected %d features, got %d", m.features, len(row))
	}

	if err := ctx.Err(); err != nil {
		return 0, errors.Wrap(err, "inference skipped")
	}

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return 0, ErrClosed
	}
	m.inflight.Add(1)
	m.mu.RUnlock()

	done := make(chan result, 1)
	go func() {
		defer m.inflight.Done()
		score, err := m.run(row)
		done <- result{score: score, err: err}
	}()

	select {
	case <-ctx.Done():
		span.RecordError(ctx.Err())
		return 0, errors.Wrap(ctx.Err(), "inference interrupted")
	case r := <-done:
		if r.err != nil {
			span.RecordError(r.err)
			return 0, r.err
		}
		span.SetAttributes(attribute.Float64("score", r.score))
		return r.score, nil
	}
}

func (m *Model) run(row []float64) (float64, error) {
	input, err := newInputTensor(m.input.DataType, row)
	if err != nil {
		return 0, errors.Wrap(err, "can't create input tensor")
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}
	if err = m.session.Run([]ort.Value{input}, outputs); err != nil {
		return 0, errors.Wrap(err, "error during inference")
	}
	defer func() {
		if outputs[0] != nil {
			outputs[0].Destroy()
		}
	}()

	return firstElement(outputs[0])
}

// Shutdown rejects new calls, waits for running inferences (including ones
// whose callers already gave up) and then releases the session and, if Load
// created it, the runtime environment. If ctx expires first nothing is
// released.
func (m *Model) Shutdown(ctx context.Context) error {
	if err := m.drain(ctx); err != nil {
		return err
	}

	if err := m.session.Destroy(); err != nil {
		return errors.Wrap(err, "can't destroy inference session")
	}

	if m.ownsEnv {
		if err := ort.DestroyEnvironment(); err != nil {
			return errors.Wrap(err, "can't destroy onnxruntime environment")
		}
	}

	return nil
}

func (m *Model) drain(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	idle := make(chan struct{})
	go func() {
		m.inflight.Wait()
		close(idle)
	}()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		m.logger.Warn("inference still running, session left in place")
		return errors.Wrap(ctx.Err(), "waiting for running inferences")
	}
}
