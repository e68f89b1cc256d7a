package app

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Imm0bilize/fraud-prediction-service/internal/config"
	"github.com/Imm0bilize/fraud-prediction-service/internal/controller/brokerconsumer"
	"github.com/Imm0bilize/fraud-prediction-service/internal/controller/httpapi"
	"github.com/Imm0bilize/fraud-prediction-service/internal/entities"
	"github.com/Imm0bilize/fraud-prediction-service/internal/infrastucture/brokerproducer"
	"github.com/Imm0bilize/fraud-prediction-service/internal/observability"
	"github.com/Imm0bilize/fraud-prediction-service/internal/ucase"
	"github.com/Imm0bilize/fraud-prediction-service/pkg/mlservice"
	"github.com/Imm0bilize/fraud-prediction-service/pkg/onnxmodel"
	"github.com/Shopify/sarama"
	"github.com/pkg/errors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/Shopify/sarama/otelsarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

const serviceName = "fraud-prediction-service"

// Model is the loaded scoring function together with its release hook.
type Model interface {
	ucase.ScorerUCase
	Shutdown(ctx context.Context) error
}

func createTraceProvider(cfg config.OTELConfig, logger *zap.Logger) (func(context.Context) error, error) {
	if cfg.Host == "" {
		logger.Debug("tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptrace.New(
		context.Background(),
		otlptracegrpc.NewClient(
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithEndpoint(net.JoinHostPort(cfg.Host, cfg.Port)),
		),
	)
	if err != nil {
		return nil, errors.Wrap(err, "error creating trace exporter")
	}

	resources, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("library.language", "go"),
		),
	)
	if err != nil {
		logger.Warn("could not set resources", zap.Error(err))
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}))
	otel.SetTracerProvider(
		sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(resources),
		),
	)

	return exporter.Shutdown, nil
}

func createKafkaProducer(cfg config.KafkaProducerConfig) (sarama.SyncProducer, error) {
	kfkCfg := sarama.NewConfig()
	kfkCfg.Version = sarama.V3_3_0_0
	kfkCfg.Producer.Return.Successes = true
	kfkCfg.Producer.RequiredAcks = sarama.WaitForAll

	producer, err := sarama.NewSyncProducer(strings.Split(cfg.Peers, ","), kfkCfg)
	if err != nil {
		return nil, errors.Wrap(err, "error during create producer")
	}

	producer = otelsarama.WrapSyncProducer(kfkCfg, producer)

	return producer, nil
}

// loadModel acquires the Model Handle. Any error here must stop the process.
func loadModel(cfg *config.Config, logger *zap.Logger) (Model, error) {
	switch cfg.Model.Backend {
	case config.BackendONNX:
		model, err := onnxmodel.Load(onnxmodel.Config{
			Path:       cfg.Model.Path,
			RuntimeLib: cfg.Model.RuntimeLib,
			InputName:  cfg.Model.InputName,
			OutputName: cfg.Model.OutputName,
			Features:   entities.FeatureCount,
		}, logger)
		if err != nil {
			return nil, errors.Wrapf(err, "error loading model from %s", cfg.Model.Path)
		}
		return model, nil
	case config.BackendRemote:
		client, err := mlservice.NewClient(cfg.MLService, logger)
		if err != nil {
			return nil, errors.Wrap(err, "error creating ml service client")
		}
		return client, nil
	default:
		return nil, errors.Errorf("unknown model backend %q", cfg.Model.Backend)
	}
}

func Run(cfg *config.Config) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	logger, err := createLogger(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Debug("logger initialized")

	shutdownTraceProvider, err := createTraceProvider(cfg.OTEL, logger)
	if err != nil {
		logger.Fatal("error creating trace provider", zap.Error(err))
	}

	model, err := loadModel(cfg, logger)
	if err != nil {
		logger.Fatal("error loading model", zap.String("backend", cfg.Model.Backend), zap.Error(err))
	}
	logger.Info("model ready", zap.String("backend", cfg.Model.Backend))

	metrics := observability.NewMetrics()

	var (
		notifier ucase.NotifierUCase
		producer *brokerproducer.KafkaProducer
	)
	if cfg.Producer.Peers != "" {
		syncProducer, err := createKafkaProducer(cfg.Producer)
		if err != nil {
			logger.Fatal("error creating Kafka producer", zap.Error(err))
		}
		producer = brokerproducer.NewKafkaProducer(logger, syncProducer, cfg.Producer.Topic)
		notifier = producer
		logger.Debug("kafka producer created", zap.String("topic", cfg.Producer.Topic))
	}

	uCase := ucase.NewUseCase(
		model,
		ucase.NewAnalyzeUseCase(),
		notifier,
		metrics,
		logger,
	)

	errChan := make(chan error, 2)
	consumerDone := make(chan struct{})

	if cfg.Consumer.Peers == "" {
		close(consumerDone)
	} else {
		consumer, err := brokerconsumer.NewKafkaConsumer(cfg.Consumer, logger, uCase, metrics)
		if err != nil {
			logger.Fatal("error creating Kafka consumer", zap.Error(err))
		}

		go func() {
			defer close(consumerDone)
			if err := consumer.Run(ctx); err != nil {
				errChan <- errors.Wrap(err, "consumer")
			}
		}()

		logger.Debug("kafka consumer run", zap.String("topic", cfg.Consumer.Topic))
	}

	server := httpapi.NewServer(
		cfg.HTTP,
		httpapi.NewHandler(uCase, cfg.HTTP.RequestTimeout, metrics, logger),
		metrics,
		logger,
	)

	go func() {
		if err := server.Run(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errChan:
		logger.Error("stopping after failure", zap.Error(err))
		cancel()
	}

	shCtx, shCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shCancel()

	if err = server.Shutdown(shCtx); err != nil {
		logger.Error("error stopping http server", zap.Error(err))
	}

	select {
	case <-consumerDone:
	case <-shCtx.Done():
		logger.Warn("kafka consumer did not stop in time")
	}

	if producer != nil {
		if err = producer.Shutdown(shCtx); err != nil {
			logger.Error("error stopping kafka producer", zap.Error(err))
		}
	}

	if err = model.Shutdown(shCtx); err != nil {
		logger.Error("error releasing model", zap.Error(err))
	}

	if err = shutdownTraceProvider(shCtx); err != nil {
		logger.Error("error stopping trace provider", zap.Error(err))
	}
}
