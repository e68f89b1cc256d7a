package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

const (
	BackendONNX   = "onnx"
	BackendRemote = "remote"
)

type HTTPConfig struct {
	Host            string        `split_words:"true"`
	Port            string        `split_words:"true" default:"8080"`
	RequestTimeout  time.Duration `split_words:"true" default:"5s"`
	ShutdownTimeout time.Duration `split_words:"true" default:"10s"`
}

type ModelConfig struct {
	Backend    string `split_words:"true" default:"onnx"`
	Path       string `split_words:"true" default:"credit_card_fraud_detection_model.onnx"`
	RuntimeLib string `split_words:"true"`
	InputName  string `split_words:"true"`
	OutputName string `split_words:"true"`
}

type MLServiceConfig struct {
	Host            string `split_words:"true"`
	Port            string `split_words:"true"`
	ModelName       string `split_words:"true" default:"fraud_detection"`
	ConnectAttempts uint   `split_words:"true" default:"5"`
}

type OTELConfig struct {
	Host string `split_words:"true"`
	Port string `split_words:"true" default:"4317"`
}

type KafkaConsumerConfig struct {
	Peers     string `split_words:"true"`
	Topic     string `split_words:"true" default:"Transactions"`
	GroupName string `split_words:"true" default:"fraud-prediction-service"`
	DedupSize int    `split_words:"true" default:"10000"`
}

type KafkaProducerConfig struct {
	Peers string `split_words:"true"`
	Topic string `split_words:"true" default:"FraudAlerts"`
}

type LogConfig struct {
	Level       string `split_words:"true" default:"info"`
	Development bool   `split_words:"true"`
	File        string `split_words:"true"`
	MaxSizeMB   int    `split_words:"true" default:"100"`
	MaxBackups  int    `split_words:"true" default:"3"`
}

type Config struct {
	HTTP      HTTPConfig          `envconfig:"HTTP"`
	Model     ModelConfig         `envconfig:"MODEL"`
	MLService MLServiceConfig     `envconfig:"MLSERVICE"`
	OTEL      OTELConfig          `envconfig:"OTEL"`
	Producer  KafkaProducerConfig `envconfig:"PRODUCER"`
	Consumer  KafkaConsumerConfig `envconfig:"CONSUMER"`
	Log       LogConfig           `envconfig:"LOG"`
}

// New reads the given .env files (missing ones are skipped) and then the process
// environment. Variables already set in the environment win over file values.
func New(envFiles ...string) (*Config, error) {
	present := make([]string, 0, len(envFiles))
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}

	if len(present) > 0 {
		if err := godotenv.Load(present...); err != nil {
			return nil, errors.Wrap(err, "error while load from .env file")
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "error while transfer env to config")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c Config) validate() error {
	switch c.Model.Backend {
	case BackendONNX:
		if c.Model.Path == "" {
			return errors.New("MODEL_PATH must be set for the onnx backend")
		}
	case BackendRemote:
		if c.MLService.Host == "" || c.MLService.Port == "" {
			return errors.New("MLSERVICE_HOST and MLSERVICE_PORT must be set for the remote backend")
		}
	default:
		return errors.Errorf("unknown model backend %q", c.Model.Backend)
	}

	if c.Consumer.Peers != "" && c.Consumer.DedupSize <= 0 {
		return errors.New("CONSUMER_DEDUP_SIZE must be positive")
	}

	return nil
}
