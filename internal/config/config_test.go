package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	cfg, err := New(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTP.Port)
	assert.Equal(t, 5*time.Second, cfg.HTTP.RequestTimeout)
	assert.Equal(t, BackendONNX, cfg.Model.Backend)
	assert.Equal(t, "credit_card_fraud_detection_model.onnx", cfg.Model.Path)
	assert.Equal(t, "FraudAlerts", cfg.Producer.Topic)
	assert.Equal(t, "Transactions", cfg.Consumer.Topic)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestNew_EnvFileAndOverrides(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env.public")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"HTTP_PORT=9090\nMODEL_BACKEND=remote\nMLSERVICE_HOST=localhost\nMLSERVICE_PORT=7070\n",
	), 0o600))

	t.Setenv("MLSERVICE_MODEL_NAME", "ccfraud")
	t.Cleanup(func() {
		for _, k := range []string{"MODEL_BACKEND", "MLSERVICE_HOST", "MLSERVICE_PORT", "HTTP_PORT"} {
			_ = os.Unsetenv(k)
		}
	})

	cfg, err := New(envFile)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.HTTP.Port)
	assert.Equal(t, BackendRemote, cfg.Model.Backend)
	assert.Equal(t, "localhost", cfg.MLService.Host)
	assert.Equal(t, "7070", cfg.MLService.Port)
	assert.Equal(t, "ccfraud", cfg.MLService.ModelName)
}

func TestNew_Invalid(t *testing.T) {
	t.Run("unknown backend", func(t *testing.T) {
		t.Setenv("MODEL_BACKEND", "pickle")
		_, err := New()
		assert.Error(t, err)
	})

	t.Run("remote backend without address", func(t *testing.T) {
		t.Setenv("MODEL_BACKEND", BackendRemote)
		t.Setenv("MLSERVICE_HOST", "")
		_, err := New()
		assert.Error(t, err)
	})

	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("HTTP_REQUEST_TIMEOUT", "soon")
		_, err := New()
		assert.Error(t, err)
	})
}
