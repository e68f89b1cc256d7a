package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Imm0bilize/fraud-prediction-service/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateLogger(t *testing.T) {
	t.Run("writes to rotated file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "service.log")

		logger, err := createLogger(config.LogConfig{Level: "debug", File: file, MaxSizeMB: 1, MaxBackups: 1})
		require.NoError(t, err)

		logger.Info("model loaded")
		_ = logger.Sync()

		data, err := os.ReadFile(file)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"msg":"model loaded"`)
	})

	t.Run("respects level", func(t *testing.T) {
		logger, err := createLogger(config.LogConfig{Level: "warn", Development: true})
		require.NoError(t, err)
		assert.False(t, logger.Core().Enabled(-1))
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := createLogger(config.LogConfig{Level: "loud"})
		assert.Error(t, err)
	})
}
