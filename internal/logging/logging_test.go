package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	logger, err := New(false)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))

	logger, err = New(true)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestConfig(t *testing.T) {
	cfg := config(false)
	assert.Equal(t, "json", cfg.Encoding)
	assert.Equal(t, "time", cfg.EncoderConfig.TimeKey)
	assert.Equal(t, []string{"stderr"}, cfg.OutputPaths)
}

func TestBuild_BadOutput(t *testing.T) {
	cfg := config(false)
	cfg.OutputPaths = []string{"unknown-scheme://nowhere"}
	_, err := build(cfg)
	assert.ErrorContains(t, err, "failed to initialize logger")
}
