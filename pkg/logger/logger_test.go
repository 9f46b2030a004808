package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/noah-isme/school-attendance-api/pkg/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("WARN"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel(""))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("verbose"))
}

func TestBuildConfig(t *testing.T) {
	cfg := &config.Config{Env: config.EnvProduction, Log: config.LogConfig{Level: "error", Format: "json"}}
	zapCfg := buildConfig(cfg)
	assert.Equal(t, "json", zapCfg.Encoding)
	assert.Equal(t, zapcore.ErrorLevel, zapCfg.Level.Level())
	assert.False(t, zapCfg.DisableStacktrace)

	cfg = &config.Config{Env: config.EnvDevelopment, Log: config.LogConfig{Format: "console"}}
	zapCfg = buildConfig(cfg)
	assert.Equal(t, "console", zapCfg.Encoding)
	assert.True(t, zapCfg.DisableStacktrace)
}

func TestNew(t *testing.T) {
	l, err := New(&config.Config{Env: config.EnvDevelopment, Log: config.LogConfig{Level: "debug"}})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
}
