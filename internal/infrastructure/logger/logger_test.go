package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)
	assert.NotEmpty(t, cfg.TimeFormat)
}

func TestProductionConfig(t *testing.T) {
	cfg := ProductionConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)
	assert.NotEmpty(t, cfg.TimeFormat)
}

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{name: "default config", cfg: DefaultConfig()},
		{name: "production config", cfg: ProductionConfig()},
		{
			name: "debug console",
			cfg: &Config{
				Level:      "debug",
				Format:     "console",
				Output:     "stdout",
				TimeFormat: "2006-01-02T15:04:05Z07:00",
			},
		},
		{
			name: "info json",
			cfg: &Config{
				Level:      "info",
				Format:     "json",
				Output:     "stdout",
				TimeFormat: "2006-01-02T15:04:05Z07:00",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.cfg)
			require.NoError(t, err)
			assert.NotNil(t, log)
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"fatal", zapcore.FatalLevel},
		{"unknown", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.level))
		})
	}
}

func TestSync(t *testing.T) {
	log, err := New(DefaultConfig())
	require.NoError(t, err)

	// stdout may refuse Sync depending on platform; it just must not panic.
	_ = Sync(log)
}

func TestNewWriter(t *testing.T) {
	for _, output := range []string{"stdout", "stderr", "STDOUT"} {
		t.Run(output, func(t *testing.T) {
			assert.NotNil(t, newWriter(output))
		})
	}

	t.Run("file path", func(t *testing.T) {
		tmpFile, err := os.CreateTemp("", "ledger-log-*.log")
		require.NoError(t, err)
		defer os.Remove(tmpFile.Name())
		tmpFile.Close()

		assert.NotNil(t, newWriter(tmpFile.Name()))
	})
}

func TestNewEncoder(t *testing.T) {
	for _, format := range []string{"console", "json"} {
		t.Run(format, func(t *testing.T) {
			cfg := &Config{
				Level:      "info",
				Format:     format,
				Output:     "stdout",
				TimeFormat: "2006-01-02T15:04:05Z07:00",
			}
			assert.NotNil(t, newEncoder(cfg))
		})
	}
}

func TestJSONOutputShape(t *testing.T) {
	var buf bytes.Buffer

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		MessageKey:     "msg",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(&buf),
		zapcore.InfoLevel,
	)
	log := zap.New(core)

	log.Info("stock moves recorded",
		zap.String("sale_id", "8f14e45f-ceea-4e2a-9f7c-0d5d1f1f9b6a"),
		zap.Int("moves", 3),
	)

	var output map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &output))

	assert.Equal(t, "stock moves recorded", output["msg"])
	assert.Equal(t, "info", output["level"])
	assert.Equal(t, "8f14e45f-ceea-4e2a-9f7c-0d5d1f1f9b6a", output["sale_id"])
	assert.Equal(t, float64(3), output["moves"])
}

func TestLogLevelsFilter(t *testing.T) {
	var buf bytes.Buffer

	encoderConfig := zapcore.EncoderConfig{
		LevelKey:    "level",
		MessageKey:  "msg",
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(&buf),
		zapcore.DebugLevel,
	)
	log := zap.New(core)

	log.Debug("allocation plan built")
	assert.True(t, strings.Contains(buf.String(), "allocation plan built"))

	buf.Reset()

	core = zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(&buf),
		zapcore.InfoLevel,
	)
	log = zap.New(core)

	log.Debug("allocation plan built")
	assert.False(t, strings.Contains(buf.String(), "allocation plan built"))

	log.Info("consumption committed")
	assert.True(t, strings.Contains(buf.String(), "consumption committed"))
}
