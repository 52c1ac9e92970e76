package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/stackadvisor/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(NewDefaultConfig(), nil)
	require.NoError(t, err)
	assert.True(t, logger.Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Enabled(zapcore.DebugLevel))
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad format", func(c *Config) { c.Format = "xml" }},
		{"no outputs", func(c *Config) { c.Output = OutputConfig{} }},
		{"zero tick", func(c *Config) { c.Sampling.Tick = 0 }},
		{"bad pattern", func(c *Config) { c.Redaction.Patterns = []string{"("} }},
		{"empty field value", func(c *Config) { c.Fields["env"] = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			_, err := NewLogger(cfg, nil)
			assert.Error(t, err)
		})
	}
}

func TestFromObservability(t *testing.T) {
	cfg, err := FromObservability(config.ObservabilityConfig{
		LogLevel:        "trace",
		LogFormat:       "console",
		ServiceName:     "advisor-test",
		EnableTelemetry: true,
	})
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.True(t, cfg.Output.OTEL)
	assert.Equal(t, "advisor-test", cfg.Fields["service"])

	_, err = FromObservability(config.ObservabilityConfig{LogLevel: "loud"})
	assert.Error(t, err)
}

func TestContextFields(t *testing.T) {
	tl := NewTestLogger()

	tp := trace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	ctx = WithSessionID(ctx, "sess-1")
	ctx = WithRequestID(ctx, "req_2")

	tl.Info(ctx, "stage finished", Stage("intake"), Iteration(1))

	tl.AssertLogged(t, zapcore.InfoLevel, "stage finished")
	tl.AssertField(t, "stage finished", "session.id", "sess-1")
	tl.AssertField(t, "stage finished", "request.id", "req_2")
	tl.AssertField(t, "stage finished", "stage", "intake")
	tl.AssertField(t, "stage finished", "iteration", int64(1))
	tl.AssertField(t, "stage finished", "trace_id", span.SpanContext().TraceID().String())
}

func TestWithSessionID_PanicsOnInvalid(t *testing.T) {
	assert.Panics(t, func() { WithSessionID(context.Background(), "") })
	assert.Panics(t, func() { WithSessionID(context.Background(), "bad id!") })
	assert.NotPanics(t, func() { WithSessionID(context.Background(), "0b6f-44aa") })
}

func TestValidID(t *testing.T) {
	assert.True(t, ValidID("6f1c2b9e-4d1a-4c8e-9a55-0d2f3e4b5a6c"))
	assert.True(t, ValidID("req_42"))
	assert.False(t, ValidID(""))
	assert.False(t, ValidID("a b"))
	assert.False(t, ValidID(strings.Repeat("x", 129)))
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	FromContext(ctx).Warn(ctx, "fallback used")
	tl.AssertLogged(t, zapcore.WarnLevel, "fallback used")
}

func TestRedactingEncoder(t *testing.T) {
	enc, err := NewRedactingEncoder(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	buf, err := enc.EncodeEntry(zapcore.Entry{Message: "call"}, []zap.Field{
		zap.String("api_key", "AIzaSyD-very-secret"),
		zap.String("prompt", "use Authorization: Bearer abc.def for sk-abcdefghijklmnopqrstuv"),
		zap.String("stage", "intake"),
	})
	require.NoError(t, err)
	out := buf.String()

	assert.NotContains(t, out, "AIzaSyD-very-secret")
	assert.NotContains(t, out, "abc.def")
	assert.NotContains(t, out, "sk-abcdefghijklmnopqrstuv")
	assert.Contains(t, out, `"stage":"intake"`)
	assert.True(t, bytes.Contains(buf.Bytes(), []byte("[REDACTED]")))
}

func TestRedactedString(t *testing.T) {
	f := Secret("key", config.Secret("12345"))
	assert.Equal(t, "[REDACTED:5]", f.String)
}
