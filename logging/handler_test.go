package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frobware/go-tracefabric/logging"
)

func newTestHandler(spec *logging.Spec) (slog.Handler, *bytes.Buffer) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: logging.LevelTrace.ToSlog()})
	return logging.NewFilteringHandler(inner, spec), &buf
}

func TestFilteringHandler_Enabled(t *testing.T) {
	handler, _ := newTestHandler(&logging.Spec{
		BaseLevel: logging.LevelWarn,
		Components: map[string]logging.Level{
			"manager": logging.LevelDebug,
			"claim":   logging.LevelTrace,
		},
	})
	ctx := context.Background()

	assert.False(t, handler.Enabled(ctx, slog.LevelInfo))
	assert.True(t, handler.Enabled(ctx, slog.LevelWarn))

	manager := handler.WithAttrs([]slog.Attr{slog.String("component", "manager")})
	assert.True(t, manager.Enabled(ctx, slog.LevelDebug))
	assert.False(t, manager.Enabled(ctx, logging.LevelTrace.ToSlog()))

	claim := handler.WithAttrs([]slog.Attr{slog.String("component", "claim")})
	assert.True(t, claim.Enabled(ctx, logging.LevelTrace.ToSlog()))
}

// TestFilteringHandler_DottedComponents verifies that:
//
//	Given a spec with an override for "driver" only,
//	When a logger is tagged "driver.tmc",
//	Then it inherits the driver level, and a more specific override wins.
func TestFilteringHandler_DottedComponents(t *testing.T) {
	spec, err := logging.ParseSpec("warn,driver=debug,driver.etm=trace")
	require.NoError(t, err)
	handler, _ := newTestHandler(&spec)
	ctx := context.Background()

	tmc := handler.WithAttrs([]slog.Attr{slog.String("component", "driver.tmc")})
	assert.True(t, tmc.Enabled(ctx, slog.LevelDebug))
	assert.False(t, tmc.Enabled(ctx, logging.LevelTrace.ToSlog()))

	etm := handler.WithAttrs([]slog.Attr{slog.String("component", "driver.etm")})
	assert.True(t, etm.Enabled(ctx, logging.LevelTrace.ToSlog()))

	other := handler.WithAttrs([]slog.Attr{slog.String("component", "drivers")})
	assert.False(t, other.Enabled(ctx, slog.LevelInfo), "prefix match must be on dot boundaries")
}

func TestFilteringHandler_WithGroupKeepsComponent(t *testing.T) {
	handler, _ := newTestHandler(&logging.Spec{
		BaseLevel:  logging.LevelInfo,
		Components: map[string]logging.Level{"manager": logging.LevelDebug},
	})

	grouped := handler.WithAttrs([]slog.Attr{slog.String("component", "manager")}).WithGroup("path")
	assert.True(t, grouped.Enabled(context.Background(), slog.LevelDebug))
}

func TestNew_Integration(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{
		CLISpec: "warn,manager=debug,store=trace",
		Output:  &buf,
	})
	require.NoError(t, err)

	logger.Debug("root debug")
	assert.Empty(t, buf.String())

	logger.With("component", "manager").Debug("manager debug")
	assert.Contains(t, buf.String(), "manager debug")

	buf.Reset()
	logger.With("component", "store").Log(context.Background(), logging.LevelTrace.ToSlog(), "store trace")
	assert.Contains(t, buf.String(), "store trace")
	assert.Contains(t, buf.String(), "level=TRACE")

	buf.Reset()
	logger.With("component", "sink").Info("sink info")
	assert.Empty(t, buf.String())
}

func TestNew_Precedence(t *testing.T) {
	tests := []struct {
		name      string
		opts      logging.Options
		wantLevel logging.Level
	}{
		{
			name:      "cli over env",
			opts:      logging.Options{CLISpec: "error", EnvSpec: "debug", ConfigSpec: "info"},
			wantLevel: logging.LevelError,
		},
		{
			name:      "env over config",
			opts:      logging.Options{EnvSpec: "debug", ConfigSpec: "info"},
			wantLevel: logging.LevelDebug,
		},
		{
			name:      "config when nothing else",
			opts:      logging.Options{ConfigSpec: "warn"},
			wantLevel: logging.LevelWarn,
		},
		{
			name:      "default is info",
			opts:      logging.Options{},
			wantLevel: logging.LevelInfo,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.opts.Output = &buf
			logger, err := logging.New(tt.opts)
			require.NoError(t, err)
			ctx := context.Background()

			logger.Log(ctx, tt.wantLevel.ToSlog(), "at level")
			assert.NotEmpty(t, buf.String())

			buf.Reset()
			logger.Log(ctx, (tt.wantLevel - 4).ToSlog(), "below level")
			assert.Empty(t, buf.String())
		})
	}
}

func TestNew_InvalidSpec(t *testing.T) {
	_, err := logging.New(logging.Options{CLISpec: "loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log spec")
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{
		Format: logging.FormatJSON,
		Output: &buf,
	})
	require.NoError(t, err)

	logger.Info("path enabled", "sink", "tmc0")
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "{"))
	assert.Contains(t, out, `"msg":"path enabled"`)
	assert.Contains(t, out, `"sink":"tmc0"`)
}
