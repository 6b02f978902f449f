package manager

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpIDHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(opIDHandler{slog.NewTextHandler(&buf, nil)})

	logger.InfoContext(context.Background(), "no op")
	assert.NotContains(t, buf.String(), "op_id")

	buf.Reset()
	logger.InfoContext(ContextWithOpID(context.Background(), 42), "with op")
	assert.Contains(t, buf.String(), "op_id=42")
}

func TestOpIDHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := WithOpIDHandler(slog.New(slog.NewTextHandler(&buf, nil))).With("component", "manager")

	logger.InfoContext(ContextWithOpID(context.Background(), 456), "with attrs")
	assert.Contains(t, buf.String(), "op_id=456")
	assert.Contains(t, buf.String(), "component=manager")
}

func TestWithOpIDKeepsCallerID(t *testing.T) {
	ctx := ContextWithOpID(context.Background(), 7)
	assert.Equal(t, uint64(7), OpIDFromContext(withOpID(ctx)))

	fresh := withOpID(context.Background())
	assert.NotZero(t, OpIDFromContext(fresh))
	assert.NotEqual(t, OpIDFromContext(fresh), OpIDFromContext(withOpID(context.Background())))
}

func TestWithOpIDHandlerDoesNotDoubleWrap(t *testing.T) {
	var buf bytes.Buffer
	logger := WithOpIDHandler(WithOpIDHandler(slog.New(slog.NewTextHandler(&buf, nil))))

	logger.InfoContext(ContextWithOpID(context.Background(), 9), "once")
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("op_id=9")))
}
