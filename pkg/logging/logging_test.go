package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendCtx(t *testing.T) {
	base := AppendCtx(context.Background(), slog.String("a", "1"))
	child := AppendCtx(base, slog.String("b", "2"))

	assert.Len(t, FromCtx(base), 1)
	assert.Len(t, FromCtx(child), 2)
	assert.Empty(t, FromCtx(context.Background()))
}

func TestLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := Logger(&buf, true, slog.LevelInfo)
	ctx := AppendCtx(context.Background(), slog.Group("app", "name", "dcmjpegctl"))

	log.DebugContext(ctx, "hidden")
	log.With("k", "v").InfoContext(ctx, "shown", slog.Int("n", 3))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "v", rec["k"])
	assert.Equal(t, float64(3), rec["n"])
	assert.Equal(t, map[string]any{"name": "dcmjpegctl"}, rec["app"])
}

func TestLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	log := Logger(&buf, false, slog.LevelDebug)
	log.DebugContext(AppendCtx(context.Background(), slog.String("session", "s1")), "hello")
	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "session=s1")
}

func TestRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctl.log")
	w := RotatingFile(path, 1, 2)
	log := Logger(w, false, slog.LevelInfo)
	log.Info("written")
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "msg=written")
}
