package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/mimir/internal/config"
)

func TestNewWithWriter(t *testing.T) {
	t.Parallel()

	t.Run("Should emit JSON with sdk attributes", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(&config.Options{LogLevel: "info", LogFormat: "json"}, &buf)

		log.Info("hello")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "hello", entry["msg"])
		assert.Equal(t, "mimir-go", entry["sdk"])
		assert.Equal(t, Version, entry["sdk_version"])
	})

	t.Run("Should respect the configured level", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(&config.Options{LogLevel: "warn", LogFormat: "text"}, &buf)

		log.Info("dropped")
		assert.Empty(t, buf.String())

		log.Warn("kept")
		assert.Contains(t, buf.String(), "kept")
	})

	t.Run("Unknown level defaults to info", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(&config.Options{LogLevel: "verbose", LogFormat: "text"}, &buf)

		log.Debug("dropped")
		assert.Empty(t, buf.String())

		log.Info("kept")
		assert.Contains(t, buf.String(), "kept")
	})

	t.Run("Should panic on nil options", func(t *testing.T) {
		assert.Panics(t, func() {
			NewWithWriter(nil, &bytes.Buffer{})
		})
	})
}

func TestContext(t *testing.T) {
	t.Parallel()

	t.Run("Round-trips a logger through context", func(t *testing.T) {
		var buf bytes.Buffer
		log := slog.New(slog.NewTextHandler(&buf, nil))

		ctx := WithContext(context.Background(), log)
		FromContext(ctx).Info("from context")

		assert.Contains(t, buf.String(), "from context")
	})

	t.Run("Falls back to the default logger", func(t *testing.T) {
		assert.NotNil(t, FromContext(context.Background()))
	})
}
