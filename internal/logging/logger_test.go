package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductionLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(newWithWriter(&buf, "weakest-rival", "production"), "engine")

	logger.Debug().Msg("hidden")
	logger.Info().Str("match_id", "m1").Msg("visible")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "visible", entry["message"])
	assert.Equal(t, "engine", entry["component"])
	assert.Equal(t, "weakest-rival", entry["app"])
	assert.Equal(t, "m1", entry["match_id"])
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(&buf, "app", "production")

	ctx := IntoContext(context.Background(), logger)
	ctxLogger := FromContext(ctx)
	ctxLogger.Info().Msg("from ctx")
	assert.Contains(t, buf.String(), "from ctx")

	buf.Reset()
	defaultLogger := FromContext(context.Background())
	defaultLogger.Info().Msg("dropped")
	assert.Empty(t, buf.String())
}

func TestFromContextOrFallsBack(t *testing.T) {
	var fallback, scoped bytes.Buffer
	base := newWithWriter(&fallback, "app", "production")

	fallbackLogger := FromContextOr(context.Background(), base)
	fallbackLogger.Info().Msg("fallback")
	assert.Contains(t, fallback.String(), "fallback")

	ctx := IntoContext(context.Background(), newWithWriter(&scoped, "app", "production"))
	scopedLogger := FromContextOr(ctx, base)
	scopedLogger.Info().Msg("scoped")
	assert.Contains(t, scoped.String(), "scoped")
	assert.NotContains(t, fallback.String(), "scoped")
}
