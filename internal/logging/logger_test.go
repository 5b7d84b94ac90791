package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/neomorfeo/tenantdb/internal/logging"
)

func TestNewLogger_JSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.NewLogger(logging.Config{Component: "server", Level: "info", Output: &buf})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("provisioned", zap.Int64("tenant_id", 7))
	require.NoError(t, logger.Sync())

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "provisioned", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "server", entry["component"])
	assert.EqualValues(t, 7, entry["tenant_id"])
}

func TestNewLogger_InvalidSettings(t *testing.T) {
	_, err := logging.NewLogger(logging.Config{Level: "loud"})
	assert.Error(t, err)

	_, err = logging.NewLogger(logging.Config{Format: "xml"})
	assert.Error(t, err)
}

func TestFromContext(t *testing.T) {
	fallback := zap.NewNop()
	assert.Same(t, fallback, logging.FromContext(context.Background(), fallback))

	scoped := zap.NewExample()
	ctx := logging.WithLogger(context.Background(), scoped)
	assert.Same(t, scoped, logging.FromContext(ctx, fallback))
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	base, err := logging.NewLogger(logging.Config{Output: &buf})
	require.NoError(t, err)

	var scoped *zap.Logger
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logging.RequestLogger(base))
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		scoped = logging.FromContext(r.Context(), nil)
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.NotNil(t, scoped)
	require.NoError(t, base.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "request completed", entry["msg"])
	assert.Equal(t, "GET", entry["http_method"])
	assert.Equal(t, "/ping", entry["path"])
	assert.EqualValues(t, http.StatusTeapot, entry["status"])
	assert.NotEmpty(t, entry["request_id"])
}
