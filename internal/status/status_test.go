package status

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestStatus_Codes(t *testing.T) {
	tests := []struct {
		status Status
		code   int
		name   string
	}{
		{Initializing, 2, "initializing"},
		{ValidationFailed, -2, "validation-failed"},
		{Running, 3, "running"},
		{RuntimeError, -3, "runtime-error"},
		{Ready, 4, "ready"},
		{OutOfMemory, -4, "out-of-memory"},
		{Finished, 10, "finished"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, int(tt.status))
			assert.Equal(t, tt.name, tt.status.String())
		})
	}
	assert.Equal(t, "status(7)", Status(7).String())
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, Finished.Terminal())
	assert.True(t, OutOfMemory.Terminal())
	assert.False(t, Running.Terminal())
	assert.False(t, Ready.Terminal())
}

func TestRecorder(t *testing.T) {
	var r Recorder
	ctx := context.Background()
	require.NoError(t, r.Report(ctx, 1, Initializing))
	require.NoError(t, r.Report(ctx, 2, Initializing))
	require.NoError(t, r.Report(ctx, 1, Finished))

	assert.Equal(t, []Status{Initializing, Finished}, r.Statuses(1))
	assert.Len(t, r.Reports(), 3)
}

func TestLogReporter(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	require.NoError(t, LogReporter{Logger: zap.New(core)}.Report(context.Background(), 5, Running))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, int64(5), fields["task"])
	assert.Equal(t, "running", fields["status"])
}

// ============================================================================
// HTTPReporter
// ============================================================================

func TestHTTPReporter_PostsStatus(t *testing.T) {
	var got map[string]any
	var contentType, path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		contentType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		_, _ = w.Write([]byte(`{"error_code": 200, "error_msg": ""}`))
	}))
	defer server.Close()

	rep := NewHTTPReporter(server.URL+"/", "worker-1", nil, nil)
	require.NoError(t, rep.Report(context.Background(), 42, OutOfMemory))

	assert.Equal(t, ReportPath, path)
	assert.Equal(t, "application/json;charset=UTF-8", contentType)
	assert.Equal(t, map[string]any{"taskId": float64(42), "uuid": "worker-1", "status": float64(-4)}, got)
}

func TestHTTPReporter_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error_code": 500, "error_msg": "unknown task"}`))
	}))
	defer server.Close()

	core, logs := observer.New(zap.ErrorLevel)
	rep := NewHTTPReporter(server.URL, "w", nil, zap.New(core))

	err := rep.Report(context.Background(), 1, Finished)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown task")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "unknown task", logs.All()[0].ContextMap()["error_msg"])
}

func TestHTTPReporter_Unavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	err := NewHTTPReporter(server.URL, "w", nil, nil).Report(context.Background(), 1, Finished)
	assert.ErrorContains(t, err, "HTTP 502")
}

func TestHTTPReporter_TransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	err := NewHTTPReporter(url, "w", nil, nil).Report(context.Background(), 1, Finished)
	assert.Error(t, err)
}
