package plugin

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func httpRequestNode(cfg map[string]any, children ...*Node) *Node {
	base := map[string]any{
		"method":         "GET",
		"url":            "http://127.0.0.1:1",
		"headers":        [][]string{},
		"body_type":      BodyRaw,
		"raw_body":       "",
		"connectTimeout": 0,
	}
	for k, v := range cfg {
		base[k] = v
	}
	return newNode(TypeHTTPRequest, base, children...)
}

// echoServer answers with a JSON document describing the request it got.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Served-By", "echo")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"method":       r.Method,
			"path":         r.URL.Path,
			"content_type": r.Header.Get("Content-Type"),
			"body":         string(body),
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestHTTPRequest_Validate(t *testing.T) {
	env, _ := newTestEnv(t)

	tests := []struct {
		name    string
		cfg     map[string]any
		wantErr bool
	}{
		{name: "get", cfg: map[string]any{}},
		{name: "lower case method", cfg: map[string]any{"method": "post"}},
		{name: "unsupported method", cfg: map[string]any{"method": "DELETE"}, wantErr: true},
		{name: "empty url", cfg: map[string]any{"url": ""}, wantErr: true},
		{name: "urlencoded without pairs", cfg: map[string]any{"body_type": BodyURLEncoded}, wantErr: true},
		{name: "multipart without fields", cfg: map[string]any{"body_type": BodyMultipart}, wantErr: true},
		{name: "negative timeout", cfg: map[string]any{"connectTimeout": -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &HTTPRequest{Base: NewBase(httpRequestNode(tt.cfg), env, 0)}
			err := p.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHTTPRequest_DefaultContentType(t *testing.T) {
	env, _ := newTestEnv(t)

	tests := []struct {
		name string
		cfg  map[string]any
		want string
	}{
		{
			name: "urlencoded",
			cfg:  map[string]any{"body_type": BodyURLEncoded, "form_urlencoded": [][]string{}},
			want: "application/x-www-form-urlencoded; charset=UTF-8",
		},
		{
			name: "raw",
			cfg:  map[string]any{},
			want: "text/plain; charset=UTF-8",
		},
		{
			name: "explicit header wins",
			cfg:  map[string]any{"headers": [][]string{{"content-type", "application/json"}}},
			want: "application/json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := httpRequestNode(tt.cfg)
			p := &HTTPRequest{Base: NewBase(n, env, 1)}
			require.NoError(t, p.Prepare(n.Value))
			assert.Equal(t, tt.want, p.Header().Get("Content-Type"))
		})
	}
}

func TestHTTPRequest_Get(t *testing.T) {
	server := echoServer(t)
	env, runLog := newTestEnv(t)
	env.Store.Set("base", server.URL)

	req := buildTree(t, env, httpRequestNode(map[string]any{
		"url":     "${base}/users",
		"headers": [][]string{{"X-Trace", "abc"}},
	}), 1)
	require.NoError(t, Run(context.Background(), req))

	entries := runLog.all()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.True(t, e.Success)
	assert.Equal(t, 200, e.Code)
	assert.Equal(t, "request succeeded;", e.Failure)
	assert.Equal(t, server.URL+"/users", e.URL)
	assert.Equal(t, 1, e.VU)
	assert.Equal(t, 7, e.WorkerID)
	assert.GreaterOrEqual(t, e.End, e.Start)

	var reqHeader map[string]string
	require.NoError(t, json.Unmarshal([]byte(e.RequestHeader), &reqHeader))
	assert.Equal(t, "abc", reqHeader["X-Trace"])
	assert.Positive(t, e.RequestHeaderLen)

	var respHeader map[string]string
	require.NoError(t, json.Unmarshal([]byte(e.ResponseHeader), &respHeader))
	assert.Equal(t, "echo", respHeader["X-Served-By"])

	assert.Contains(t, e.ResponseBody, `"path":"/users"`)
	assert.Equal(t, len(e.ResponseBody), e.ResponseBodyLen)
	assert.Equal(t, e.ResponseHeaderLen+e.ResponseBodyLen, e.ResponseLen)

	ex := req.(Exchanger).Exchange()
	require.NotNil(t, ex)
	assert.Equal(t, 200, ex.StatusCode)
	assert.Equal(t, "echo", ex.ResponseHeader.Get("X-Served-By"))
}

func TestHTTPRequest_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	env, runLog := newTestEnv(t)
	req := buildTree(t, env, httpRequestNode(map[string]any{"url": server.URL + "/missing"}), 1)

	require.NoError(t, Run(context.Background(), req))

	entries := runLog.all()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)
	assert.Equal(t, 404, entries[0].Code)
	assert.Equal(t, "request failed, status code 404;", entries[0].Failure)
}

func TestHTTPRequest_ServerErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	env, runLog := newTestEnv(t)
	req := buildTree(t, env, httpRequestNode(map[string]any{"url": server.URL}), 1)

	require.NoError(t, Run(context.Background(), req))

	entries := runLog.all()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)
	assert.Equal(t, 503, entries[0].Code)
	assert.Equal(t, "request failed, status code 503;", entries[0].Failure)
	assert.Equal(t, 503, req.(Exchanger).Exchange().StatusCode)
}

func TestHTTPRequest_TransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	env, runLog := newTestEnv(t)
	req := buildTree(t, env, httpRequestNode(map[string]any{"url": url}), 1)

	require.NoError(t, Run(context.Background(), req))

	entries := runLog.all()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)
	assert.Equal(t, -1, entries[0].Code)
	assert.True(t, strings.HasPrefix(entries[0].Failure, "request error: "))
	assert.Equal(t, -1, req.(Exchanger).Exchange().StatusCode)
}

func TestHTTPRequest_PostURLEncoded(t *testing.T) {
	server := echoServer(t)
	env, runLog := newTestEnv(t)
	env.Store.Set("name", "a b")

	req := buildTree(t, env, httpRequestNode(map[string]any{
		"method":          "post",
		"url":             server.URL,
		"body_type":       BodyURLEncoded,
		"form_urlencoded": [][]string{{"name", "${name}"}, {"x", "1&2"}},
	}), 1)
	require.NoError(t, Run(context.Background(), req))

	entries := runLog.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "name=a+b&x=1%262", entries[0].RequestBody)
	assert.Equal(t, len("name=a+b&x=1%262"), entries[0].RequestBodyLen)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(entries[0].ResponseBody), &got))
	assert.Equal(t, "POST", got["method"])
	assert.Equal(t, "name=a+b&x=1%262", got["body"])
	assert.Equal(t, "application/x-www-form-urlencoded; charset=UTF-8", got["content_type"])
}

func TestHTTPRequest_PostRaw(t *testing.T) {
	server := echoServer(t)
	env, runLog := newTestEnv(t)

	req := buildTree(t, env, httpRequestNode(map[string]any{
		"method":   "POST",
		"url":      server.URL,
		"headers":  [][]string{{"Content-Type", "application/json"}},
		"raw_body": `{"k":"v"}`,
	}), 1)
	require.NoError(t, Run(context.Background(), req))

	require.Len(t, runLog.all(), 1)
	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(runLog.all()[0].ResponseBody), &got))
	assert.Equal(t, `{"k":"v"}`, got["body"])
	assert.Equal(t, "application/json", got["content_type"])
}

func TestHTTPRequest_GetSendsNoBody(t *testing.T) {
	server := echoServer(t)
	env, runLog := newTestEnv(t)

	req := buildTree(t, env, httpRequestNode(map[string]any{
		"url":      server.URL,
		"raw_body": "ignored",
	}), 1)
	require.NoError(t, Run(context.Background(), req))

	require.Len(t, runLog.all(), 1)
	assert.Empty(t, runLog.all()[0].RequestBody)
}

func TestHTTPRequest_PostMultipart(t *testing.T) {
	var fields map[string]string
	var fileName, fileType, fileContent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fields = map[string]string{"title": r.FormValue("title")}
		f, h, err := r.FormFile("upload")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		fileName, fileType, fileContent = h.Filename, h.Header.Get("Content-Type"), string(b)
	}))
	defer server.Close()

	env, runLog := newTestEnv(t)
	require.NoError(t, os.MkdirAll(filepath.Join(env.FilePath, "files"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(env.FilePath, "files", "f-123"), []byte("hello file"), 0o644))

	req := buildTree(t, env, httpRequestNode(map[string]any{
		"method":    "POST",
		"url":       server.URL,
		"body_type": BodyMultipart,
		"form_data": []map[string]string{
			{"key": "title", "value": "report", "type": "text", "file": "", "mime": ""},
			{"key": "upload", "value": "report.txt", "type": "file", "file": "f-123", "mime": "text/plain"},
		},
	}), 1)
	require.NoError(t, Run(context.Background(), req))

	require.Len(t, runLog.all(), 1)
	assert.True(t, runLog.all()[0].Success, runLog.all()[0].Failure)
	assert.Equal(t, map[string]string{"title": "report"}, fields)
	assert.Equal(t, "report.txt", fileName)
	assert.Equal(t, "text/plain", fileType)
	assert.Equal(t, "hello file", fileContent)
}

func TestHTTPRequest_MissingFormFile(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits++ }))
	defer server.Close()

	env, runLog := newTestEnv(t)
	req := buildTree(t, env, httpRequestNode(map[string]any{
		"method":    "POST",
		"url":       server.URL,
		"body_type": BodyMultipart,
		"form_data": []map[string]string{
			{"key": "upload", "value": "a.txt", "type": "file", "file": "absent", "mime": "text/plain"},
		},
	}), 1)
	require.NoError(t, Run(context.Background(), req))

	entries := runLog.all()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)
	assert.Equal(t, -1, entries[0].Code)
	assert.Contains(t, entries[0].Failure, "failed to open form file")
	assert.Zero(t, hits)
}

func TestHTTPRequest_InvalidUTF8Body(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte{0xff, 0xfe, 0x00})
	}))
	defer server.Close()

	env, runLog := newTestEnv(t)
	req := buildTree(t, env, httpRequestNode(map[string]any{"url": server.URL}), 1)
	require.NoError(t, Run(context.Background(), req))

	require.Len(t, runLog.all(), 1)
	e := runLog.all()[0]
	assert.True(t, e.Success)
	assert.Equal(t, "response body is not valid UTF-8 and cannot be displayed", e.ResponseBody)
	assert.Equal(t, 3, e.ResponseBodyLen)
}
