package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
)

// Request represents an HTTP request
type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
}

// NewRequest creates a new HTTP request
func NewRequest(method, url string) *Request {
	return &Request{
		Method:  strings.ToUpper(method),
		URL:     url,
		Headers: make(http.Header),
	}
}

// WithHeader adds a header to the request
func (r *Request) WithHeader(key, value string) *Request {
	r.Headers.Set(key, value)
	return r
}

// WithBody sets the raw body of the request
func (r *Request) WithBody(body []byte) *Request {
	r.Body = body
	return r
}

// WithForm sets a URL-encoded body built from ordered key/value pairs
func (r *Request) WithForm(pairs [][2]string) *Request {
	values := make([]string, 0, len(pairs))
	for _, p := range pairs {
		values = append(values, url.QueryEscape(p[0])+"="+url.QueryEscape(p[1]))
	}
	r.Body = []byte(strings.Join(values, "&"))
	return r
}

// Part is one field of a multipart form. A part with a FileName is sent as
// a file upload.
type Part struct {
	Name        string
	Value       string
	FileName    string
	ContentType string
	Content     []byte
}

// WithMultipart sets a multipart/form-data body. The boundary is taken from
// an existing Content-Type header if one carries it; otherwise a random one
// is chosen and the Content-Type header is set.
func (r *Request) WithMultipart(parts []Part) (*Request, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	boundary := boundaryFrom(r.Headers.Get("Content-Type"))
	if boundary != "" {
		if err := w.SetBoundary(boundary); err != nil {
			return nil, fmt.Errorf("invalid multipart boundary: %w", err)
		}
	}

	for _, p := range parts {
		if p.FileName == "" {
			if err := w.WriteField(p.Name, p.Value); err != nil {
				return nil, err
			}
			continue
		}

		h := make(map[string][]string)
		h["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			escapeQuotes(p.Name), escapeQuotes(p.FileName))}
		contentType := p.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h["Content-Type"] = []string{contentType}

		pw, err := w.CreatePart(h)
		if err != nil {
			return nil, err
		}
		if _, err := pw.Write(p.Content); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	if boundary == "" {
		r.Headers.Set("Content-Type", w.FormDataContentType())
	}
	r.Body = buf.Bytes()
	return r, nil
}

// Build constructs an http.Request bound to ctx
func (r *Request) Build(ctx context.Context) (*http.Request, error) {
	var bodyReader io.Reader
	if r.Body != nil {
		bodyReader = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, bodyReader)
	if err != nil {
		return nil, err
	}

	for key, values := range r.Headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	return req, nil
}

func boundaryFrom(contentType string) string {
	i := strings.Index(strings.ToLower(contentType), "boundary=")
	if i < 0 {
		return ""
	}
	b := contentType[i+len("boundary="):]
	if j := strings.IndexByte(b, ';'); j >= 0 {
		b = b[:j]
	}
	return strings.Trim(strings.TrimSpace(b), `"`)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
