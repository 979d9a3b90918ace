package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	lhttp "github.com/wesleyorama2/lunge-worker/internal/http"
	"github.com/wesleyorama2/lunge-worker/pkg/jsonschema"
)

// Body encodings of an HTTP request.
const (
	BodyMultipart  = 0
	BodyURLEncoded = 1
	BodyRaw        = 2
)

const (
	contentTypeURLEncoded = "application/x-www-form-urlencoded; charset=UTF-8"
	contentTypeRaw        = "text/plain; charset=UTF-8"
)

var httpRequestSchema = jsonschema.MustCompile("http_request.json", `{
	"type": "object",
	"properties": {
		"method": {"type": "string", "pattern": "^(?i)(get|post)$"},
		"url": {"type": "string", "minLength": 1},
		"headers": `+pairsSchema+`,
		"body_type": {"enum": [0, 1, 2]},
		"form_data": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"key": {"type": "string"},
					"value": {"type": "string"},
					"type": {"enum": ["text", "file"]},
					"file": {"type": "string"},
					"mime": {"type": "string"}
				},
				"required": ["key", "value", "type", "file", "mime"]
			}
		},
		"form_urlencoded": `+pairsSchema+`,
		"raw_body": {"type": "string"},
		"connectTimeout": {"type": "integer", "minimum": 0}
	},
	"required": ["method", "url", "headers", "body_type", "connectTimeout"],
	"allOf": [
		{"if": {"properties": {"body_type": {"const": 0}}}, "then": {"required": ["form_data"]}},
		{"if": {"properties": {"body_type": {"const": 1}}}, "then": {"required": ["form_urlencoded"]}},
		{"if": {"properties": {"body_type": {"const": 2}}}, "then": {"required": ["raw_body"]}}
	]
}`)

type formField struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Type  string `json:"type"`
	File  string `json:"file"`
	Mime  string `json:"mime"`
}

type httpRequestConfig struct {
	Method         string      `json:"method"`
	URL            string      `json:"url"`
	Headers        []pair      `json:"headers"`
	BodyType       int         `json:"body_type"`
	FormData       []formField `json:"form_data"`
	FormURLEncoded []pair      `json:"form_urlencoded"`
	RawBody        string      `json:"raw_body"`
	ConnectTimeout int         `json:"connectTimeout"`
}

// Exchange is the request and response data of the last HTTP call, read by
// assertions and extractors attached to the request.
type Exchange struct {
	URL            string
	RequestHeader  http.Header
	RequestBody    string
	ResponseHeader http.Header
	ResponseBody   string
	StatusCode     int
}

// Exchanger is implemented by request plugins that expose an Exchange.
type Exchanger interface {
	Exchange() *Exchange
}

// HTTPRequest sends one GET or POST request through the task's shared HTTP
// client.
type HTTPRequest struct {
	Base
	cfg      httpRequestConfig
	req      *lhttp.Request
	timeout  time.Duration
	exchange *Exchange
}

func (h *HTTPRequest) Category() Category { return Request }

func (h *HTTPRequest) Validate() error {
	return checkConfig(httpRequestSchema, h.node.Value)
}

// Prepare builds the request for this iteration. Form files are read from
// the task bundle here so a missing file fails the iteration before any
// call is made.
func (h *HTTPRequest) Prepare(raw string) error {
	h.cfg = httpRequestConfig{}
	if err := decodeConfig(httpRequestSchema, raw, &h.cfg); err != nil {
		return err
	}

	req := lhttp.NewRequest(h.cfg.Method, h.cfg.URL)
	for _, p := range h.cfg.Headers {
		req.Headers.Set(p.Key, p.Value)
	}

	if req.Headers.Get("Content-Type") == "" {
		switch h.cfg.BodyType {
		case BodyURLEncoded:
			req.Headers.Set("Content-Type", contentTypeURLEncoded)
		case BodyRaw:
			req.Headers.Set("Content-Type", contentTypeRaw)
		}
	}

	if req.Method == http.MethodPost {
		switch h.cfg.BodyType {
		case BodyMultipart:
			parts := make([]lhttp.Part, 0, len(h.cfg.FormData))
			for _, f := range h.cfg.FormData {
				if f.Type != "file" {
					parts = append(parts, lhttp.Part{Name: f.Key, Value: f.Value})
					continue
				}
				content, err := os.ReadFile(dataFile(h.env, f.File))
				if err != nil {
					return fmt.Errorf("failed to open form file: %w", err)
				}
				parts = append(parts, lhttp.Part{
					Name:        f.Key,
					FileName:    f.Value,
					ContentType: f.Mime,
					Content:     content,
				})
			}
			if _, err := req.WithMultipart(parts); err != nil {
				return err
			}
		case BodyURLEncoded:
			pairs := make([][2]string, 0, len(h.cfg.FormURLEncoded))
			for _, p := range h.cfg.FormURLEncoded {
				pairs = append(pairs, [2]string{p.Key, p.Value})
			}
			req.WithForm(pairs)
		case BodyRaw:
			req.WithBody([]byte(h.cfg.RawBody))
		}
	}

	h.req = req
	h.timeout = time.Duration(h.cfg.ConnectTimeout) * time.Millisecond
	return nil
}

// Header returns the headers the next call will send.
func (h *HTTPRequest) Header() http.Header {
	if h.req == nil {
		return nil
	}
	return h.req.Headers
}

// Exchange returns the data of the last call, or nil before the first one.
func (h *HTTPRequest) Exchange() *Exchange { return h.exchange }

func (h *HTTPRequest) Execute(ctx context.Context) error {
	e := h.entry
	e.URL = h.req.URL

	h.exchange = &Exchange{
		URL:           h.req.URL,
		RequestHeader: h.req.Headers,
		RequestBody:   string(h.req.Body),
		StatusCode:    -1,
	}

	callCtx := ctx
	if h.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	resp, err := h.env.HTTP.Do(callCtx, h.req)
	e.finish()
	if err != nil {
		e.Fail(-1, fmt.Sprintf("request error: %v;", err))
		return nil
	}

	e.RequestHeader = headerJSON(resp.RequestHeader)
	e.RequestHeaderLen = lhttp.HeaderSize(resp.RequestHeader)
	e.RequestBody = truncate(string(h.req.Body), maxLogPayload)
	e.RequestBodyLen = len(h.req.Body)
	e.RequestLen = e.RequestHeaderLen + e.RequestBodyLen

	e.Code = resp.StatusCode
	if resp.IsError() {
		e.Fail(resp.StatusCode, fmt.Sprintf("request failed, status code %d;", resp.StatusCode))
	} else {
		e.Failure = "request succeeded;"
	}

	e.ResponseHeader = headerJSON(resp.Headers)
	e.ResponseHeaderLen = resp.HeaderSize()
	if utf8.Valid(resp.Body) {
		e.ResponseBody = truncate(string(resp.Body), maxLogPayload)
	} else {
		e.ResponseBody = "response body is not valid UTF-8 and cannot be displayed"
	}
	e.ResponseBodyLen = int(resp.BodySize)
	e.ResponseLen = e.ResponseHeaderLen + e.ResponseBodyLen

	h.exchange.RequestHeader = resp.RequestHeader
	h.exchange.ResponseHeader = resp.Headers
	h.exchange.ResponseBody = strings.ToValidUTF8(string(resp.Body), "�")
	h.exchange.StatusCode = resp.StatusCode
	return nil
}

func headerJSON(h http.Header) string {
	b, err := json.Marshal(lhttp.FlattenHeader(h))
	if err != nil {
		return ""
	}
	return truncate(string(b), maxLogPayload)
}
