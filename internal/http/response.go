package http

import (
	"net/http"
	"time"
)

// TimingInfo contains detailed timing information for an HTTP request
type TimingInfo struct {
	// StartTime is when the request started
	StartTime time.Time

	// DNSLookupTime is the time spent looking up the DNS address
	DNSLookupTime time.Duration

	// TCPConnectTime is the time spent establishing a TCP connection
	TCPConnectTime time.Duration

	// TLSHandshakeTime is the time spent performing the TLS handshake (for HTTPS)
	TLSHandshakeTime time.Duration

	// TimeToFirstByte is the time from the end of the last connection phase
	// until the first response byte
	TimeToFirstByte time.Duration

	// ContentTransferTime is the time spent reading the response body
	ContentTransferTime time.Duration

	// TotalTime is the total time of the exchange
	TotalTime time.Duration
}

// Response represents an HTTP response
type Response struct {
	StatusCode   int
	Status       string
	Proto        string
	Headers      http.Header
	Body         []byte
	BodySize     int64 // bytes read from the wire, Body may hold fewer
	ResponseTime time.Duration
	Timing       TimingInfo

	// RequestHeader is the header set that was actually sent
	RequestHeader http.Header
}

// GetBodyAsString returns the response body as a string
func (r *Response) GetBodyAsString() string {
	return string(r.Body)
}

// HeaderSize approximates the size of the response status line and headers
// as they appeared on the wire.
func (r *Response) HeaderSize() int {
	return len(r.Proto) + 1 + len(r.Status) + 2 + HeaderSize(r.Headers) + 2
}

// IsError reports whether the status code is 400 or above.
func (r *Response) IsError() bool {
	return r.StatusCode > 399
}

// HeaderSize returns the number of bytes h occupies as "Key: value\r\n" lines.
func HeaderSize(h http.Header) int {
	n := 0
	for k, values := range h {
		for _, v := range values {
			n += len(k) + 2 + len(v) + 2
		}
	}
	return n
}

// FlattenHeader joins repeated header values with ", " so each header maps
// to a single string.
func FlattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = joinValues(h.Values(k))
	}
	return out
}

func joinValues(values []string) string {
	switch len(values) {
	case 0:
		return ""
	case 1:
		return values[0]
	}
	n := 0
	for _, v := range values {
		n += len(v) + 2
	}
	b := make([]byte, 0, n)
	for i, v := range values {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = append(b, v...)
	}
	return string(b)
}
