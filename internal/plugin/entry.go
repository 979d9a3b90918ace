package plugin

import (
	"time"
	"unicode/utf8"
)

// maxLogPayload caps headers and bodies copied into a log entry.
const maxLogPayload = 10 << 20

// Entry is the execution record of one request plugin run. The JSON keys
// are the short names consumed by the log storage backend.
type Entry struct {
	ID       int64 `json:"id"`
	TypeID   int   `json:"oid"`
	WorkerID int   `json:"wid"`
	VU       int   `json:"uid"`

	Start   int64  `json:"st"`
	End     int64  `json:"et"`
	Success bool   `json:"s"`
	Code    int    `json:"c"`
	Failure string `json:"f"`
	Total   int64  `json:"t"`

	RequestLen  int `json:"rl"`
	ResponseLen int `json:"rsl"`

	// HTTP
	URL               string `json:"hr_u"`
	RequestHeader     string `json:"hr_rh"`
	RequestHeaderLen  int    `json:"hr_rhl"`
	RequestBody       string `json:"hr_rb"`
	RequestBodyLen    int    `json:"hr_rbl"`
	ResponseHeader    string `json:"hr_rsh"`
	ResponseHeaderLen int    `json:"hr_rshl"`
	ResponseBody      string `json:"hr_rsb"`
	ResponseBodyLen   int    `json:"hr_rsbl"`

	// SQL
	Statement    string `json:"mr_rb"`
	StatementLen int    `json:"mr_rbl"`
	Result       string `json:"mr_rsb"`
	ResultLen    int    `json:"mr_rsbl"`

	// Redis
	Command string `json:"rr_rb"`

	Title   string        `json:"-"`
	Elapsed time.Duration `json:"-"`

	started time.Time
}

func newEntry(b *Base) *Entry {
	now := time.Now()
	e := &Entry{
		ID:      b.node.ID,
		TypeID:  b.node.TypeID,
		VU:      b.vu,
		Start:   now.UnixMilli(),
		Success: true,
		Title:   b.node.Title,
		started: now,
	}
	if b.env != nil {
		e.WorkerID = b.env.Worker.ID
	}
	return e
}

// finish stamps the end of the external call. Only the first call counts.
func (e *Entry) finish() {
	if e.End != 0 {
		return
	}
	now := time.Now()
	e.End = now.UnixMilli()
	e.Total = e.End - e.Start
	e.Elapsed = now.Sub(e.started)
}

// Fail marks the entry failed with the given status code and reason.
func (e *Entry) Fail(code int, reason string) {
	e.Success = false
	e.Code = code
	e.Failure = reason
}

// AppendFailure marks the entry failed and appends reason to its failure
// text.
func (e *Entry) AppendFailure(reason string) {
	e.Success = false
	e.Failure += reason
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
