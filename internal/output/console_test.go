package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/wesleyorama2/lunge-worker/internal/flow"
	"github.com/wesleyorama2/lunge-worker/internal/metrics"
	"github.com/wesleyorama2/lunge-worker/internal/status"
)

func TestColorSchemes(t *testing.T) {
	for name, scheme := range map[string]*ColorScheme{
		"default":  DefaultColorScheme(),
		"no color": NoColorScheme(),
	} {
		if scheme.Title == nil || scheme.Label == nil || scheme.Value == nil ||
			scheme.Success == nil || scheme.Warn == nil || scheme.Error == nil || scheme.Highlight == nil {
			t.Errorf("%s scheme has a nil color", name)
		}
	}

	if got := NoColorScheme().Error.Sprint("x"); got != "x" {
		t.Errorf("NoColorScheme().Error.Sprint() = %q, want plain text", got)
	}
}

func TestIcons(t *testing.T) {
	if SuccessIcon(true) != "✓" {
		t.Errorf("SuccessIcon(true) = %q", SuccessIcon(true))
	}
	if ErrorIcon(true) != "✗" {
		t.Errorf("ErrorIcon(true) = %q", ErrorIcon(true))
	}
}

func TestConsole_NonTerminalHasNoColor(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, false)
	c.PrintValidation(3, nil)

	if strings.Contains(buf.String(), "\033[") {
		t.Errorf("output to a buffer contains escape codes: %q", buf.String())
	}
}

func TestConsole_PrintSummary(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, true)

	c.PrintSummary(9, &flow.Result{
		Status:  status.Finished,
		Entries: 1200,
		Metrics: &metrics.Snapshot{
			TotalRequests: 1200,
			ErrorRate:     0.5,
			Elapsed:       90 * time.Second,
			Latency:       metrics.LatencyStats{P50: 12 * time.Millisecond, Max: 2 * time.Second},
		},
		Requests: []metrics.RequestStats{
			{Name: "login", Success: 600, Failed: 0},
			{Name: "search", Success: 0, Failed: 600},
		},
	})

	out := buf.String()
	for _, want := range []string{
		"Task 9 - Completed ✓",
		"Log entries:   1,200",
		"Duration:      1m 30s",
		"Success Rate:  50.0%",
		"P50:       12ms",
		"Max:       2.00s",
		"✓ login  600 ok, 0 failed",
		"✗ search  0 ok, 600 failed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestConsole_PrintSummary_Failed(t *testing.T) {
	var buf bytes.Buffer
	NewConsole(&buf, true).PrintSummary(4, &flow.Result{
		Status:   status.ValidationFailed,
		Failures: []string{`plugin "mystery" (id 2): unsupported plugin type`},
	})

	out := buf.String()
	if !strings.Contains(out, "Task 4 - validation-failed ✗") {
		t.Errorf("summary missing failed status:\n%s", out)
	}
	if !strings.Contains(out, `✗ plugin "mystery" (id 2): unsupported plugin type`) {
		t.Errorf("summary missing failure line:\n%s", out)
	}
	if strings.Contains(out, "Latency Distribution") {
		t.Errorf("summary without metrics prints latency:\n%s", out)
	}
}

func TestConsole_PrintValidation(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, true)

	c.PrintValidation(5, nil)
	if got := buf.String(); got != "✓ plugin tree is valid (5 nodes)\n" {
		t.Errorf("valid output = %q", got)
	}

	buf.Reset()
	c.PrintValidation(5, []string{"a", "b"})
	want := "✗ plugin tree is invalid: 2 failure(s) in 5 nodes\nFailures:\n  ✗ a\n  ✗ b\n"
	if got := buf.String(); got != want {
		t.Errorf("invalid output = %q, want %q", got, want)
	}
}

func TestFormatNumber(t *testing.T) {
	tests := map[int64]string{
		0:       "0",
		999:     "999",
		1000:    "1,000",
		1234567: "1,234,567",
		-5:      "-5",
	}
	for n, want := range tests {
		if got := formatNumber(n); got != want {
			t.Errorf("formatNumber(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[time.Duration]string{
		500 * time.Millisecond:  "500ms",
		1500 * time.Millisecond: "1.5s",
		90 * time.Second:        "1m 30s",
		3723 * time.Second:      "1h 02m 03s",
	}
	for d, want := range tests {
		if got := formatDuration(d); got != want {
			t.Errorf("formatDuration(%v) = %q, want %q", d, got, want)
		}
	}

	if got := formatDurationShort(250 * time.Microsecond); got != "250µs" {
		t.Errorf("formatDurationShort(250µs) = %q", got)
	}
}
