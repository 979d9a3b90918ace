// Package output prints task results for humans.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/wesleyorama2/lunge-worker/internal/flow"
	"github.com/wesleyorama2/lunge-worker/internal/status"
)

// Console writes task summaries and validation reports.
type Console struct {
	w       io.Writer
	noColor bool
	scheme  *ColorScheme
}

// NewConsole creates a console on w. Colors are used only when w is a
// terminal, noColor is false and NO_COLOR is unset.
func NewConsole(w io.Writer, noColor bool) *Console {
	if w == nil {
		w = os.Stdout
	}
	noColor = noColor || os.Getenv("NO_COLOR") != "" || !isTerminal(w)

	scheme := DefaultColorScheme()
	if noColor {
		scheme = NoColorScheme()
	}
	return &Console{w: w, noColor: noColor, scheme: scheme}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (c *Console) writeln(s string) {
	fmt.Fprintln(c.w, s)
}

// PrintSummary prints the outcome of a task run.
func (c *Console) PrintSummary(taskID int64, res *flow.Result) {
	line := strings.Repeat("━", 56)
	state := c.scheme.Success.Sprint("Completed " + SuccessIcon(c.noColor))
	if res.Status != status.Finished {
		state = c.scheme.Error.Sprint(fmt.Sprintf("%s %s", res.Status, ErrorIcon(c.noColor)))
	}

	c.writeln("")
	c.writeln(c.scheme.Value.Sprint(line))
	c.writeln(fmt.Sprintf("%s - %s", c.scheme.Title.Sprintf("Task %d", taskID), state))
	c.writeln(c.scheme.Value.Sprint(line))
	c.writeln("")

	c.writeln(fmt.Sprintf("%s %s", c.scheme.Label.Sprint("Log entries:  "), c.scheme.Value.Sprint(formatNumber(res.Entries))))

	if m := res.Metrics; m != nil {
		c.writeln(fmt.Sprintf("%s %s", c.scheme.Label.Sprint("Duration:     "), c.scheme.Value.Sprint(formatDuration(m.Elapsed))))
		c.writeln(fmt.Sprintf("%s %s", c.scheme.Label.Sprint("Total Reqs:   "), c.scheme.Value.Sprint(formatNumber(m.TotalRequests))))

		successRate := 1.0 - m.ErrorRate
		rateColor := c.scheme.Success
		if successRate < 0.99 {
			rateColor = c.scheme.Warn
		}
		if successRate < 0.95 {
			rateColor = c.scheme.Error
		}
		c.writeln(fmt.Sprintf("%s %s", c.scheme.Label.Sprint("Success Rate: "), rateColor.Sprintf("%.1f%%", successRate*100)))
		c.writeln("")

		if m.TotalRequests > 0 {
			c.writeln(c.scheme.Title.Sprint("Latency Distribution:"))
			c.writeln(fmt.Sprintf("  Min:       %s", formatDurationShort(m.Latency.Min)))
			c.writeln(fmt.Sprintf("  P50:       %s", formatDurationShort(m.Latency.P50)))
			c.writeln(fmt.Sprintf("  P90:       %s", formatDurationShort(m.Latency.P90)))
			c.writeln(fmt.Sprintf("  P95:       %s", formatDurationShort(m.Latency.P95)))
			c.writeln(fmt.Sprintf("  P99:       %s", formatDurationShort(m.Latency.P99)))
			c.writeln(fmt.Sprintf("  Max:       %s", formatDurationShort(m.Latency.Max)))
			c.writeln("")
		}
	}

	if len(res.Requests) > 0 {
		c.writeln(c.scheme.Title.Sprint("Requests:"))
		for _, r := range res.Requests {
			icon := SuccessIcon(c.noColor)
			if r.Failed > 0 {
				icon = ErrorIcon(c.noColor)
			}
			c.writeln(fmt.Sprintf("  %s %s  %s ok, %s failed, p95 %s",
				icon, c.scheme.Highlight.Sprint(r.Name),
				formatNumber(r.Success), formatNumber(r.Failed),
				formatDurationShort(r.Latency.P95)))
		}
		c.writeln("")
	}

	if len(res.Failures) > 0 {
		c.PrintFailures(res.Failures)
	}
}

// PrintValidation prints the result of validating a plugin tree.
func (c *Console) PrintValidation(nodes int, failures []string) {
	if len(failures) == 0 {
		c.writeln(fmt.Sprintf("%s %s", SuccessIcon(c.noColor),
			c.scheme.Success.Sprintf("plugin tree is valid (%d nodes)", nodes)))
		return
	}
	c.writeln(fmt.Sprintf("%s %s", ErrorIcon(c.noColor),
		c.scheme.Error.Sprintf("plugin tree is invalid: %d failure(s) in %d nodes", len(failures), nodes)))
	c.PrintFailures(failures)
}

// PrintFailures prints one line per node failure.
func (c *Console) PrintFailures(failures []string) {
	c.writeln(c.scheme.Title.Sprint("Failures:"))
	for _, f := range failures {
		c.writeln(fmt.Sprintf("  %s %s", ErrorIcon(c.noColor), f))
	}
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %02dm %02ds", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

// formatDurationShort formats a duration in a short format.
func formatDurationShort(d time.Duration) string {
	if d < time.Microsecond {
		return "0ms"
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// formatNumber formats a number with thousands separators.
func formatNumber(n int64) string {
	str := fmt.Sprintf("%d", n)
	if n < 0 || len(str) <= 3 {
		return str
	}

	var result strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		result.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if result.Len() > 0 {
			result.WriteString(",")
		}
		result.WriteString(str[i : i+3])
	}
	return result.String()
}
