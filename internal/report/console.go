package report

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// ANSI color codes.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

// Console prints the end-of-run table.
type Console struct {
	writer    io.Writer
	useColors bool
}

// NewConsole creates a console printer. A nil writer means os.Stdout.
func NewConsole(w io.Writer, useColors bool) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{writer: w, useColors: useColors}
}

func (c *Console) color(code string) string {
	if c.useColors {
		return code
	}
	return ""
}

// PrintSummary prints one line per tab followed by the run totals.
func (c *Console) PrintSummary(s *Summary) {
	w := c.writer

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s── Acceptance Test Results ───────────────────────────────────%s\n",
		c.color(colorCyan), c.color(colorReset))
	fmt.Fprintf(w, "  Run ID: %s\n", s.Metadata.RunID)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  %-30s %7s %7s %7s %9s\n", "Tab", "Cases", "Passed", "Failed", "Duration")
	fmt.Fprintf(w, "  %s%s%s\n", c.color(colorDim), strings.Repeat("─", 64), c.color(colorReset))

	for _, tab := range s.Tabs {
		name := tab.Tab
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		if tab.Error != "" {
			fmt.Fprintf(w, "  %-30s %sERROR: %s%s\n", name, c.color(colorRed), tab.Error, c.color(colorReset))
			continue
		}
		fmt.Fprintf(w, "  %-30s %7d %s%7d%s %s%7d%s %9s\n",
			name,
			tab.Passed+tab.Failed,
			c.color(colorGreen), tab.Passed, c.color(colorReset),
			c.failedColor(tab.Failed), tab.Failed, c.color(colorReset),
			formatDuration(tab.Duration.Duration))
	}

	fmt.Fprintf(w, "  %s%s%s\n", c.color(colorDim), strings.Repeat("─", 64), c.color(colorReset))
	fmt.Fprintf(w, "  %s%-30s %7d %7d %7d%s\n",
		c.color(colorBold), "Total", s.Totals.Cases, s.Totals.Passed, s.Totals.Failed, c.color(colorReset))
	if s.Totals.FailedTabs > 0 {
		fmt.Fprintf(w, "  %s%d tab(s) could not be processed%s\n",
			c.color(colorYellow), s.Totals.FailedTabs, c.color(colorReset))
	}
	fmt.Fprintln(w)
}

func (c *Console) failedColor(n int) string {
	if n == 0 {
		return c.color(colorGreen)
	}
	return c.color(colorRed)
}
