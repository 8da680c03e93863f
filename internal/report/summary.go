package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/example/erp/tools/acctest/internal/runner"
)

// SummaryFileName is the sink name of the JSON run summary.
const SummaryFileName = "summary.json"

// Summary is the JSON summary of a run. It can be parsed by external tools.
type Summary struct {
	Metadata SummaryMetadata `json:"metadata"`
	Totals   Totals          `json:"totals"`
	Tabs     []TabSummary    `json:"tabs"`
}

// SummaryMetadata describes the run.
type SummaryMetadata struct {
	RunID       string    `json:"runId"`
	Version     string    `json:"version"`
	GeneratedAt time.Time `json:"generatedAt"`
	Generator   string    `json:"generator"`
	BaseURL     string    `json:"baseURL,omitempty"`
}

// Totals aggregates every tab.
type Totals struct {
	Tabs       int `json:"tabs"`
	FailedTabs int `json:"failedTabs"`
	Cases      int `json:"cases"`
	Passed     int `json:"passed"`
	Failed     int `json:"failed"`
}

// TabSummary holds the outcome of one tab.
type TabSummary struct {
	Tab      string           `json:"tab"`
	Metadata string           `json:"metadata,omitempty"`
	Output   string           `json:"output,omitempty"`
	Error    string           `json:"error,omitempty"`
	Passed   int              `json:"passed"`
	Failed   int              `json:"failed"`
	Duration Duration         `json:"duration"`
	Rows     []runner.Outcome `json:"rows"`
}

// Duration wraps time.Duration for JSON serialization.
type Duration struct {
	time.Duration
}

// MarshalJSON implements json.Marshaler for Duration.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"seconds": d.Seconds(),
		"display": formatDuration(d.Duration),
	})
}

// UnmarshalJSON implements json.Unmarshaler for Duration.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if seconds, ok := obj["seconds"].(float64); ok {
		d.Duration = time.Duration(seconds * float64(time.Second))
	}
	return nil
}

// Version is the summary format version.
const Version = "1.0.0"

// NewSummary builds the summary of a run.
func NewSummary(runID, baseURL string, results []runner.TabResult) *Summary {
	s := &Summary{
		Metadata: SummaryMetadata{
			RunID:       runID,
			Version:     Version,
			GeneratedAt: time.Now().UTC(),
			Generator:   "acctest",
			BaseURL:     baseURL,
		},
		Tabs: make([]TabSummary, 0, len(results)),
	}

	for _, r := range results {
		passed, failed := r.Counts()
		tab := TabSummary{
			Tab:      r.Tab,
			Metadata: r.Source,
			Passed:   passed,
			Failed:   failed,
			Duration: Duration{r.Duration},
			Rows:     r.Outcomes,
		}
		if tab.Rows == nil {
			tab.Rows = []runner.Outcome{}
		}
		if r.Table != nil {
			tab.Output = OutputFileName(r.Tab)
		}
		if r.Err != nil {
			tab.Error = r.Err.Error()
			s.Totals.FailedTabs++
		}

		s.Totals.Tabs++
		s.Totals.Cases += passed + failed
		s.Totals.Passed += passed
		s.Totals.Failed += failed
		s.Tabs = append(s.Tabs, tab)
	}

	return s
}

// OK reports whether every tab ran and every case passed.
func (s *Summary) OK() bool {
	return s.Totals.FailedTabs == 0 && s.Totals.Failed == 0
}

// ToJSON serializes the summary.
func (s *Summary) ToJSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// WriteToFile writes the summary to a file.
// The path supports template variables:
// - {{.Timestamp}} - Current timestamp in format YYYYMMDD-HHMMSS
// - {{.Date}} - Current date in format YYYY-MM-DD
// - {{.RunID}} - The run ID
func (s *Summary) WriteToFile(path string) (string, error) {
	expanded := filepath.Clean(expandPathTemplate(path, s.Metadata.RunID))

	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return "", fmt.Errorf("creating summary directory: %w", err)
	}

	data, err := s.ToJSON()
	if err != nil {
		return "", fmt.Errorf("marshaling summary to JSON: %w", err)
	}

	if err := os.WriteFile(expanded, data, 0o644); err != nil {
		return "", fmt.Errorf("writing summary file: %w", err)
	}
	return expanded, nil
}

// expandPathTemplate expands template variables in a path.
func expandPathTemplate(path, runID string) string {
	now := time.Now()

	replacements := map[string]string{
		"{{.Timestamp}}": now.Format("20060102-150405"),
		"{{.Date}}":      now.Format("2006-01-02"),
		"{{.RunID}}":     runID,
	}

	result := path
	for template, value := range replacements {
		result = strings.ReplaceAll(result, template, value)
	}

	return result
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", hours, minutes)
}
