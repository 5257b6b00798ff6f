// package formatter renders recorded runs as CSV, JSON, Markdown, or plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/desertthunder/xlsync/internal/models"
	"github.com/desertthunder/xlsync/internal/shared"
)

// Supported output formats
const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
)

// TaskView is the JSON shape of a [models.TaskRecord]
type TaskView struct {
	Position  int    `json:"position"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// RunView is the JSON shape of a [models.RunRecord]
type RunView struct {
	ID         string         `json:"id,omitempty"`
	Sequence   int            `json:"sequence,omitempty"`
	Name       string         `json:"name"`
	Status     string         `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	ElapsedMS  int64          `json:"elapsed_ms"`
	Counts     map[string]int `json:"counts"`
	Tasks      []TaskView     `json:"tasks"`
}

// NewRunView flattens a run record for serialization
func NewRunView(run *models.RunRecord) RunView {
	view := RunView{
		ID:         run.ID(),
		Sequence:   run.Sequence(),
		Name:       run.Name(),
		Status:     run.Status(),
		StartedAt:  run.StartedAt(),
		FinishedAt: run.FinishedAt(),
		ElapsedMS:  run.Elapsed().Milliseconds(),
		Counts:     run.Counts(),
		Tasks:      make([]TaskView, 0, len(run.Tasks())),
	}
	for _, t := range run.Tasks() {
		view.Tasks = append(view.Tasks, TaskView{
			Position:  t.Position,
			Name:      t.Name,
			Status:    t.Status,
			Error:     t.Error,
			ElapsedMS: t.Elapsed.Milliseconds(),
		})
	}
	return view
}

// ExportToCSV converts a run to CSV format with columns: Position, Task, Status, Elapsed (ms), Error
func ExportToCSV(run *models.RunRecord) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Position", "Task", "Status", "Elapsed (ms)", "Error"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, t := range run.Tasks() {
		record := []string{
			strconv.Itoa(t.Position + 1),
			t.Name,
			t.Status,
			strconv.FormatInt(t.Elapsed.Milliseconds(), 10),
			t.Error,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToJSON converts a run to indented JSON
func ExportToJSON(run *models.RunRecord) ([]byte, error) {
	return shared.MarshalJSON(NewRunView(run), true)
}

// ExportToMarkdown converts a run to a Markdown report
func ExportToMarkdown(run *models.RunRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# %s\n\n", run.Name()))
	if run.Sequence() > 0 {
		buf.WriteString(fmt.Sprintf("**Run**: #%d\n", run.Sequence()))
	}
	buf.WriteString(fmt.Sprintf("**Status**: %s\n", run.Status()))
	buf.WriteString(fmt.Sprintf("**Started**: %s\n", run.StartedAt().Format(time.RFC3339)))
	buf.WriteString(fmt.Sprintf("**Elapsed**: %s\n\n", FormatElapsed(run.Elapsed())))

	buf.WriteString("## Tasks\n\n")
	buf.WriteString("| # | Task | Status | Elapsed | Error |\n")
	buf.WriteString("|---|------|--------|---------|-------|\n")
	for _, t := range run.Tasks() {
		buf.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s |\n",
			t.Position+1, t.Name, t.Status, FormatElapsed(t.Elapsed), strings.ReplaceAll(t.Error, "|", "\\|")))
	}

	return buf.Bytes(), nil
}

// ExportToText converts a run to plain text format
func ExportToText(run *models.RunRecord) ([]byte, error) {
	var buf bytes.Buffer

	if run.Sequence() > 0 {
		buf.WriteString(fmt.Sprintf("Run #%d: %s\n", run.Sequence(), run.Name()))
	} else {
		buf.WriteString(fmt.Sprintf("Run: %s\n", run.Name()))
	}
	buf.WriteString(fmt.Sprintf("Status: %s\n", run.Status()))
	buf.WriteString(fmt.Sprintf("Elapsed: %s\n", FormatElapsed(run.Elapsed())))

	counts := run.Counts()
	buf.WriteString(fmt.Sprintf("Tasks: %d (%d succeeded, %d failed, %d cancelled, %d skipped)\n\n",
		len(run.Tasks()), counts["succeeded"], counts["failed"], counts["cancelled"], counts["skipped"]))

	for i, t := range run.Tasks() {
		line := fmt.Sprintf("%d. %s [%s] %s", i+1, t.Name, t.Status, FormatElapsed(t.Elapsed))
		if t.Error != "" {
			line += " - " + t.Error
		}
		buf.WriteString(line + "\n")
	}

	return buf.Bytes(), nil
}

// ExportList renders a table of runs, one line each
func ExportList(runs []*models.RunRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "#\tNAME\tSTATUS\tTASKS\tSTARTED\tELAPSED")
	for _, run := range runs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n",
			run.Sequence(),
			run.Name(),
			run.Status(),
			len(run.Tasks()),
			run.StartedAt().Local().Format("2006-01-02 15:04:05"),
			FormatElapsed(run.Elapsed()),
		)
	}

	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("failed to render run list: %w", err)
	}
	return buf.Bytes(), nil
}

// CheckFormat reports an error when [Export] does not support format
func CheckFormat(format string) error {
	switch format {
	case FormatText, "txt", "", FormatJSON, FormatCSV, FormatMarkdown, "md":
		return nil
	default:
		return fmt.Errorf("%w: unsupported format %q", shared.ErrInvalidArgument, format)
	}
}

// Export renders run in the named format
func Export(run *models.RunRecord, format string) ([]byte, error) {
	switch format {
	case FormatText, "txt", "":
		return ExportToText(run)
	case FormatJSON:
		return ExportToJSON(run)
	case FormatCSV:
		return ExportToCSV(run)
	case FormatMarkdown, "md":
		return ExportToMarkdown(run)
	default:
		return nil, CheckFormat(format)
	}
}

// WriteReport renders run in the named format and writes it to path
func WriteReport(run *models.RunRecord, format, path string) error {
	data, err := Export(run, format)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// FormatElapsed renders a duration rounded for display (e.g. 1.23s, 450ms)
func FormatElapsed(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	default:
		return d.Round(time.Second).String()
	}
}
