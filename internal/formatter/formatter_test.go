package formatter

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/xlsync/internal/models"
	"github.com/desertthunder/xlsync/internal/shared"
	th "github.com/desertthunder/xlsync/internal/testing"
)

func sampleRun() *models.RunRecord {
	started := time.Date(2026, 3, 31, 18, 0, 0, 0, time.UTC)
	run := models.NewRunRecord("month-end", "failed", started, started.Add(2500*time.Millisecond), []models.TaskRecord{
		{Position: 0, Name: "copy-ledger", Status: "succeeded", Elapsed: 1230 * time.Millisecond},
		{Position: 1, Name: "verify", Status: "failed", Error: "files do not match", Elapsed: 450 * time.Millisecond},
		{Position: 2, Name: "publish", Status: "skipped", Error: "publish skipped: dependency failed (verify)"},
	})
	run.SetID("run-1")
	run.SetSequence(7)
	return run
}

func TestExporters(t *testing.T) {
	t.Run("ExportToCSV", func(t *testing.T) {
		data, err := ExportToCSV(sampleRun())
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}

		output := string(data)
		if !strings.Contains(output, "Position,Task,Status,Elapsed (ms),Error") {
			t.Errorf("CSV missing headers, got: %s", output)
		}
		if !strings.Contains(output, "1,copy-ledger,succeeded,1230,") {
			t.Errorf("CSV missing first task, got: %s", output)
		}

		lines := strings.Split(strings.TrimSpace(output), "\n")
		if len(lines) != 4 {
			t.Errorf("expected 4 lines (header + 3 tasks), got %d", len(lines))
		}
	})

	t.Run("ExportToJSON", func(t *testing.T) {
		data, err := ExportToJSON(sampleRun())
		if err != nil {
			t.Fatalf("ExportToJSON failed: %v", err)
		}

		var view RunView
		if err := json.Unmarshal(data, &view); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if view.Sequence != 7 || view.ElapsedMS != 2500 {
			t.Errorf("unexpected view %+v", view)
		}
		if view.Counts["skipped"] != 1 {
			t.Errorf("expected 1 skipped task, got %v", view.Counts)
		}
		if len(view.Tasks) != 3 || view.Tasks[1].Error != "files do not match" {
			t.Errorf("unexpected tasks %+v", view.Tasks)
		}
	})

	t.Run("ExportToMarkdown", func(t *testing.T) {
		data, err := ExportToMarkdown(sampleRun())
		if err != nil {
			t.Fatalf("ExportToMarkdown failed: %v", err)
		}

		output := string(data)
		for _, want := range []string{"# month-end", "**Run**: #7", "| 2 | verify | failed | 450ms | files do not match |"} {
			if !strings.Contains(output, want) {
				t.Errorf("markdown missing %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("ExportToText", func(t *testing.T) {
		data, err := ExportToText(sampleRun())
		if err != nil {
			t.Fatalf("ExportToText failed: %v", err)
		}

		output := string(data)
		for _, want := range []string{
			"Run #7: month-end",
			"Tasks: 3 (1 succeeded, 1 failed, 0 cancelled, 1 skipped)",
			"1. copy-ledger [succeeded] 1.23s",
			"3. publish [skipped] - - publish skipped",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("text missing %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("ExportList", func(t *testing.T) {
		data, err := ExportList([]*models.RunRecord{sampleRun()})
		if err != nil {
			t.Fatalf("ExportList failed: %v", err)
		}

		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) != 2 {
			t.Fatalf("expected header and one row, got %d lines", len(lines))
		}
		if !strings.HasPrefix(lines[1], "7 ") || !strings.Contains(lines[1], "month-end") {
			t.Errorf("unexpected row %q", lines[1])
		}
	})
}

func TestExport(t *testing.T) {
	for _, format := range []string{"", "text", "json", "csv", "markdown", "md"} {
		if _, err := Export(sampleRun(), format); err != nil {
			t.Errorf("Export(%q) failed: %v", format, err)
		}
	}

	if _, err := Export(sampleRun(), "xlsx"); !errors.Is(err, shared.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	if err := CheckFormat("xlsx"); !errors.Is(err, shared.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument from CheckFormat, got %v", err)
	}
	if err := CheckFormat("md"); err != nil {
		t.Errorf("expected md to be supported, got %v", err)
	}
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	if err := WriteReport(sampleRun(), "csv", path); err != nil {
		t.Fatalf("WriteReport failed: %v", err)
	}

	th.AssertFileExists(t, path)
	if content := th.MustReadFile(t, path); !strings.HasPrefix(content, "Position,") {
		t.Errorf("unexpected report content %q", content)
	}

	if err := WriteReport(sampleRun(), "csv", filepath.Join(t.TempDir(), "missing", "report.csv")); err == nil {
		t.Error("expected error writing into a missing directory")
	}
}

func TestFormatElapsed(t *testing.T) {
	tc := []struct {
		in   time.Duration
		want string
	}{
		{0, "-"},
		{450 * time.Millisecond, "450ms"},
		{1234 * time.Millisecond, "1.23s"},
		{90 * time.Second, "1m30s"},
	}
	for _, tt := range tc {
		if got := FormatElapsed(tt.in); got != tt.want {
			t.Errorf("FormatElapsed(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
