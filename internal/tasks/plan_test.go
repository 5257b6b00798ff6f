package tasks

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/xlsync/internal/shared"
	tu "github.com/desertthunder/xlsync/internal/testing"
	"github.com/desertthunder/xlsync/internal/worker"
)

const samplePlan = `name = "month-end"

[[task]]
name = "copy-ledger"
kind = "copy"
source = "in/ledger.csv"
dest = "out/ledger.csv"
chunk_size = 4

[[task]]
name = "verify"
kind = "compare"
depends_on = ["copy-ledger"]

[[task]]
name = "settle"
kind = "sleep"
duration = "30ms"
stages = ["load", "match", "write"]
depends_on = ["verify"]
`

func TestLoadPlan(t *testing.T) {
	t.Run("resolves relative paths", func(t *testing.T) {
		dir := t.TempDir()
		path := tu.MustWriteFile(t, dir, "plan.toml", samplePlan)

		plan, err := LoadPlan(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if plan.Name != "month-end" {
			t.Errorf("expected name month-end, got %s", plan.Name)
		}
		if len(plan.Tasks) != 3 {
			t.Fatalf("expected 3 tasks, got %d", len(plan.Tasks))
		}

		copyTask := plan.Tasks[0]
		if copyTask.Source != filepath.Join(dir, "in", "ledger.csv") {
			t.Errorf("unexpected source %s", copyTask.Source)
		}
		if copyTask.ChunkSize != 4 {
			t.Errorf("expected chunk size 4, got %d", copyTask.ChunkSize)
		}

		settle := plan.Tasks[2]
		if settle.Duration != 30*time.Millisecond {
			t.Errorf("expected 30ms duration, got %v", settle.Duration)
		}
		if strings.Join(settle.Stages, ",") != "load,match,write" {
			t.Errorf("unexpected stages %v", settle.Stages)
		}
	})

	t.Run("defaults name to file name", func(t *testing.T) {
		path := tu.MustWriteFile(t, t.TempDir(), "nightly.toml", "[[task]]\nname = \"x\"\nkind = \"fail\"\n")
		plan, err := LoadPlan(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if plan.Name != "nightly.toml" {
			t.Errorf("expected name nightly.toml, got %s", plan.Name)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadPlan(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
			t.Error("expected error for missing plan")
		}
	})
}

func TestParsePlanValidation(t *testing.T) {
	tc := []struct {
		name string
		plan string
	}{
		{name: "no tasks", plan: `name = "empty"`},
		{name: "missing name", plan: "[[task]]\nkind = \"fail\"\n"},
		{name: "unknown kind", plan: "[[task]]\nname = \"a\"\nkind = \"explode\"\n"},
		{name: "copy without dest", plan: "[[task]]\nname = \"a\"\nkind = \"copy\"\nsource = \"x\"\n"},
		{name: "compare with one file", plan: "[[task]]\nname = \"a\"\nkind = \"compare\"\nsource = \"x\"\n"},
		{name: "compare without inputs", plan: "[[task]]\nname = \"a\"\nkind = \"compare\"\n"},
		{name: "negative duration", plan: "[[task]]\nname = \"a\"\nkind = \"sleep\"\nduration = \"-1s\"\n"},
		{name: "unknown key", plan: "[[task]]\nname = \"a\"\nkind = \"fail\"\ncolour = \"red\"\n"},
		{name: "malformed", plan: "[[task]\nname = "},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePlan([]byte(tt.plan))
			if !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestBuild(t *testing.T) {
	t.Run("copy, verify and settle", func(t *testing.T) {
		dir := t.TempDir()
		tu.MustWriteFile(t, dir, "in/ledger.csv", "account,amount\n1001,25.00\n1002,-3.50\n")
		plan, err := LoadPlan(tu.MustWriteFile(t, dir, "plan.toml", samplePlan))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		engine := worker.NewEngine(worker.Options{})
		engine.Start()
		defer engine.Stop()

		r := NewRunner(engine, RunnerOpts{Name: plan.Name})
		if err := Build(plan, r); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		waves, err := r.Plan()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(waves) != 3 {
			t.Fatalf("expected 3 waves, got %v", waves)
		}

		res, err := r.Execute(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, c := range res.Completions() {
			if !c.Success() {
				t.Errorf("task %s: %s (%v)", c.Name, c.Status, c.Err)
			}
		}

		got := tu.MustReadFile(t, filepath.Join(dir, "out", "ledger.csv"))
		if !strings.Contains(got, "1002,-3.50") {
			t.Errorf("copied file has unexpected content: %q", got)
		}

		cmp, ok := res.Outcomes["verify"].Result.(CompareResult)
		if !ok {
			t.Fatalf("expected CompareResult, got %T", res.Outcomes["verify"].Result)
		}
		if len(cmp.Digest) != 64 {
			t.Errorf("expected hex sha256 digest, got %q", cmp.Digest)
		}
	})

	t.Run("duplicate names", func(t *testing.T) {
		plan, err := ParsePlan([]byte("[[task]]\nname = \"a\"\nkind = \"fail\"\n[[task]]\nname = \"a\"\nkind = \"fail\"\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		r := NewRunner(worker.NewEngine(worker.Options{}), RunnerOpts{})
		if err := Build(plan, r); !errors.Is(err, shared.ErrDuplicateName) {
			t.Errorf("expected ErrDuplicateName, got %v", err)
		}
	})
}
