package tasks

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/xlsync/internal/shared"
	"github.com/desertthunder/xlsync/internal/worker"
)

// DefaultChunkSize is the copy buffer size used when a plan does not set chunk_size.
const DefaultChunkSize = 64 * 1024

// CopyResult is returned by [CopyFile].
type CopyResult struct {
	Source string `json:"source"`
	Dest   string `json:"dest"`
	Bytes  int64  `json:"bytes"`
}

// CompareResult is returned by [CompareFiles] when both files hash to the same digest.
type CompareResult struct {
	Left   string `json:"left"`
	Right  string `json:"right"`
	Digest string `json:"digest"`
}

// CopyFile copies source to dest in chunks, reporting progress after each one.
//
// The copy is written to a temporary file next to dest and renamed into place only when complete,
// so cancellation never leaves a partial dest behind.
func CopyFile(source, dest string, chunkSize int) worker.Work {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	return func(ctx context.Context, report worker.Reporter, cancelled func() bool) (any, error) {
		in, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("failed to open source: %w", err)
		}
		defer in.Close()

		info, err := in.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat source: %w", err)
		}

		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return nil, fmt.Errorf("failed to create destination directory: %w", err)
		}

		out, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
		if err != nil {
			return nil, fmt.Errorf("failed to create temporary file: %w", err)
		}
		tmp := out.Name()
		discard := func() {
			out.Close()
			os.Remove(tmp)
		}

		total := info.Size()
		name := filepath.Base(source)
		report(0, fmt.Sprintf("Copying %s", name))

		buf := make([]byte, chunkSize)
		var written int64
		for {
			if cancelled() {
				discard()
				return worker.Aborted{Reason: fmt.Sprintf("copy of %s cancelled after %d bytes", name, written)}, nil
			}

			n, rerr := in.Read(buf)
			if n > 0 {
				if _, err := out.Write(buf[:n]); err != nil {
					discard()
					return nil, fmt.Errorf("failed to write %s: %w", dest, err)
				}
				written += int64(n)
				if total > 0 {
					pct := float64(written) / float64(total) * 100
					report(pct, fmt.Sprintf("Copying %s: %d%%", name, int(pct)))
				}
			}
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				discard()
				return nil, fmt.Errorf("failed to read %s: %w", source, rerr)
			}
		}

		if err := out.Close(); err != nil {
			os.Remove(tmp)
			return nil, fmt.Errorf("failed to flush %s: %w", dest, err)
		}
		if err := os.Chmod(tmp, info.Mode().Perm()); err != nil {
			os.Remove(tmp)
			return nil, fmt.Errorf("failed to set permissions on %s: %w", dest, err)
		}
		if err := os.Rename(tmp, dest); err != nil {
			os.Remove(tmp)
			return nil, fmt.Errorf("failed to move copy into place: %w", err)
		}

		worker.Notify(ctx, fmt.Sprintf("Copied %s (%d bytes)", name, written), log.InfoLevel)
		return CopyResult{Source: source, Dest: dest, Bytes: written}, nil
	}
}

type digestResult struct {
	path   string
	digest []byte
	err    error
}

// CompareFiles reconciles two files by SHA-256 digest. A mismatch fails with [shared.ErrMismatch].
//
// When both paths are empty the files come from the [CopyResult] of a dependency.
func CompareFiles(left, right string, deps []string) worker.Work {
	return func(ctx context.Context, report worker.Reporter, cancelled func() bool) (any, error) {
		left, right := left, right
		if left == "" && right == "" {
			for _, dep := range deps {
				if res, ok := ResultOf(ctx, dep); ok {
					if cr, ok := res.(CopyResult); ok {
						left, right = cr.Source, cr.Dest
						break
					}
				}
			}
		}
		if left == "" || right == "" {
			return nil, fmt.Errorf("%w: compare needs source and dest, or a copy dependency", shared.ErrMissingArgument)
		}

		report(0, "Hashing files")

		results := make(chan digestResult, 2)
		var wg sync.WaitGroup
		for _, path := range []string{left, right} {
			wg.Add(1)
			go func(path string) {
				defer wg.Done()
				sum, err := digest(ctx, path)
				results <- digestResult{path: path, digest: sum, err: err}
			}(path)
		}
		go func() {
			wg.Wait()
			close(results)
		}()

		digests := make(map[string][]byte, 2)
		var errs []error
		for res := range results {
			if res.err != nil {
				errs = append(errs, res.err)
				continue
			}
			digests[res.path] = res.digest
			report(float64(len(digests))*50, fmt.Sprintf("Hashed %s", filepath.Base(res.path)))
		}

		if cancelled() {
			return worker.Aborted{Reason: "compare cancelled"}, nil
		}
		if err := errors.Join(errs...); err != nil {
			return nil, err
		}

		if !bytes.Equal(digests[left], digests[right]) {
			return nil, fmt.Errorf("%w: %s and %s", shared.ErrMismatch, left, right)
		}
		return CompareResult{Left: left, Right: right, Digest: hex.EncodeToString(digests[left])}, nil
	}
}

// digest hashes the file at path, stopping early when ctx is cancelled.
func digest(ctx context.Context, path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, DefaultChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := f.Read(buf)
		h.Write(buf[:n])
		if err == io.EOF {
			return h.Sum(nil), nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}
}

// Simulate sleeps for d, split evenly across stages, reporting weighted progress through a
// [worker.Tracker].
func Simulate(d time.Duration, stages []string) worker.Work {
	if len(stages) == 0 {
		stages = []string{"work"}
	}

	return func(ctx context.Context, report worker.Reporter, cancelled func() bool) (any, error) {
		weighted := make([]worker.Stage, len(stages))
		for i, s := range stages {
			weighted[i] = worker.Stage{Name: s, Weight: 1}
		}
		tracker, err := worker.NewTracker(weighted, worker.Sink(report))
		if err != nil {
			return nil, err
		}

		const steps = 10
		tick := d / time.Duration(len(stages)*steps)
		for i := range stages {
			if i > 0 {
				if err := tracker.Advance(); err != nil {
					return nil, err
				}
			}
			for step := 1; step <= steps; step++ {
				select {
				case <-ctx.Done():
					_, name := tracker.Current()
					return worker.Aborted{Reason: fmt.Sprintf("cancelled during %s", name)}, nil
				case <-time.After(tick):
				}
				if err := tracker.Report(float64(step*100/steps), ""); err != nil {
					return nil, err
				}
			}
		}
		return d.String(), nil
	}
}

// Fail returns work that always fails with message.
func Fail(message string) worker.Work {
	if message == "" {
		message = "task failed"
	}
	return func(ctx context.Context, report worker.Reporter, cancelled func() bool) (any, error) {
		return nil, errors.New(message)
	}
}
