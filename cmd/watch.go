package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/xlsync/internal/shared"
)

const defaultDebounce = 250 * time.Millisecond

// Watch runs a plan, then runs it again whenever the plan file is written. A change that arrives
// while a run is in progress cancels that run before the next one starts.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("plan")
	if path == "" {
		return fmt.Errorf("%w: plan file", shared.ErrMissingArgument)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return r.watch(ctx, path, cmd.Duration("debounce"), runOpts{record: !cmd.Bool("no-history"), live: true})
}

func (r *Runner) watch(ctx context.Context, path string, debounce time.Duration, opts runOpts) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve plan path: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("failed to stat plan file: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace files on save, so watch the directory rather than the file.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	r.logger.Info("watching plan", "path", abs, "debounce", debounce)

	trigger := make(chan struct{}, 1)
	trigger <- struct{}{}

	var (
		wg     sync.WaitGroup
		timer  *time.Timer
		cancel context.CancelFunc = func() {}
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
		cancel()
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			r.logger.Debug("plan changed", "op", event.Op.String())
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case trigger <- struct{}{}:
				default:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("watch error", "err", err)

		case <-trigger:
			cancel()
			wg.Wait()

			var runCtx context.Context
			runCtx, cancel = context.WithCancel(ctx)
			wg.Add(1)
			go func() {
				defer wg.Done()
				rec, err := r.execute(runCtx, abs, opts)
				switch {
				case err != nil && !errors.Is(err, context.Canceled):
					r.logger.Error("run failed to start", "err", err)
				case rec != nil:
					r.logger.Info("run finished", "status", rec.Status(), "elapsed", rec.Elapsed())
				}
			}()
		}
	}
}
