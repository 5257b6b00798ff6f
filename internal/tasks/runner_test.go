package tasks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/xlsync/internal/shared"
	tu "github.com/desertthunder/xlsync/internal/testing"
	"github.com/desertthunder/xlsync/internal/worker"
)

func startedEngine(t *testing.T) *worker.Engine {
	t.Helper()
	e := worker.NewEngine(worker.Options{ProgressInterval: -1})
	e.Start()
	t.Cleanup(e.Halt)
	return e
}

// sideEffects records which units of work actually ran.
type sideEffects struct {
	mu  sync.Mutex
	ran []string
}

func (s *sideEffects) work(name string, err error) worker.Work {
	return func(ctx context.Context, report worker.Reporter, cancelled func() bool) (any, error) {
		s.mu.Lock()
		s.ran = append(s.ran, name)
		s.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return name + "-result", nil
	}
}

func (s *sideEffects) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ran...)
}

func TestRunnerAddTask(t *testing.T) {
	r := NewRunner(startedEngine(t), RunnerOpts{})
	fx := &sideEffects{}

	require.NoError(t, r.AddTask("a", fx.work("a", nil)))
	assert.ErrorIs(t, r.AddTask("a", fx.work("a", nil)), shared.ErrDuplicateName)
	assert.ErrorIs(t, r.AddTask("", fx.work("x", nil)), shared.ErrInvalidConfig)
	assert.ErrorIs(t, r.AddTask("b", nil), shared.ErrInvalidConfig)

	require.NoError(t, r.AddTask("c", fx.work("c", nil), "later", "later"))
	assert.Equal(t, 2, r.Len())
}

func TestRunnerPlan(t *testing.T) {
	t.Run("waves follow dependencies and registration order", func(t *testing.T) {
		r := NewRunner(startedEngine(t), RunnerOpts{})
		fx := &sideEffects{}

		require.NoError(t, r.AddTask("report", fx.work("report", nil), "left", "right"))
		require.NoError(t, r.AddTask("right", fx.work("right", nil), "load"))
		require.NoError(t, r.AddTask("left", fx.work("left", nil), "load"))
		require.NoError(t, r.AddTask("load", fx.work("load", nil)))
		require.NoError(t, r.AddTask("audit", fx.work("audit", nil)))

		plan, err := r.Plan()
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"load", "audit"}, {"right", "left"}, {"report"}}, plan)
	})

	t.Run("unknown dependency", func(t *testing.T) {
		r := NewRunner(startedEngine(t), RunnerOpts{})
		require.NoError(t, r.AddTask("a", (&sideEffects{}).work("a", nil), "ghost"))

		_, err := r.Plan()
		assert.ErrorIs(t, err, shared.ErrInvalidConfig)
		assert.Contains(t, err.Error(), "ghost")
	})

	t.Run("cycle witness", func(t *testing.T) {
		r := NewRunner(startedEngine(t), RunnerOpts{})
		fx := &sideEffects{}
		require.NoError(t, r.AddTask("a", fx.work("a", nil), "c"))
		require.NoError(t, r.AddTask("b", fx.work("b", nil), "a"))
		require.NoError(t, r.AddTask("c", fx.work("c", nil), "b"))
		require.NoError(t, r.AddTask("free", fx.work("free", nil)))

		_, err := r.Plan()
		require.ErrorIs(t, err, shared.ErrCyclicDependency)

		var cycle *CycleError
		require.True(t, errors.As(err, &cycle))
		assert.Equal(t, []string{"a", "c", "b", "a"}, cycle.Path)
		assert.Equal(t, "cyclic dependency: a -> c -> b -> a", err.Error())
	})

	t.Run("self dependency", func(t *testing.T) {
		r := NewRunner(startedEngine(t), RunnerOpts{})
		require.NoError(t, r.AddTask("a", (&sideEffects{}).work("a", nil), "a"))

		_, err := r.Plan()
		var cycle *CycleError
		require.True(t, errors.As(err, &cycle))
		assert.Equal(t, []string{"a", "a"}, cycle.Path)
	})
}

func TestRunnerExecute(t *testing.T) {
	t.Run("chain runs in dependency order", func(t *testing.T) {
		r := NewRunner(startedEngine(t), RunnerOpts{Name: "chain"})
		fx := &sideEffects{}

		require.NoError(t, r.AddTask("C", fx.work("C", nil), "B"))
		require.NoError(t, r.AddTask("B", fx.work("B", nil), "A"))
		require.NoError(t, r.AddTask("A", fx.work("A", nil)))

		res, err := r.Execute(context.Background())
		require.NoError(t, err)

		assert.Equal(t, []string{"A", "B", "C"}, fx.list())
		assert.Equal(t, []string{"A", "B", "C"}, res.Order)
		assert.True(t, res.Succeeded())
		assert.Equal(t, worker.Succeeded, res.Status())
		assert.Equal(t, "chain", res.Name)
		assert.Equal(t, "B-result", res.Outcomes["B"].Result)
		assert.Equal(t, 3, res.Counts()[worker.Succeeded])

		for name, s := range r.Status() {
			assert.Equal(t, worker.Succeeded, s, name)
		}
	})

	t.Run("failure skips dependents", func(t *testing.T) {
		completions := tu.NewRecorder[worker.Completion]()
		r := NewRunner(startedEngine(t), RunnerOpts{OnComplete: completions.Record})
		fx := &sideEffects{}

		require.NoError(t, r.AddTask("A", fx.work("A", nil)))
		require.NoError(t, r.AddTask("B", fx.work("B", errors.New("bad input")), "A"))
		require.NoError(t, r.AddTask("C", fx.work("C", nil), "B"))
		require.NoError(t, r.AddTask("D", fx.work("D", nil), "C"))

		res, err := r.Execute(context.Background())
		require.NoError(t, err)

		assert.Equal(t, []string{"A", "B"}, fx.list())
		assert.Equal(t, worker.Failed, res.Outcomes["B"].Status)
		assert.Equal(t, worker.Failed, res.Status())

		for _, name := range []string{"C", "D"} {
			c := res.Outcomes[name]
			assert.Equal(t, worker.Skipped, c.Status, name)
			assert.ErrorIs(t, c.Err, shared.ErrDependencyFailed)

			var depErr *DependencyError
			require.True(t, errors.As(c.Err, &depErr))
			assert.Equal(t, "B", depErr.Dependency)
			assert.Equal(t, name, depErr.Task)
		}

		got := completions.Items()
		require.Len(t, got, 4, "every task gets exactly one completion callback")
		names := make([]string, len(got))
		for i, c := range got {
			names[i] = c.Name
		}
		assert.Equal(t, []string{"A", "B", "C", "D"}, names)
	})

	t.Run("independent branches continue after a failure", func(t *testing.T) {
		r := NewRunner(startedEngine(t), RunnerOpts{})
		fx := &sideEffects{}

		require.NoError(t, r.AddTask("bad", fx.work("bad", errors.New("boom"))))
		require.NoError(t, r.AddTask("after-bad", fx.work("after-bad", nil), "bad"))
		require.NoError(t, r.AddTask("good", fx.work("good", nil)))
		require.NoError(t, r.AddTask("after-good", fx.work("after-good", nil), "good"))

		res, err := r.Execute(context.Background())
		require.NoError(t, err)

		assert.ElementsMatch(t, []string{"bad", "good", "after-good"}, fx.list())
		assert.Equal(t, worker.Skipped, res.Outcomes["after-bad"].Status)
		assert.Equal(t, worker.Succeeded, res.Outcomes["after-good"].Status)
	})

	t.Run("cycle runs nothing", func(t *testing.T) {
		r := NewRunner(startedEngine(t), RunnerOpts{})
		fx := &sideEffects{}
		require.NoError(t, r.AddTask("A", fx.work("A", nil), "B"))
		require.NoError(t, r.AddTask("B", fx.work("B", nil), "A"))

		res, err := r.Execute(context.Background())
		assert.Nil(t, res)
		assert.ErrorIs(t, err, shared.ErrCyclicDependency)
		assert.Empty(t, fx.list())
	})

	t.Run("stopped engine", func(t *testing.T) {
		r := NewRunner(worker.NewEngine(worker.Options{}), RunnerOpts{})
		require.NoError(t, r.AddTask("A", (&sideEffects{}).work("A", nil)))

		_, err := r.Execute(context.Background())
		assert.ErrorIs(t, err, shared.ErrNotRunning)
	})

	t.Run("empty graph", func(t *testing.T) {
		r := NewRunner(startedEngine(t), RunnerOpts{})
		res, err := r.Execute(context.Background())
		require.NoError(t, err)
		assert.Empty(t, res.Outcomes)
		assert.True(t, res.Succeeded())
	})

	t.Run("dependency results reach dependents", func(t *testing.T) {
		r := NewRunner(startedEngine(t), RunnerOpts{})
		fx := &sideEffects{}

		require.NoError(t, r.AddTask("load", fx.work("load", nil)))
		require.NoError(t, r.AddTask("sum", func(ctx context.Context, report worker.Reporter, cancelled func() bool) (any, error) {
			v, ok := ResultOf(ctx, "load")
			if !ok {
				return nil, errors.New("missing dependency result")
			}
			if _, ok := ResultOf(ctx, "unrelated"); ok {
				return nil, errors.New("unexpected result for unrelated task")
			}
			return v.(string) + "+sum", nil
		}, "load"))

		res, err := r.Execute(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "load-result+sum", res.Outcomes["sum"].Result)
	})

	t.Run("runner can execute again", func(t *testing.T) {
		r := NewRunner(startedEngine(t), RunnerOpts{})
		fx := &sideEffects{}
		require.NoError(t, r.AddTask("A", fx.work("A", nil)))

		first, err := r.Execute(context.Background())
		require.NoError(t, err)
		second, err := r.Execute(context.Background())
		require.NoError(t, err)

		assert.NotEqual(t, first.ID, second.ID)
		assert.Equal(t, []string{"A", "A"}, fx.list())
	})
}

func TestRunnerCancel(t *testing.T) {
	t.Run("running, queued and unsubmitted tasks", func(t *testing.T) {
		r := NewRunner(startedEngine(t), RunnerOpts{})
		fx := &sideEffects{}
		started := make(chan struct{})

		require.NoError(t, r.AddTask("long", func(ctx context.Context, report worker.Reporter, cancelled func() bool) (any, error) {
			close(started)
			<-ctx.Done()
			return worker.Aborted{Reason: "run cancelled"}, nil
		}))
		require.NoError(t, r.AddTask("queued", fx.work("queued", nil)))
		require.NoError(t, r.AddTask("after-long", fx.work("after-long", nil), "long"))
		require.NoError(t, r.AddTask("after-queued", fx.work("after-queued", nil), "queued"))

		var res *RunResult
		done := make(chan struct{})
		go func() {
			defer close(done)
			var err error
			res, err = r.Execute(context.Background())
			assert.NoError(t, err)
		}()

		<-started
		require.Eventually(t, func() bool {
			return r.Status()["queued"] == worker.Ready
		}, waitTimeout, time.Millisecond)
		r.Cancel()

		select {
		case <-done:
		case <-time.After(waitTimeout):
			t.Fatal("Execute did not return after Cancel")
		}

		assert.Empty(t, fx.list(), "no cancelled work may run")
		assert.Equal(t, worker.Succeeded, res.Outcomes["long"].Status)
		assert.True(t, worker.IsAborted(res.Outcomes["long"].Result))
		assert.Equal(t, worker.Cancelled, res.Outcomes["queued"].Status)
		assert.Equal(t, worker.Cancelled, res.Outcomes["after-long"].Status)
		assert.Equal(t, worker.Skipped, res.Outcomes["after-queued"].Status)
		assert.ErrorIs(t, res.Outcomes["after-queued"].Err, shared.ErrDependencyCancelled)
		assert.Equal(t, worker.Cancelled, res.Status())
	})

	t.Run("context cancellation", func(t *testing.T) {
		r := NewRunner(startedEngine(t), RunnerOpts{})
		var calls atomic.Int32
		require.NoError(t, r.AddTask("wait", func(ctx context.Context, report worker.Reporter, cancelled func() bool) (any, error) {
			calls.Add(1)
			<-ctx.Done()
			return nil, ctx.Err()
		}))
		require.NoError(t, r.AddTask("next", (&sideEffects{}).work("next", nil), "wait"))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		res, err := r.Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, int32(1), calls.Load())
		assert.Equal(t, worker.Failed, res.Outcomes["wait"].Status, "a returned context error is a failure")
		assert.ErrorIs(t, res.Outcomes["wait"].Err, context.Canceled)
		assert.Equal(t, worker.Skipped, res.Outcomes["next"].Status)
		assert.ErrorIs(t, res.Outcomes["next"].Err, shared.ErrDependencyFailed)
	})

	t.Run("no active run", func(t *testing.T) {
		r := NewRunner(startedEngine(t), RunnerOpts{})
		r.Cancel()
	})
}

func TestRunnerWaitsForQueueRoom(t *testing.T) {
	queueOfOne := func(t *testing.T) *worker.Engine {
		t.Helper()
		e := worker.NewEngine(worker.Options{ProgressInterval: -1, MaxQueue: 1})
		e.Start()
		t.Cleanup(e.Halt)
		return e
	}

	t.Run("full queue delays tasks without cancelling them", func(t *testing.T) {
		completions := tu.NewRecorder[worker.Completion]()
		r := NewRunner(queueOfOne(t), RunnerOpts{OnComplete: completions.Record})
		fx := &sideEffects{}
		require.NoError(t, r.AddTask("a", fx.work("a", nil)))
		require.NoError(t, r.AddTask("b", fx.work("b", nil)))
		require.NoError(t, r.AddTask("c", fx.work("c", nil)))
		require.NoError(t, r.AddTask("d", fx.work("d", nil), "c"))

		res, err := r.Execute(context.Background())
		require.NoError(t, err)
		for _, name := range []string{"a", "b", "c", "d"} {
			assert.Equal(t, worker.Succeeded, res.Outcomes[name].Status, name)
		}
		assert.Equal(t, []string{"a", "b", "c", "d"}, fx.list())
		assert.Equal(t, worker.Succeeded, res.Status())
		assert.Equal(t, 4, completions.Len())
	})

	t.Run("cancel settles waiting tasks", func(t *testing.T) {
		r := NewRunner(queueOfOne(t), RunnerOpts{})
		fx := &sideEffects{}
		started := make(chan struct{})
		require.NoError(t, r.AddTask("block", func(ctx context.Context, report worker.Reporter, cancelled func() bool) (any, error) {
			close(started)
			<-ctx.Done()
			return worker.Aborted{}, nil
		}))
		require.NoError(t, r.AddTask("queued", fx.work("queued", nil)))
		require.NoError(t, r.AddTask("waiting", fx.work("waiting", nil)))
		require.NoError(t, r.AddTask("after", fx.work("after", nil), "waiting"))

		var res *RunResult
		done := make(chan struct{})
		go func() {
			defer close(done)
			var err error
			res, err = r.Execute(context.Background())
			assert.NoError(t, err)
		}()

		<-started
		require.Eventually(t, func() bool {
			return r.Status()["waiting"] == worker.Ready
		}, waitTimeout, time.Millisecond)
		r.Cancel()

		select {
		case <-done:
		case <-time.After(waitTimeout):
			t.Fatal("Execute did not return after Cancel")
		}

		assert.Empty(t, fx.list())
		assert.Equal(t, worker.Cancelled, res.Outcomes["queued"].Status)
		assert.Equal(t, worker.Cancelled, res.Outcomes["waiting"].Status)
		assert.ErrorIs(t, res.Outcomes["waiting"].Err, shared.ErrCancelled)
		assert.Equal(t, worker.Skipped, res.Outcomes["after"].Status)
	})
}

func TestRunnerRejectsConcurrentExecute(t *testing.T) {
	r := NewRunner(startedEngine(t), RunnerOpts{})
	started, release := make(chan struct{}), make(chan struct{})
	require.NoError(t, r.AddTask("block", func(ctx context.Context, report worker.Reporter, cancelled func() bool) (any, error) {
		close(started)
		<-release
		return nil, nil
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := r.Execute(context.Background())
		assert.NoError(t, err)
	}()
	<-started

	_, err := r.Execute(context.Background())
	assert.ErrorIs(t, err, shared.ErrRunInProgress)
	assert.ErrorIs(t, r.AddTask("late", (&sideEffects{}).work("late", nil)), shared.ErrRunInProgress)

	close(release)
	<-done
}

const waitTimeout = 5 * time.Second

func TestRunResultRecord(t *testing.T) {
	r := NewRunner(startedEngine(t), RunnerOpts{Name: "nightly"})
	fx := &sideEffects{}
	require.NoError(t, r.AddTask("A", fx.work("A", nil)))
	require.NoError(t, r.AddTask("B", fx.work("B", errors.New("locked")), "A"))
	require.NoError(t, r.AddTask("C", fx.work("C", nil), "B"))

	res, err := r.Execute(context.Background())
	require.NoError(t, err)

	rec := res.Record()
	require.NoError(t, rec.Validate())
	assert.Equal(t, "nightly", rec.Name())
	assert.Equal(t, "failed", rec.Status())

	tasks := rec.Tasks()
	require.Len(t, tasks, 3)
	assert.Equal(t, "A", tasks[0].Name)
	assert.Equal(t, "locked", tasks[1].Error)
	assert.Equal(t, "skipped", tasks[2].Status)
	assert.Equal(t, 2, tasks[2].Position)
}

func TestTaskName(t *testing.T) {
	assert.Equal(t, "copy:ledger", TaskName("0b5e3a52-6b1f-4c8e-9a51-0d7e1c2f9a10:copy:ledger"))
	assert.Equal(t, "standalone", TaskName("standalone"))
}
