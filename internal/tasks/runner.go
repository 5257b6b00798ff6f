package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/xlsync/internal/shared"
	"github.com/desertthunder/xlsync/internal/worker"
)

// RunnerOpts configures a [Runner].
type RunnerOpts struct {
	Name   string // Recorded on every [RunResult]
	Logger *log.Logger

	// OnComplete receives exactly one completion per task per run, including tasks the runner
	// skipped or cancelled without submitting. It is called from the engine's worker goroutine
	// or from the goroutine that called [Runner.Execute] or [Runner.Cancel], and calls from
	// different goroutines may overlap, so it must be safe for concurrent use.
	OnComplete func(worker.Completion)
}

// backlogRetry is how often Execute retries tasks the engine refused with a full queue.
const backlogRetry = 10 * time.Millisecond

type node struct {
	name     string
	work     worker.Work
	deps     []string
	position int

	status worker.Status
	result any
	id     string // engine task ID for the active run
}

// run is the state of one Execute call.
type run struct {
	id       string
	token    *worker.Token
	started  time.Time
	pending  int
	order    []string
	outcomes map[string]worker.Completion
	backlog  []*node // ready, waiting for room in the engine queue
	done     chan struct{}
	once     sync.Once
}

func (rn *run) finish() {
	rn.once.Do(func() { close(rn.done) })
}

// Runner executes a graph of named tasks on a [worker.Engine].
//
// A task is submitted only once every dependency has succeeded. Tasks downstream of a failure
// or cancellation are skipped without running.
type Runner struct {
	engine     *worker.Engine
	name       string
	logger     *log.Logger
	onComplete func(worker.Completion)

	mu     sync.Mutex
	nodes  []*node
	byName map[string]*node
	active *run
}

// NewRunner creates a runner that submits work to engine.
func NewRunner(engine *worker.Engine, opts RunnerOpts) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Runner{
		engine:     engine,
		name:       opts.Name,
		logger:     logger,
		onComplete: opts.OnComplete,
		byName:     make(map[string]*node),
	}
}

// AddTask registers a named unit of work and the names of the tasks it depends on.
//
// Dependencies do not need to be registered yet; they are checked by [Runner.Plan] and
// [Runner.Execute].
func (r *Runner) AddTask(name string, work worker.Work, deps ...string) error {
	if name == "" {
		return fmt.Errorf("%w: task name is required", shared.ErrInvalidConfig)
	}
	if work == nil {
		return fmt.Errorf("%w: task %q has no work", shared.ErrInvalidConfig, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return fmt.Errorf("%w: cannot add %q", shared.ErrRunInProgress, name)
	}
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("%w: %q", shared.ErrDuplicateName, name)
	}

	var unique []string
	for _, dep := range deps {
		if !slices.Contains(unique, dep) {
			unique = append(unique, dep)
		}
	}

	n := &node{name: name, work: work, deps: unique, position: len(r.nodes)}
	r.nodes = append(r.nodes, n)
	r.byName[name] = n
	return nil
}

// Len returns the number of registered tasks.
func (r *Runner) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.nodes)
}

// Plan returns the tasks grouped into waves in dependency order.
//
// It fails with [shared.ErrInvalidConfig] for an unknown dependency and with a [*CycleError]
// when the graph has a cycle.
func (r *Runner) Plan() ([][]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return waves(r.nodes, r.byName)
}

// Execute runs every registered task and blocks until each one is terminal.
//
// The graph is validated before anything is submitted. Cancelling ctx cancels the run.
func (r *Runner) Execute(ctx context.Context) (*RunResult, error) {
	r.mu.Lock()
	if r.active != nil {
		r.mu.Unlock()
		return nil, shared.ErrRunInProgress
	}
	if _, err := waves(r.nodes, r.byName); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	if !r.engine.Running() {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: engine must be started before executing tasks", shared.ErrNotRunning)
	}

	rn := &run{
		id:       shared.GenerateID(),
		token:    worker.NewToken(),
		started:  time.Now(),
		pending:  len(r.nodes),
		outcomes: make(map[string]worker.Completion, len(r.nodes)),
		done:     make(chan struct{}),
	}
	r.active = rn

	var ready []*node
	for _, n := range r.nodes {
		n.status = worker.Pending
		n.result = nil
		n.id = rn.id + ":" + n.name
		if len(n.deps) == 0 {
			ready = append(ready, n)
		}
	}
	logger := shared.WithLogger(r.logger, "run", rn.id)
	logger.Info("run started", "name", r.name, "tasks", len(r.nodes))

	events := r.dispatch(rn, ready)
	finished := rn.pending == 0
	r.mu.Unlock()

	r.deliver(events)
	if finished {
		rn.finish()
	}

	retry := time.NewTicker(backlogRetry)
	defer retry.Stop()
wait:
	for {
		select {
		case <-rn.done:
			break wait
		case <-ctx.Done():
			r.Cancel()
			<-rn.done
			break wait
		case <-retry.C:
			r.retry(rn)
		}
	}

	r.mu.Lock()
	r.active = nil
	res := &RunResult{
		ID:       rn.id,
		Name:     r.name,
		Started:  rn.started,
		Finished: time.Now(),
		Order:    rn.order,
		Outcomes: rn.outcomes,
	}
	r.mu.Unlock()

	counts := res.Counts()
	logger.Info("run finished",
		"succeeded", counts[worker.Succeeded],
		"failed", counts[worker.Failed],
		"cancelled", counts[worker.Cancelled],
		"skipped", counts[worker.Skipped],
		"elapsed", res.Elapsed(),
	)
	return res, nil
}

// Cancel cancels the active run. Running tasks observe the shared token, queued tasks are removed
// from the engine, and tasks not yet submitted are reported Cancelled once their dependencies settle.
func (r *Runner) Cancel() {
	r.mu.Lock()
	rn := r.active
	if rn == nil {
		r.mu.Unlock()
		return
	}
	rn.token.Request()

	// Backlogged tasks were never submitted; dispatch settles them as Cancelled.
	backlog := rn.backlog
	rn.backlog = nil
	events := r.dispatch(rn, backlog)
	finished := rn.pending == 0

	var queued []string
	for _, n := range r.nodes {
		if n.status == worker.Ready {
			queued = append(queued, n.id)
		}
	}
	r.mu.Unlock()

	r.deliver(events)
	if finished {
		rn.finish()
	}

	r.logger.Warn("run cancelled", "run", rn.id, "queued", len(queued))
	for _, id := range queued {
		r.engine.CancelTask(id)
	}
}

// Status returns a snapshot of every task's state.
func (r *Runner) Status() map[string]worker.Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]worker.Status, len(r.nodes))
	for _, n := range r.nodes {
		out[n.name] = n.status
	}
	return out
}

// dispatch submits ready nodes in order, or settles them as Cancelled when the run is already
// cancelled or the engine has stopped. Nodes the engine refuses with a full queue, and every node
// behind them, wait in the backlog. Callers hold r.mu.
func (r *Runner) dispatch(rn *run, ready []*node) []worker.Completion {
	var events []worker.Completion
	for _, n := range ready {
		if rn.token.IsRequested() {
			events = append(events, r.settle(rn, n, worker.Completion{
				ID:     n.id,
				Name:   n.name,
				Status: worker.Cancelled,
				Err:    fmt.Errorf("%w: %s", shared.ErrCancelled, n.name),
			})...)
			continue
		}

		n.status = worker.Ready
		if len(rn.backlog) > 0 {
			rn.backlog = append(rn.backlog, n)
			continue
		}
		_, err := r.engine.Submit(worker.Task{
			ID:    n.id,
			Name:  n.name,
			Work:  r.wrap(n),
			Token: rn.token,
			OnComplete: func(c worker.Completion) {
				r.complete(rn, n, c)
			},
		})
		if errors.Is(err, shared.ErrQueueFull) {
			r.logger.Debug("engine queue full, task waits", "task", n.name)
			rn.backlog = append(rn.backlog, n)
			continue
		}
		if err != nil {
			r.logger.Error("submit failed", "task", n.name, "err", err)
			events = append(events, r.settle(rn, n, worker.Completion{
				ID:     n.id,
				Name:   n.name,
				Status: worker.Cancelled,
				Err:    err,
			})...)
		}
	}
	return events
}

// wrap marks the node running and exposes dependency results through the context.
func (r *Runner) wrap(n *node) worker.Work {
	return func(ctx context.Context, report worker.Reporter, cancelled func() bool) (any, error) {
		r.mu.Lock()
		n.status = worker.Running
		inputs := make(map[string]any, len(n.deps))
		for _, dep := range n.deps {
			inputs[dep] = r.byName[dep].result
		}
		r.mu.Unlock()

		return n.work(withResults(ctx, inputs), report, cancelled)
	}
}

// complete handles an engine completion on the worker goroutine.
func (r *Runner) complete(rn *run, n *node, c worker.Completion) {
	r.mu.Lock()
	events := r.settle(rn, n, c)
	events = append(events, r.drain(rn)...)
	finished := rn.pending == 0
	r.mu.Unlock()

	r.deliver(events)
	if finished {
		rn.finish()
	}
}

// retry resubmits backlogged tasks. Execute calls it periodically because a slot can also be
// freed by tasks that do not belong to this run.
func (r *Runner) retry(rn *run) {
	r.mu.Lock()
	events := r.drain(rn)
	finished := rn.pending == 0
	r.mu.Unlock()

	r.deliver(events)
	if finished {
		rn.finish()
	}
}

// drain hands the backlog back to dispatch. Callers hold r.mu.
func (r *Runner) drain(rn *run) []worker.Completion {
	if len(rn.backlog) == 0 {
		return nil
	}
	backlog := rn.backlog
	rn.backlog = nil
	return r.dispatch(rn, backlog)
}

// settle records a terminal completion for n and advances the graph. It returns every completion
// produced, starting with n's own. Callers hold r.mu.
func (r *Runner) settle(rn *run, n *node, c worker.Completion) []worker.Completion {
	n.status = c.Status
	n.result = c.Result
	rn.pending--
	rn.order = append(rn.order, n.name)
	rn.outcomes[n.name] = c

	events := []worker.Completion{c}
	switch c.Status {
	case worker.Succeeded:
		var ready []*node
		for _, d := range r.nodes {
			if d.status == worker.Pending && slices.Contains(d.deps, n.name) && r.depsSucceeded(d) {
				ready = append(ready, d)
			}
		}
		events = append(events, r.dispatch(rn, ready)...)
	case worker.Failed:
		events = append(events, r.skipDependents(rn, n, shared.ErrDependencyFailed)...)
	default:
		events = append(events, r.skipDependents(rn, n, shared.ErrDependencyCancelled)...)
	}
	return events
}

func (r *Runner) depsSucceeded(n *node) bool {
	for _, dep := range n.deps {
		if r.byName[dep].status != worker.Succeeded {
			return false
		}
	}
	return true
}

// skipDependents marks every pending transitive dependent of root as Skipped.
func (r *Runner) skipDependents(rn *run, root *node, cause error) []worker.Completion {
	var events []worker.Completion
	frontier := []string{root.name}
	for len(frontier) > 0 {
		name := frontier[0]
		frontier = frontier[1:]

		for _, d := range r.nodes {
			if d.status != worker.Pending || !slices.Contains(d.deps, name) {
				continue
			}
			c := worker.Completion{
				ID:     d.id,
				Name:   d.name,
				Status: worker.Skipped,
				Err:    &DependencyError{Task: d.name, Dependency: root.name, Err: cause},
			}
			d.status = worker.Skipped
			rn.pending--
			rn.order = append(rn.order, d.name)
			rn.outcomes[d.name] = c
			events = append(events, c)
			frontier = append(frontier, d.name)

			r.logger.Warn("task skipped", "task", d.name, "dependency", root.name, "reason", cause)
		}
	}
	return events
}

func (r *Runner) deliver(events []worker.Completion) {
	if r.onComplete == nil {
		return
	}
	for _, c := range events {
		r.onComplete(c)
	}
}

// TaskName returns the task name encoded in an engine task ID assigned by a [Runner].
func TaskName(id string) string {
	if _, name, ok := strings.Cut(id, ":"); ok {
		return name
	}
	return id
}

type resultsKey struct{}

func withResults(ctx context.Context, results map[string]any) context.Context {
	return context.WithValue(ctx, resultsKey{}, results)
}

// ResultOf returns the result of a direct dependency of the task running with ctx.
func ResultOf(ctx context.Context, name string) (any, bool) {
	results, ok := ctx.Value(resultsKey{}).(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := results[name]
	return v, ok
}
