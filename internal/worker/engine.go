package worker

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/xlsync/internal/shared"
)

// DefaultProgressInterval is the minimum spacing between progress callbacks for one task.
const DefaultProgressInterval = 50 * time.Millisecond

// Task is a unit of work submitted to an [Engine].
type Task struct {
	ID   string // Generated when empty
	Name string // Defaults to ID
	Work Work

	// Token links the task to a cancellation flag shared with other tasks, such as all tasks of
	// one run. The engine always gives each task its own flag as well.
	Token *Token

	// OnComplete runs after [Handlers.Complete] for this task only.
	OnComplete func(Completion)
}

// Handlers receive engine events. Nil fields are skipped.
type Handlers struct {
	Progress func(id string, value float64, message string)
	Message  func(text string, level log.Level)
	Complete func(Completion)
}

// Options configures an [Engine].
type Options struct {
	Logger   *log.Logger
	Handlers Handlers

	// ProgressInterval throttles progress callbacks. Zero means [DefaultProgressInterval];
	// a negative value disables throttling.
	ProgressInterval time.Duration

	// MaxQueue bounds the number of queued tasks. Zero means unlimited.
	MaxQueue int
}

type job struct {
	task  Task
	token *Token
}

func (j *job) cancelled() bool {
	return j.token.IsRequested() || (j.task.Token != nil && j.task.Token.IsRequested())
}

// Engine executes submitted tasks one at a time, in submission order, on a single goroutine.
type Engine struct {
	logger   *log.Logger
	handlers Handlers
	interval time.Duration
	maxQueue int

	lifecycle sync.Mutex // serializes Start and Stop

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []*job
	dropped  []*job
	jobs     map[string]*job
	current  *job
	running  bool
	stopping bool
	done     chan struct{}
}

// NewEngine creates a stopped engine.
func NewEngine(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	interval := opts.ProgressInterval
	if interval == 0 {
		interval = DefaultProgressInterval
	}

	e := &Engine{
		logger:   logger,
		handlers: opts.Handlers,
		interval: interval,
		maxQueue: opts.MaxQueue,
		jobs:     make(map[string]*job),
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Start launches the worker goroutine. It is a no-op when the engine is already running.
func (e *Engine) Start() {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	e.mu.Lock()
	if e.running && e.stopping {
		// A stop requested from a handler is still winding down.
		done := e.done
		e.mu.Unlock()
		<-done
		e.mu.Lock()
	}
	defer e.mu.Unlock()

	if e.running {
		return
	}
	e.running = true
	e.stopping = false
	e.done = make(chan struct{})
	go e.loop(e.done)
	e.logger.Debug("engine started")
}

// Stop lets the in-flight task finish, reports every queued task as Cancelled, and waits for the
// worker goroutine to exit. Submissions fail with [shared.ErrNotRunning] from the moment Stop
// is called.
//
// Stop and [Engine.Halt] must not be called from a handler: the worker goroutine running the
// handler is the one Stop waits for. Handlers use [Engine.RequestStop] instead.
func (e *Engine) Stop() {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	done := e.RequestStop()
	if done == nil {
		return
	}
	<-done
}

// RequestStop begins a stop without waiting for it and returns a channel closed once the worker
// goroutine has exited, or nil when the engine is not running. It is safe to call from a handler.
func (e *Engine) RequestStop() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return nil
	}
	e.stopping = true
	e.cond.Broadcast()
	return e.done
}

// Halt requests cancellation of the in-flight task, then stops the engine.
func (e *Engine) Halt() {
	e.CancelAll()
	e.Stop()
}

// Submit appends task to the queue and returns its ID without waiting for it to run.
func (e *Engine) Submit(task Task) (string, error) {
	if task.Work == nil {
		return "", fmt.Errorf("%w: task %q has no work", shared.ErrInvalidConfig, task.Name)
	}
	if task.ID == "" {
		task.ID = shared.GenerateID()
	}
	if task.Name == "" {
		task.Name = task.ID
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running || e.stopping {
		return "", fmt.Errorf("%w: cannot submit %q", shared.ErrNotRunning, task.Name)
	}
	if _, ok := e.jobs[task.ID]; ok {
		return "", fmt.Errorf("%w: %q is already queued or running", shared.ErrDuplicateName, task.ID)
	}
	if e.maxQueue > 0 && len(e.queue) >= e.maxQueue {
		return "", fmt.Errorf("%w: %d tasks queued", shared.ErrQueueFull, len(e.queue))
	}

	j := &job{task: task, token: NewToken()}
	e.queue = append(e.queue, j)
	e.jobs[task.ID] = j
	e.cond.Signal()
	return task.ID, nil
}

// CancelTask cancels the task with the given ID.
//
// A queued task is removed and later reported as Cancelled without its work ever running. A running
// task has its token requested. It returns false when no such task is queued or running.
func (e *Engine) CancelTask(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	j, ok := e.jobs[id]
	if !ok {
		return false
	}
	j.token.Request()

	for i, q := range e.queue {
		if q == j {
			e.queue = append(e.queue[:i], e.queue[i+1:]...)
			e.dropped = append(e.dropped, j)
			e.cond.Signal()
			break
		}
	}
	return true
}

// CancelAll requests cancellation of the in-flight task and drains the queue as Cancelled.
func (e *Engine) CancelAll() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current != nil {
		e.current.token.Request()
	}
	for _, j := range e.queue {
		j.token.Request()
	}
	e.dropped = append(e.dropped, e.queue...)
	e.queue = nil
	e.cond.Broadcast()
}

// Running reports whether the worker goroutine is accepting tasks.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running && !e.stopping
}

// Pending returns the number of queued tasks.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// Current returns the ID of the task being executed.
func (e *Engine) Current() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil {
		return "", false
	}
	return e.current.task.ID, true
}

func (e *Engine) loop(done chan struct{}) {
	defer func() {
		e.mu.Lock()
		if e.done == done {
			e.running = false
			e.stopping = false
		}
		e.mu.Unlock()
		e.logger.Debug("engine stopped")
		close(done)
	}()
	for {
		j, run, ok := e.next()
		if !ok {
			return
		}
		if !run {
			e.finish(j, Completion{
				ID:     j.task.ID,
				Name:   j.task.Name,
				Status: Cancelled,
				Err:    fmt.Errorf("%w: %s", shared.ErrCancelled, j.task.Name),
			})
			continue
		}
		e.execute(j)
	}
}

// next blocks until there is a job to run or report. run is false for jobs removed before start.
func (e *Engine) next() (j *job, run bool, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for len(e.dropped) == 0 && len(e.queue) == 0 && !e.stopping {
		e.cond.Wait()
	}

	if len(e.dropped) > 0 {
		j, e.dropped = e.dropped[0], e.dropped[1:]
		return j, false, true
	}
	if len(e.queue) == 0 {
		return nil, false, false
	}

	j, e.queue = e.queue[0], e.queue[1:]
	if e.stopping || j.cancelled() {
		return j, false, true
	}
	e.current = j
	return j, true, true
}

func (e *Engine) execute(j *job) {
	task := j.task
	logger := shared.WithLogger(e.logger, "task", task.Name, "id", task.ID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watchTokens(ctx, cancel, j.token, task.Token)

	emitter := &emitter{engine: e, id: task.ID}
	if e.interval > 0 {
		emitter.limiter = rate.NewLimiter(rate.Every(e.interval), 1)
	}
	ctx = context.WithValue(ctx, emitterKey{}, emitter)

	e.message(fmt.Sprintf("Starting task: %s", task.Name), log.InfoLevel)
	logger.Debug("task started")

	start := time.Now()
	result, err := invoke(ctx, task.Work, emitter.report, j.cancelled)
	elapsed := time.Since(start)

	c := Completion{ID: task.ID, Name: task.Name, Result: result, Err: err, Elapsed: elapsed}
	switch {
	case err == nil:
		c.Status = Succeeded
		if !IsAborted(result) {
			emitter.force(100, "Completed")
		}
		emitter.close()
		e.message(fmt.Sprintf("Task completed: %s in %.2fs", task.Name, elapsed.Seconds()), log.InfoLevel)
		logger.Info("task succeeded", "elapsed", elapsed)
	default:
		c.Status = Failed
		emitter.close()
		e.message(fmt.Sprintf("Task failed: %s - %v", task.Name, err), log.ErrorLevel)
		logger.Error("task failed", "err", err, "elapsed", elapsed)
	}

	e.finish(j, c)
}

// finish releases the job and delivers its completion outside the engine lock.
func (e *Engine) finish(j *job, c Completion) {
	e.mu.Lock()
	if e.current == j {
		e.current = nil
	}
	if e.jobs[j.task.ID] == j {
		delete(e.jobs, j.task.ID)
	}
	e.mu.Unlock()

	if e.handlers.Complete != nil {
		e.handlers.Complete(c)
	}
	if j.task.OnComplete != nil {
		j.task.OnComplete(c)
	}
}

func (e *Engine) message(text string, level log.Level) {
	if e.handlers.Message != nil {
		e.handlers.Message(text, level)
	}
}

// invoke runs work and converts a panic into an error.
func invoke(ctx context.Context, work Work, report Reporter, cancelled func() bool) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: %v", shared.ErrTaskPanicked, r)
		}
	}()
	return work(ctx, report, cancelled)
}

// watchTokens cancels ctx when any token is requested.
func watchTokens(ctx context.Context, cancel context.CancelFunc, own, run *Token) {
	var runDone <-chan struct{}
	if run != nil {
		runDone = run.Done()
	}
	select {
	case <-own.Done():
		cancel()
	case <-runDone:
		cancel()
	case <-ctx.Done():
	}
}

type emitterKey struct{}

// emitter throttles progress for one task and drops anything reported after completion.
type emitter struct {
	engine  *Engine
	id      string
	limiter *rate.Limiter

	mu     sync.Mutex
	closed bool
}

func (em *emitter) report(value float64, message string) {
	switch {
	case value < 0:
		value = 0
	case value > 100:
		value = 100
	}

	if em.open() && (value == 0 || value == 100 || em.limiter == nil || em.limiter.Allow()) {
		em.progress(value, message)
	}
}

func (em *emitter) force(value float64, message string) {
	if em.open() {
		em.progress(value, message)
	}
}

func (em *emitter) notify(text string, level log.Level) {
	if em.open() {
		em.engine.message(text, level)
	}
}

// open reports whether the task is still accepting events. Handlers are called after the check
// without holding em.mu, so a progress handler may call [Notify] for the same task.
func (em *emitter) open() bool {
	em.mu.Lock()
	defer em.mu.Unlock()
	return !em.closed
}

func (em *emitter) progress(value float64, message string) {
	if h := em.engine.handlers.Progress; h != nil {
		h(em.id, value, message)
	}
}

func (em *emitter) close() {
	em.mu.Lock()
	em.closed = true
	em.mu.Unlock()
}

// Notify sends text through the message handler of the engine running the task that owns ctx.
// It does nothing for contexts not created by an [Engine].
func Notify(ctx context.Context, text string, level log.Level) {
	if em, ok := ctx.Value(emitterKey{}).(*emitter); ok {
		em.notify(text, level)
	}
}

// TaskID returns the engine ID of the task that owns ctx.
func TaskID(ctx context.Context) (string, bool) {
	em, ok := ctx.Value(emitterKey{}).(*emitter)
	if !ok {
		return "", false
	}
	return em.id, true
}
