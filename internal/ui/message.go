package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/desertthunder/xlsync/internal/tasks"
	"github.com/desertthunder/xlsync/internal/worker"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgProgress MsgKind = iota
	MsgLog
	MsgTaskComplete
	MsgRunComplete
)

type progressData struct {
	name    string
	value   float64
	message string
}

type logData struct {
	text  string
	level log.Level
}

type runData struct {
	result *tasks.RunResult
	err    error
}

// progressMsg is the constructor for [MsgProgress]
func progressMsg(id string, value float64, message string) Msg {
	return Msg{kind: MsgProgress, data: progressData{name: tasks.TaskName(id), value: value, message: message}}
}

// logMsg is the constructor for [MsgLog]
func logMsg(text string, level log.Level) Msg {
	return Msg{kind: MsgLog, data: logData{text: text, level: level}}
}

// taskCompleteMsg is the constructor for [MsgTaskComplete]
func taskCompleteMsg(c worker.Completion) Msg {
	return Msg{kind: MsgTaskComplete, data: c}
}

// runCompleteMsg is the constructor for [MsgRunComplete]
func runCompleteMsg(result *tasks.RunResult, err error) Msg {
	return Msg{kind: MsgRunComplete, data: runData{result: result, err: err}}
}

// Feed forwards engine and runner callbacks to the TUI over a buffered channel.
//
// Progress and log events are dropped when the buffer is full. Completions block until the TUI
// reads them or the feed is closed.
type Feed struct {
	events chan Msg
	done   chan struct{}
	once   sync.Once
}

// NewFeed creates a feed buffering up to size events.
func NewFeed(size int) *Feed {
	if size <= 0 {
		size = 256
	}
	return &Feed{events: make(chan Msg, size), done: make(chan struct{})}
}

// Handlers returns engine handlers that publish progress and messages to the feed.
func (f *Feed) Handlers() worker.Handlers {
	return worker.Handlers{
		Progress: func(id string, value float64, message string) {
			f.offer(progressMsg(id, value, message))
		},
		Message: func(text string, level log.Level) {
			f.offer(logMsg(text, level))
		},
	}
}

// Complete publishes a task completion. Use it as [tasks.RunnerOpts.OnComplete].
func (f *Feed) Complete(c worker.Completion) {
	f.send(taskCompleteMsg(c))
}

// Close releases any sender blocked on the feed. It is safe to call more than once.
func (f *Feed) Close() {
	f.once.Do(func() { close(f.done) })
}

func (f *Feed) offer(m Msg) {
	select {
	case f.events <- m:
	case <-f.done:
	default:
	}
}

func (f *Feed) send(m Msg) {
	select {
	case f.events <- m:
	case <-f.done:
	}
}

// wait returns a command that delivers the next event, or nil once the feed is closed.
func (f *Feed) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case m := <-f.events:
			return m
		case <-f.done:
			return nil
		}
	}
}
