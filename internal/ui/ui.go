package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/desertthunder/xlsync/internal/formatter"
	"github.com/desertthunder/xlsync/internal/tasks"
	"github.com/desertthunder/xlsync/internal/worker"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	PlanView ViewState = iota
	RunView
	ResultView
)

const maxLogLines = 8

// row is the display state of one task.
type row struct {
	name     string
	wave     int
	status   worker.Status
	progress float64
	message  string
	err      error
}

// Options configures a [Model].
type Options struct {
	Title string

	// OnResult is called with every finished run before the result view is shown.
	OnResult func(*tasks.RunResult)
}

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	view     ViewState
	runner   *tasks.Runner
	feed     *Feed
	title    string
	onResult func(*tasks.RunResult)
	width    int
	height   int
	rows     []row
	index    map[string]int
	cursor   int
	bar      progress.Model
	logs     []string
	result   *tasks.RunResult
	err      error
	help     help.Model
	keys     keyMap
}

// NewModel creates a TUI model for the tasks registered on runner. Events must reach the model
// through feed, so the runner's engine should be created with [Feed.Handlers] and the runner
// with [Feed.Complete].
func NewModel(ctx context.Context, runner *tasks.Runner, feed *Feed, opts Options) (*Model, error) {
	waves, err := runner.Plan()
	if err != nil {
		return nil, err
	}

	m := &Model{
		ctx:      ctx,
		view:     PlanView,
		runner:   runner,
		feed:     feed,
		title:    opts.Title,
		onResult: opts.OnResult,
		index:    make(map[string]int),
		bar:      progress.New(progress.WithDefaultGradient()),
		help:     help.New(),
		keys:     newKeyMap(),
	}
	for w, names := range waves {
		for _, name := range names {
			m.index[name] = len(m.rows)
			m.rows = append(m.rows, row{name: name, wave: w + 1})
		}
	}
	if m.title == "" {
		m.title = "xlsync"
	}
	return m, nil
}

// Init starts listening for feed events.
func (m *Model) Init() tea.Cmd {
	return m.feed.wait()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = max(msg.Width-8, 10)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case PlanView:
			return m.handlePlanKeys(msg)
		case RunView:
			return m.handleRunKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case Msg:
		m.apply(msg)
		return m, m.feed.wait()
	}

	return m, nil
}

// apply folds a feed event into the model.
func (m *Model) apply(msg Msg) {
	switch msg.kind {
	case MsgProgress:
		d := msg.data.(progressData)
		if i, ok := m.index[d.name]; ok {
			r := &m.rows[i]
			if !r.status.Terminal() {
				r.status = worker.Running
			}
			r.progress = d.value
			r.message = d.message
		}

	case MsgLog:
		d := msg.data.(logData)
		line := d.text
		switch {
		case d.level >= log.ErrorLevel:
			line = styles.err.Render(line)
		case d.level == log.WarnLevel:
			line = styles.warn.Render(line)
		}
		m.logs = append(m.logs, line)
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}

	case MsgTaskComplete:
		c := msg.data.(worker.Completion)
		if i, ok := m.index[c.Name]; ok {
			r := &m.rows[i]
			r.status = c.Status
			r.err = c.Err
			if c.Status == worker.Succeeded {
				r.progress = 100
			}
		}

	case MsgRunComplete:
		d := msg.data.(runData)
		m.result = d.result
		m.err = d.err
		m.view = ResultView
	}
}

// Overall returns the mean progress of all tasks, counting terminal tasks as complete.
func (m *Model) Overall() float64 {
	if len(m.rows) == 0 {
		return 100
	}
	var sum float64
	for _, r := range m.rows {
		if r.status.Terminal() {
			sum += 100
		} else {
			sum += r.progress
		}
	}
	return sum / float64(len(m.rows))
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case PlanView:
		return m.renderPlan()
	case RunView:
		return m.renderRun()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handlePlanKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.up):
		m.move(-1)
	case key.Matches(msg, m.keys.down):
		m.move(1)
	case key.Matches(msg, m.keys.start):
		return m, m.startRun()
	}
	return m, nil
}

func (m *Model) handleRunKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		m.runner.Cancel()
		return m, tea.Quit
	case key.Matches(msg, m.keys.cancel):
		return m, m.cancelRun()
	case key.Matches(msg, m.keys.up):
		m.move(-1)
	case key.Matches(msg, m.keys.down):
		m.move(1)
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.restart):
		return m, m.startRun()
	case key.Matches(msg, m.keys.up):
		m.move(-1)
	case key.Matches(msg, m.keys.down):
		m.move(1)
	}
	return m, nil
}

func (m *Model) move(delta int) {
	m.cursor = min(max(m.cursor+delta, 0), max(len(m.rows)-1, 0))
}

// startRun resets task state and executes the runner in the background. The result is sent
// through the feed so it arrives after every task completion.
func (m *Model) startRun() tea.Cmd {
	for i := range m.rows {
		m.rows[i] = row{name: m.rows[i].name, wave: m.rows[i].wave}
	}
	m.logs = nil
	m.result = nil
	m.err = nil
	m.view = RunView

	ctx, runner, feed, onResult := m.ctx, m.runner, m.feed, m.onResult
	return func() tea.Msg {
		res, err := runner.Execute(ctx)
		if err == nil && onResult != nil {
			onResult(res)
		}
		feed.send(runCompleteMsg(res, err))
		return nil
	}
}

func (m *Model) cancelRun() tea.Cmd {
	m.logs = append(m.logs, styles.warn.Render("Cancelling run..."))
	runner := m.runner
	return func() tea.Msg {
		runner.Cancel()
		return nil
	}
}

func (m *Model) renderRows(detail bool) string {
	width := 4
	for _, r := range m.rows {
		width = max(width, len(r.name))
	}

	var b strings.Builder
	for i, r := range m.rows {
		marker := "  "
		if i == m.cursor {
			marker = "> "
		}

		line := fmt.Sprintf("%s%-*s  %s", marker, width, r.name, styles.Status(r.status))
		switch m.view {
		case PlanView:
			line = fmt.Sprintf("%s%-*s  %s", marker, width, r.name, styles.help.Render(fmt.Sprintf("wave %d", r.wave)))
		case RunView:
			if r.status == worker.Running {
				line += fmt.Sprintf(" %3.0f%%  %s", r.progress, r.message)
			}
		}
		b.WriteString(line + "\n")

		if detail && i == m.cursor && r.err != nil {
			b.WriteString(styles.err.Render(fmt.Sprintf("    %v", r.err)) + "\n")
		}
	}
	return b.String()
}

func (m *Model) renderPlan() string {
	title := styles.title.Render(fmt.Sprintf("%s: %d tasks", m.title, len(m.rows)))
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.up, m.keys.down, m.keys.start, m.keys.quit})
	return fmt.Sprintf("%s\n%s\n%s", title, m.renderRows(false), helpView)
}

func (m *Model) renderRun() string {
	title := styles.title.Render(fmt.Sprintf("Running %s", m.title))
	bar := m.bar.ViewAs(m.Overall() / 100)

	var logs string
	if len(m.logs) > 0 {
		logs = "\n" + strings.Join(m.logs, "\n") + "\n"
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.cancel, m.keys.quit})
	return fmt.Sprintf("%s\n%s\n%s\n%s\n%s", title, m.renderRows(false), bar, logs, helpView)
}

func (m *Model) renderResult() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.up, m.keys.down, m.keys.restart, m.keys.quit})

	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Run failed: %v", m.err)) + "\n\n" + helpView
	}
	if m.result == nil {
		return styles.err.Render("No result available") + "\n\n" + helpView
	}

	var title string
	switch m.result.Status() {
	case worker.Succeeded:
		title = styles.ok.Render("✓ Run complete")
	case worker.Failed:
		title = styles.err.Render("✗ Run failed")
	default:
		title = styles.warn.Render("- Run cancelled")
	}

	counts := m.result.Counts()
	summary := fmt.Sprintf("%d succeeded, %d failed, %d cancelled, %d skipped in %s",
		counts[worker.Succeeded], counts[worker.Failed], counts[worker.Cancelled], counts[worker.Skipped],
		formatter.FormatElapsed(m.result.Elapsed()))

	return fmt.Sprintf("%s\n%s\n\n%s\n%s", title, summary, m.renderRows(true), helpView)
}
