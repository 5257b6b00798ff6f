package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/desertthunder/xlsync/internal/worker"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
	}
}

// Status renders a task status with its color and a one-character marker.
func (p *Palette) Status(s worker.Status) string {
	switch s {
	case worker.Succeeded:
		return p.ok.Render("✓ " + s.String())
	case worker.Failed:
		return p.err.Render("✗ " + s.String())
	case worker.Cancelled, worker.Skipped:
		return p.warn.Render("- " + s.String())
	case worker.Running:
		return p.title.UnsetMarginBottom().Render("» " + s.String())
	default:
		return p.help.Render("· " + s.String())
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}
