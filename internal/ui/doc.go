// Package ui implements an interactive run monitor using bubbletea's Elm architecture.
//
// The monitor moves through three views:
//  1. [PlanView] : Browse the planned tasks grouped by wave
//  2. [RunView] : Watch per-task status, overall progress, and engine messages
//  3. [ResultView] : Review the outcome of each task
//
// The [Model] implements the standard Init/Update/View pattern and receives messages via the Msg union type.
// Engine and runner callbacks are adapted by a [Feed], which forwards them over a channel so the worker goroutine
// never touches model state.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, c, r, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
