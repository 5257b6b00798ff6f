// Package worker runs long units of work on a single background goroutine.
//
// # Components
//
//   - [Token] is a one-way cancellation flag shared between the caller and a running unit of work.
//   - [Tracker] folds weighted stages into a single 0-100 progress value.
//   - [Engine] owns one goroutine and a FIFO queue of [Task] values.
//
// # Callbacks
//
// [Handlers] receive progress, message and completion events. Every callback runs on the
// engine's worker goroutine and never while the engine holds its lock, so a handler may call
// back into the engine (for example to submit the next task). The exceptions are [Engine.Start],
// [Engine.Stop] and [Engine.Halt], which wait for the worker goroutine; a handler that needs to
// stop the engine calls [Engine.RequestStop]. Handlers that touch UI state must marshal the event
// onto their own goroutine.
//
// For a given task the order is always zero or more progress and message calls followed by
// exactly one completion.
//
// # Cancellation
//
// Cancellation is cooperative. A running unit of work sees it through the cancellation checker,
// the [Token] passed on [Task], or the context handed to [Work]. The engine never interrupts a
// unit of work that ignores all three; [Engine.Stop] waits for it to return.
package worker
