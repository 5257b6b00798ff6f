// Package tasks executes dependency graphs of named tasks on a [worker.Engine].
//
// # Runner
//
// [Runner] accepts tasks with [Runner.AddTask] and plans them with Kahn's algorithm. Tasks are
// submitted wave by wave: a task is handed to the engine only once every dependency has
// succeeded, and the engine still runs one task at a time.
//
// When a task fails or is cancelled, every task downstream of it is skipped without running and
// reported with a [*DependencyError]. A cycle is reported as a [*CycleError] before anything runs.
//
// A task can read the results of its direct dependencies with [ResultOf].
//
// # Plans
//
// [LoadPlan] reads a TOML plan file and [Build] registers its tasks on a runner. Plans use the
// built-in units of work:
//
//   - copy: [CopyFile], chunked with progress and cancellation
//   - compare: [CompareFiles], SHA-256 reconciliation of two files
//   - sleep: [Simulate], multi-stage progress through a [worker.Tracker]
//   - fail: [Fail]
package tasks
