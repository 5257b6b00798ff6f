// Package repositories implements SQLite persistence for recorded runs.
//
// [RunRepository] is the [models.Store] for run history. It writes each finished run to the runs
// table and the outcome of every task to task_results in a single transaction. Deleting a run
// only stamps deleted_at, and stamped runs are excluded from every query.
//
// Runs are numbered by a counter row in runs_sequence (run #42), which the CLI accepts wherever
// a run is named. [NextSequence] reserves a number outside of an insert.
package repositories
