// Package models defines the persisted run history of xlsync.
//
// A [RunRecord] is one finished run of a task graph with its aggregate status, and each
// [TaskRecord] is the outcome of one task within it, ordered by when it finished. Both are
// stored through a [Store].
package models
