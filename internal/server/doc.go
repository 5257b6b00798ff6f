// Package server exposes recorded runs over a small read-only HTTP API.
//
// `xlsync history serve` mounts [HistoryHandler], which reads from any [RunStore], and [Health]:
//
//	GET /runs                 → recorded runs, newest first (?name=, ?status=, ?limit=)
//	GET /runs/{sequence}      → one run with its task results
//	GET /runs/{sequence}?format=csv|markdown|text → the report `xlsync run` prints
//	GET /healthz              → liveness probe
//
// Handlers are mounted on a [BasicRouter], which wraps every route in the router's [Middleware]
// stack. The last middleware added runs closest to the handler. [Logging] logs each request with
// its status and duration and [Recovery] turns a panic into a 500.
//
// [Serve] runs a router until its context is cancelled and then shuts it down.
package server
