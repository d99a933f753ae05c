// Package syncer implements the bidirectional synchronization engine between
// the local store and the remote calendar/task provider.
//
// The engine is built from five pieces:
//
//   - Classify: categorizes a remote failure as fatal, rate-limited,
//     network, or other, driving every retry decision.
//   - Retrier: wraps a single remote call with bounded exponential backoff.
//     Fatal errors are never retried and surface wrapped in ErrPermanent.
//   - Exporter operations (ExportNewTask, ExportModification,
//     ExportCompletion, ExportDeletion): push local state to the provider
//     under a local-wins policy. A multi-resource export that partially
//     succeeds always persists the successful remote id first, so a retry
//     can never duplicate the resource.
//   - Import: pulls the day's remote events and tasks, detects scheduling
//     conflicts among them, and maps them idempotently onto local tasks
//     keyed by the remote identifier. Import fails open: a credential
//     failure yields a result with an error entry, never a panic or a hard
//     error, so the app stays usable offline.
//   - Drain: replays queued export operations through the same code paths a
//     live caller uses, with a queue-origin marker threaded as an explicit
//     parameter so a failure inside the drain updates the existing entry
//     instead of enqueueing a duplicate.
//
// The syncer has no threads of its own. Callers invoke Import and the
// export operations on demand and Drain from a periodic loop; concurrent
// drains for the same user must be serialized by the caller. Every
// operation re-reads current state from the store rather than trusting
// caller-supplied data, and every outcome is appended to the audit log.
package syncer
