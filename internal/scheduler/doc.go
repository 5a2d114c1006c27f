// Package scheduler owns the durable schedule of one-shot and repeating
// chat events.
//
// An event is either one-shot (absolute "date" timestamp) or repeating
// (times-of-day plus optional weekday filter and exclusion dates). Each
// scheduled event holds at most one live timer; when it fires the command
// is dispatched to a registered override callback or to the default
// delivery sink, then repeating events re-arm for their next occurrence
// and one-shot events are retired.
//
// The whole schedule is mirrored to storage as a single snapshot after
// every mutation. Writes are coalesced and best-effort: a failed write is
// logged and the in-memory schedule stays authoritative until the next
// successful one.
package scheduler
