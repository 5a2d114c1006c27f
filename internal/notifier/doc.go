// Package notifier delivers outbound chat messages asynchronously.
//
// The scheduler's default dispatch path and operator alerts both enqueue
// here; workers rate-limit and retry sends through the transport adapter.
// Enqueueing never blocks: a full queue rejects with ErrQueueFull so a slow
// chat backend can never stall a timer callback.
//
// No deduplication is applied. Scheduled events legitimately repeat the
// same text day after day.
package notifier
