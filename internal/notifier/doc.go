// Package notifier delivers alarm notifications asynchronously.
//
// Notify enqueues and returns; a small worker pool drains the queue through
// a rate limiter, retrying failed sends with jittered backoff. Repeated
// notifications (the same firing, or the same text for the same alarm)
// are suppressed for a dedup window, optionally persisted in storage so a
// restart does not re-send.
//
// Delivery problems are logged and published on the event bus; they never
// reach the scheduler.
package notifier
