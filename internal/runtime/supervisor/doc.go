// Package supervisor runs named goroutines under a shared context with
// panic recovery, optional restart with backoff, and per-name stats for
// the health endpoint.
package supervisor
