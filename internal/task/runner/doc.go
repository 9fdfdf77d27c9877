// Package runner runs one polling task per active alarm.
//
// A Task owns a snapshot of its alarm, polls a Clock at a fixed interval and
// fires its alert callback once per matching minute. Callbacks from every
// task sharing a Guard run one at a time.
//
// Lifecycle: Created -> Running -> Stopping -> Stopped. Stop never blocks;
// callers that need confirmation wait on Done or call Wait with a deadline.
package runner
