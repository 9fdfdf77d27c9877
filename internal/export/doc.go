// Package export renders alarms for outside consumers: the JSON shapes
// served by the HTTP API and the CLI, and an iCalendar feed.
package export
