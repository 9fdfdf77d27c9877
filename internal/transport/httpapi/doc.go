// Package httpapi serves the alarm manager over JSON/HTTP.
//
// Every response body carries "success"; failures add an "error" string.
// Validation failures map to 400, unknown ids to 404 and everything else to
// 500.
package httpapi
