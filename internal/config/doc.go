// Package config loads lightup's JSON or YAML configuration, overlays
// LIGHTUP_* environment variables and hot-reloads the file.
package config
