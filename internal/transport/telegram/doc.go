// Package telegram delivers alarm notifications and log lines through a
// Telegram bot, and optionally answers a few read-only commands.
package telegram
