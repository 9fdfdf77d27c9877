package app

import (
	"strings"
	"time"

	"lightup/internal/config"
	"lightup/internal/storage"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	delay, err := config.ParseDurationOrDefault("storage.connect_delay", sc.ConnectDelay, 2*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:          strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:            strings.TrimSpace(sc.Path),
		DSN:             strings.TrimSpace(sc.DSN),
		BusyTimeout:     busy,
		ConnectAttempts: sc.ConnectAttempts,
		ConnectDelay:    delay,
	}, nil
}
