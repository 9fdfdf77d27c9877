package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

const envHeader = "lightup environment overrides"

// applyEnv overlays LIGHTUP_* variables on cfg. Only fields tagged `env`
// are touched; unset variables leave the file value alone.
func applyEnv(cfg *Config) error {
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return fmt.Errorf("env overrides: %w", err)
	}
	return nil
}

// EnvUsage describes the supported environment variables.
func EnvUsage() string {
	header := envHeader
	help, err := cleanenv.GetDescription(&Config{}, &header)
	if err != nil {
		return header
	}
	return help
}
