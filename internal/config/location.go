package config

import (
	"os"
	"path/filepath"
)

// EnvConfigPath overrides the config file location.
const EnvConfigPath = "NATIVEBRIDGE_CONFIG"

// GetConfigPath returns $NATIVEBRIDGE_CONFIG if set, otherwise
// ~/.nativebridge/config.
func GetConfigPath() (string, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".nativebridge", "config"), nil
}
