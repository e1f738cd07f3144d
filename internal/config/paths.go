package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "briefcasectl"
const configFileName = "config.toml"

// DefaultConfigDir returns the platform-specific config directory,
// mirroring the teacher's internal/config/paths.go DefaultConfigDir.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case "linux":
		return linuxConfigDir(home)
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

func linuxConfigDir(home string) string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}
	return filepath.Join(home, ".config", appName)
}

// DefaultConfigPath is DefaultConfigDir()/config.toml.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), configFileName)
}
