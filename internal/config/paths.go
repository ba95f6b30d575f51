package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "kvpedit"

// PlatformDataDir returns the platform-specific data directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/kvpedit/
//   - Linux:   $XDG_DATA_HOME/kvpedit/ or ~/.local/share/kvpedit/
//   - Windows: %APPDATA%\kvpedit\
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Application Support", appName)
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, appName)
		}
	case "linux":
		return xdgDir("XDG_DATA_HOME", ".local", "share")
	}
	return fallbackDir()
}

// PlatformConfigDir returns the platform-specific config directory.
func PlatformConfigDir() string {
	switch runtime.GOOS {
	case "darwin", "windows":
		return PlatformDataDir()
	case "linux":
		return xdgDir("XDG_CONFIG_HOME", ".config")
	}
	return fallbackDir()
}

// PlatformLogDir returns the platform-specific log directory.
func PlatformLogDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Logs", appName)
	case "linux":
		return xdgDir("XDG_STATE_HOME", ".local", "state")
	}
	return filepath.Join(PlatformDataDir(), "logs")
}

func xdgDir(env string, fallback ...string) string {
	if base := os.Getenv(env); base != "" {
		return filepath.Join(base, appName)
	}
	return filepath.Join(append(append([]string{homeDir()}, fallback...), appName)...)
}

func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return os.TempDir()
}

func fallbackDir() string {
	return filepath.Join(homeDir(), "."+appName)
}
