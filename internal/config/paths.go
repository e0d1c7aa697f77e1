package config

import (
	"os"
	"path/filepath"
)

const (
	appName        = "onedrive-fs"
	configFileName = "config.toml"
)

// userConfigDir is swapped in tests.
var userConfigDir = os.UserConfigDir

// DefaultConfigDir is the per-user config directory for the tool:
// $XDG_CONFIG_HOME/onedrive-fs (or ~/.config/onedrive-fs) on Linux,
// ~/Library/Application Support/onedrive-fs on macOS and
// %AppData%\onedrive-fs on Windows. It is "" when no home is known.
func DefaultConfigDir() string {
	base, err := userConfigDir()
	if err != nil {
		return ""
	}

	return filepath.Join(base, appName)
}

// DefaultConfigPath is the config file read when neither ONEDRIVE_FS_CONFIG
// nor --config is given.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}
