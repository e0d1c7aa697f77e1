package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig       = "ONEDRIVE_FS_CONFIG"
	EnvDrive        = "ONEDRIVE_FS_DRIVE"
	EnvClientSecret = "ONEDRIVE_FS_CLIENT_SECRET"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath   string // ONEDRIVE_FS_CONFIG: override config file path
	Drive        string // ONEDRIVE_FS_DRIVE: drive selector
	ClientSecret string // ONEDRIVE_FS_CLIENT_SECRET: keeps the secret out of the file
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. It does not modify a Config; ResolveDrive applies them.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:   os.Getenv(EnvConfig),
		Drive:        os.Getenv(EnvDrive),
		ClientSecret: os.Getenv(EnvClientSecret),
	}
}
