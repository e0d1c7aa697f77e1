// Package config loads the onedrive-fs TOML configuration and resolves it,
// layer by layer, into the settings one drive adapter is built from.
package config

// Config is the top-level configuration parsed from a TOML file. Global
// settings are flat top-level keys supplied by the embedded sections; each
// drive lives under its own [drives.<id>] table and may override them.
type Config struct {
	DefaultDrive string           `toml:"default_drive"`
	Drives       map[string]Drive `toml:"drives"`

	CredentialsConfig
	AdapterConfig
	LoggingConfig
	EndpointsConfig
}

// CredentialsConfig holds the app registration used for the client
// credentials grant.
type CredentialsConfig struct {
	TenantID     string `toml:"tenant_id"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// AdapterConfig holds the options handed to every adapter.
type AdapterConfig struct {
	RequestTimeout int    `toml:"request_timeout"` // seconds
	ChunkSize      string `toml:"chunk_size"`
	DirectoryType  string `toml:"directory_type"`
	WaitForCopy    bool   `toml:"wait_for_copy"`
	CopyTimeout    int    `toml:"copy_timeout"` // seconds
}

// LoggingConfig controls log output for the CLI.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// EndpointsConfig points the client at the Graph API and the identity
// platform. Overridden mainly for national clouds and tests.
type EndpointsConfig struct {
	GraphURL string `toml:"graph_url"`
	LoginURL string `toml:"login_url"`
}

// Drive is one [drives.<id>] section. A drive is either located by
// searching for a SharePoint site (Site) or addressed directly (Drive plus
// DirectoryType). Empty fields inherit the global value.
type Drive struct {
	Site          string `toml:"site"`
	Drive         string `toml:"drive"`
	DirectoryType string `toml:"directory_type"`

	TenantID     string `toml:"tenant_id"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`

	RequestTimeout int    `toml:"request_timeout"`
	ChunkSize      string `toml:"chunk_size"`
	WaitForCopy    *bool  `toml:"wait_for_copy"`
	CopyTimeout    int    `toml:"copy_timeout"`
}
