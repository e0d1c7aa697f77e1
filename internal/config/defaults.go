package config

// Default values for configuration options.
const (
	defaultRequestTimeout = 90
	defaultCopyTimeout    = 1800
	defaultChunkSize      = "3200KiB"
	defaultDirectoryType  = "drive"
	defaultLogLevel       = "info"
	defaultLogFormat      = "auto"
	defaultGraphURL       = "https://graph.microsoft.com/v1.0"
	defaultLoginURL       = "https://login.microsoftonline.com"
)

// DefaultConfig returns a Config populated with all default values. Load
// decodes the file on top of it so that omitted keys keep these values.
func DefaultConfig() *Config {
	return &Config{
		Drives: make(map[string]Drive),
		AdapterConfig: AdapterConfig{
			RequestTimeout: defaultRequestTimeout,
			CopyTimeout:    defaultCopyTimeout,
			ChunkSize:      defaultChunkSize,
			DirectoryType:  defaultDirectoryType,
		},
		LoggingConfig: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		EndpointsConfig: EndpointsConfig{
			GraphURL: defaultGraphURL,
			LoginURL: defaultLoginURL,
		},
	}
}
