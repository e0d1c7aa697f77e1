package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal and come with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if cfg.Drives == nil {
		cfg.Drives = make(map[string]Drive)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with default values and no drives.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// CLIOverrides holds values given on the command line. Empty fields do not
// override anything.
type CLIOverrides struct {
	ConfigPath string
	Drive      string
}

// ConfigPath picks the config file location: CLI > env > default.
func ConfigPath(env EnvOverrides, cli CLIOverrides) string {
	if cli.ConfigPath != "" {
		return cli.ConfigPath
	}

	if env.ConfigPath != "" {
		return env.ConfigPath
	}

	return DefaultConfigPath()
}

// Resolve loads the config file and resolves the selected drive through the
// override chain: defaults -> global keys -> drive section -> environment ->
// CLI flags. The returned Config is the one the drive was resolved from.
func Resolve(env EnvOverrides, cli CLIOverrides, logger *slog.Logger) (*Config, *ResolvedDrive, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfgPath := ConfigPath(env, cli)

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, nil, err
	}

	logger.Debug("config loaded",
		slog.String("path", cfgPath),
		slog.Int("drives", len(cfg.Drives)),
	)

	selector := cli.Drive
	if selector == "" {
		selector = env.Drive
	}

	id, err := SelectDrive(cfg, selector, logger)
	if err != nil {
		return nil, nil, err
	}

	rd, err := ResolveDrive(cfg, id, env)
	if err != nil {
		return nil, nil, err
	}

	return cfg, rd, nil
}
