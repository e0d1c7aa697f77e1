package config

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// ErrNoDrives is returned when a drive is needed but none is configured.
var ErrNoDrives = errors.New("no drives configured, add a [drives.<id>] section to the config file")

// ResolvedDrive is one drive's effective settings after merging global
// values, the drive's own section and environment overrides. It is the
// final product consumed by the adapter factory.
type ResolvedDrive struct {
	ID            string
	Site          string
	Drive         string
	DirectoryType string

	TenantID     string
	ClientID     string
	ClientSecret string

	RequestTimeout time.Duration
	ChunkSize      int64
	WaitForCopy    bool
	CopyTimeout    time.Duration

	GraphURL string
	LoginURL string
}

// SelectDrive picks a drive identifier. A non-empty selector matches an
// exact identifier first, then a unique substring. An empty selector falls
// back to default_drive, then to the only configured drive.
func SelectDrive(cfg *Config, selector string, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if len(cfg.Drives) == 0 {
		return "", ErrNoDrives
	}

	if selector != "" {
		return matchBySelector(cfg, selector, logger)
	}

	if cfg.DefaultDrive != "" {
		logger.Debug("selected default drive", slog.String("drive", cfg.DefaultDrive))
		return cfg.DefaultDrive, nil
	}

	if len(cfg.Drives) == 1 {
		for id := range cfg.Drives {
			logger.Debug("auto-selected single drive", slog.String("drive", id))
			return id, nil
		}
	}

	return "", fmt.Errorf("multiple drives configured (%s), specify one with --drive",
		strings.Join(DriveIDs(cfg), ", "))
}

func matchBySelector(cfg *Config, selector string, logger *slog.Logger) (string, error) {
	if _, ok := cfg.Drives[selector]; ok {
		logger.Debug("drive matched by exact id", slog.String("drive", selector))
		return selector, nil
	}

	var matches []string

	for _, id := range DriveIDs(cfg) {
		if strings.Contains(id, selector) {
			matches = append(matches, id)
		}
	}

	switch len(matches) {
	case 1:
		logger.Debug("drive matched by substring",
			slog.String("selector", selector),
			slog.String("drive", matches[0]),
		)

		return matches[0], nil
	case 0:
		return "", fmt.Errorf("no drive matching %q", selector)
	default:
		return "", fmt.Errorf("ambiguous drive selector %q matches: %s", selector, strings.Join(matches, ", "))
	}
}

// DriveIDs returns the configured drive identifiers, sorted.
func DriveIDs(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Drives))
	for id := range cfg.Drives {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// ResolveDrive builds the ResolvedDrive for id: global values first, then
// every field the drive section sets, then env. The result is validated
// with ValidateResolved.
func ResolveDrive(cfg *Config, id string, env EnvOverrides) (*ResolvedDrive, error) {
	d, ok := cfg.Drives[id]
	if !ok {
		return nil, fmt.Errorf("no drive %q in config", id)
	}

	rd := &ResolvedDrive{
		ID:            id,
		Site:          d.Site,
		Drive:         d.Drive,
		DirectoryType: pick(d.DirectoryType, cfg.DirectoryType),
		TenantID:      pick(d.TenantID, cfg.TenantID),
		ClientID:      pick(d.ClientID, cfg.ClientID),
		ClientSecret:  pick(d.ClientSecret, cfg.ClientSecret),
		WaitForCopy:   cfg.WaitForCopy,
		GraphURL:      strings.TrimRight(cfg.GraphURL, "/"),
		LoginURL:      strings.TrimRight(cfg.LoginURL, "/"),
	}

	timeout := cfg.RequestTimeout
	if d.RequestTimeout > 0 {
		timeout = d.RequestTimeout
	}

	rd.RequestTimeout = time.Duration(timeout) * time.Second

	copyTimeout := cfg.CopyTimeout
	if d.CopyTimeout > 0 {
		copyTimeout = d.CopyTimeout
	}

	rd.CopyTimeout = time.Duration(copyTimeout) * time.Second

	chunk, err := ParseSize(pick(d.ChunkSize, cfg.ChunkSize))
	if err != nil {
		return nil, fmt.Errorf("drive %q: chunk_size: %w", id, err)
	}

	rd.ChunkSize = chunk

	if d.WaitForCopy != nil {
		rd.WaitForCopy = *d.WaitForCopy
	}

	if env.ClientSecret != "" {
		rd.ClientSecret = env.ClientSecret
	}

	if err := ValidateResolved(rd); err != nil {
		return nil, err
	}

	return rd, nil
}

// pick returns override when set, otherwise fallback.
func pick(override, fallback string) string {
	if override != "" {
		return override
	}

	return fallback
}
