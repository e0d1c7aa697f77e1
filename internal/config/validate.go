package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
)

// chunkAlignBytes is the 320 KiB granularity upload chunks must respect.
const chunkAlignBytes = 327680

var (
	validDirectoryTypes = map[string]bool{"drive": true, "drives": true, "sites": true}
	validLogLevels      = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats     = map[string]bool{"auto": true, "text": true, "json": true}
)

// Validate checks all configuration values and returns every error found,
// so a broken file can be fixed in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateAdapter(&cfg.AdapterConfig)...)
	errs = append(errs, validateLogging(&cfg.LoggingConfig)...)
	errs = append(errs, validateEndpoints(&cfg.EndpointsConfig)...)
	errs = append(errs, validateDrives(cfg)...)

	return errors.Join(errs...)
}

// ValidateResolved checks a fully resolved drive. Credentials are checked
// here rather than in Validate because the secret may arrive from the
// environment.
func ValidateResolved(rd *ResolvedDrive) error {
	var errs []error

	if rd.TenantID == "" {
		errs = append(errs, fmt.Errorf("drive %q: tenant_id is required", rd.ID))
	}

	if rd.ClientID == "" {
		errs = append(errs, fmt.Errorf("drive %q: client_id is required", rd.ID))
	}

	if rd.ClientSecret == "" {
		errs = append(errs, fmt.Errorf("drive %q: client_secret is required (or set %s)", rd.ID, EnvClientSecret))
	}

	return errors.Join(errs...)
}

func validateAdapter(a *AdapterConfig) []error {
	var errs []error

	if a.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request_timeout: must be positive, got %d", a.RequestTimeout))
	}

	if a.CopyTimeout <= 0 {
		errs = append(errs, fmt.Errorf("copy_timeout: must be positive, got %d", a.CopyTimeout))
	}

	if err := validateChunkSize(a.ChunkSize); err != nil {
		errs = append(errs, fmt.Errorf("chunk_size: %w", err))
	}

	if !validDirectoryTypes[a.DirectoryType] {
		errs = append(errs, fmt.Errorf("directory_type: must be one of drive, drives, sites; got %q", a.DirectoryType))
	}

	return errs
}

// validateChunkSize requires a positive multiple of 320 KiB.
func validateChunkSize(s string) error {
	n, err := ParseSize(s)
	if err != nil {
		return err
	}

	if n <= 0 || n%chunkAlignBytes != 0 {
		return fmt.Errorf("must be a positive multiple of 320 KiB (%d bytes), got %q", chunkAlignBytes, s)
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

func validateEndpoints(e *EndpointsConfig) []error {
	var errs []error

	if err := validateURL(e.GraphURL); err != nil {
		errs = append(errs, fmt.Errorf("graph_url: %w", err))
	}

	if err := validateURL(e.LoginURL); err != nil {
		errs = append(errs, fmt.Errorf("login_url: %w", err))
	}

	return errs
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}

	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("must be an absolute http(s) URL, got %q", raw)
	}

	return nil
}

func validateDrives(cfg *Config) []error {
	var errs []error

	if cfg.DefaultDrive != "" {
		if _, ok := cfg.Drives[cfg.DefaultDrive]; !ok {
			errs = append(errs, fmt.Errorf("default_drive: no drive section %q", cfg.DefaultDrive))
		}
	}

	ids := make([]string, 0, len(cfg.Drives))
	for id := range cfg.Drives {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	for _, id := range ids {
		errs = append(errs, validateDrive(id, cfg.Drives[id])...)
	}

	return errs
}

func validateDrive(id string, d Drive) []error {
	var errs []error

	switch {
	case d.Site == "" && d.Drive == "":
		errs = append(errs, fmt.Errorf("drive %q: one of site or drive is required", id))
	case d.Site != "" && d.Drive != "":
		errs = append(errs, fmt.Errorf("drive %q: site and drive are mutually exclusive", id))
	}

	if d.DirectoryType != "" && !validDirectoryTypes[d.DirectoryType] {
		errs = append(errs, fmt.Errorf("drive %q: directory_type: must be one of drive, drives, sites; got %q",
			id, d.DirectoryType))
	}

	if d.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("drive %q: request_timeout: must be positive, got %d", id, d.RequestTimeout))
	}

	if d.CopyTimeout < 0 {
		errs = append(errs, fmt.Errorf("drive %q: copy_timeout: must be positive, got %d", id, d.CopyTimeout))
	}

	if d.ChunkSize != "" {
		if err := validateChunkSize(d.ChunkSize); err != nil {
			errs = append(errs, fmt.Errorf("drive %q: chunk_size: %w", id, err))
		}
	}

	return errs
}
