package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// drivesTable is the top-level key holding the per-drive sections.
const drivesTable = "drives"

// driveKeyDepth is the length of a key inside a drive section:
// drives.<id>.<key>.
const driveKeyDepth = 3

// knownGlobalKeys are the valid top-level keys in the config file.
var knownGlobalKeys = map[string]bool{
	"default_drive": true, drivesTable: true,
	// Credentials
	"tenant_id": true, "client_id": true, "client_secret": true,
	// Adapter options
	"request_timeout": true, "chunk_size": true, "directory_type": true, "wait_for_copy": true,
	"copy_timeout": true,
	// Logging
	"log_level": true, "log_format": true,
	// Endpoints
	"graph_url": true, "login_url": true,
}

// knownDriveKeys are the valid keys inside a [drives.<id>] section.
var knownDriveKeys = map[string]bool{
	"site": true, "drive": true, "directory_type": true,
	"tenant_id": true, "client_id": true, "client_secret": true,
	"request_timeout": true, "chunk_size": true, "wait_for_copy": true,
	"copy_timeout": true,
}

// Sorted for deterministic suggestions when two candidates have the same
// edit distance.
var (
	knownGlobalKeysList = sortedKeys(knownGlobalKeys)
	knownDriveKeysList  = sortedKeys(knownDriveKeys)
)

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns an
// error with "did you mean?" suggestions for each unknown key. An unknown
// table is reported once, not once per key inside it.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	seen := make(map[string]bool)

	for _, key := range md.Undecoded() {
		var err error

		switch {
		case len(key) >= driveKeyDepth && key[0] == drivesTable:
			err = buildDriveKeyError(key[1], key[2])
		case len(key) > 0 && key[0] != drivesTable:
			err = buildGlobalKeyError(key[0])
		}

		if err == nil || seen[err.Error()] {
			continue
		}

		seen[err.Error()] = true
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// buildGlobalKeyError creates a descriptive error for an unknown top-level
// key, suggesting the closest known key when one is near enough.
func buildGlobalKeyError(name string) error {
	if suggestion := closestMatch(name, knownGlobalKeysList); suggestion != "" {
		return fmt.Errorf("unknown config key %q, did you mean %q?", name, suggestion)
	}

	return fmt.Errorf("unknown config key %q", name)
}

// buildDriveKeyError is buildGlobalKeyError for a key inside a drive
// section.
func buildDriveKeyError(driveID, name string) error {
	if suggestion := closestMatch(name, knownDriveKeysList); suggestion != "" {
		return fmt.Errorf("unknown key %q in drive %q, did you mean %q?", name, driveID, suggestion)
	}

	return fmt.Errorf("unknown key %q in drive %q", name, driveID)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		if d := levenshtein(unknown, k); d < bestDist {
			bestDist = d
			best = k
		}
	}

	return best
}

// levenshtein computes the edit distance between two strings using two
// rolling rows.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
