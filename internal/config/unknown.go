package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// knownTopKeys are the valid flat top-level keys; knownSectionKeys name the
// valid keys inside each known table, mirroring the teacher's
// knownGlobalKeys/knownDriveKeys split in internal/config/unknown.go.
var knownTopKeys = map[string]bool{
	"cache_root": true, "layout_major": true, "layout_minor": true,
	"hub": true, "push": true, "changeset": true,
}

var knownSectionKeys = map[string]map[string]bool{
	"hub": {
		"base_url": true, "request_timeout": true, "max_retries": true,
		"base_backoff": true, "max_backoff": true,
	},
	"push": {
		"max_attempts": true, "description_max_len": true,
	},
	"changeset": {
		"async_threshold_bytes": true,
	},
}

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns an
// error naming every one found, mirroring the teacher's checkUnknownKeys
// (minus Levenshtein suggestions, which this module's small, flat key set
// doesn't need).
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var bad []string
	for _, key := range undecoded {
		parts := strings.SplitN(key.String(), ".", 2)
		top := parts[0]

		if len(parts) == 1 {
			if !knownTopKeys[top] {
				bad = append(bad, top)
			}
			continue
		}

		section, ok := knownSectionKeys[top]
		if !ok || !section[parts[1]] {
			bad = append(bad, key.String())
		}
	}

	if len(bad) == 0 {
		return nil
	}
	return fmt.Errorf("config: unknown key(s): %s", strings.Join(bad, ", "))
}
