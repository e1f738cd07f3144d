// Package config loads and validates the briefcase manager's process
// configuration (SPEC_FULL.md §3, §4.M), grounded on the teacher's
// internal/config package: TOML decode, default-then-override, explicit
// unknown-key rejection, and a separate Validate pass.
package config

// HubConfig configures the hub HTTP client (SPEC_FULL.md §4.J). Only
// BaseURL and RequestTimeout reach hub.NewClient; MaxRetries, BaseBackoff
// and MaxBackoff are validated but not read by the client, whose retry
// count and backoff are fixed constants in internal/hub.
type HubConfig struct {
	BaseURL        string `toml:"base_url"`
	RequestTimeout string `toml:"request_timeout"`
	MaxRetries     int    `toml:"max_retries"`
	BaseBackoff    string `toml:"base_backoff"`
	MaxBackoff     string `toml:"max_backoff"`
}

// PushConfig configures the push loop (spec §4.G).
type PushConfig struct {
	MaxAttempts        int `toml:"max_attempts"`
	DescriptionMaxLen  int `toml:"description_max_len"`
}

// ChangeSetConfig configures the changeset engine's application-mode
// selection (spec §4.F).
type ChangeSetConfig struct {
	AsyncThresholdBytes int64 `toml:"async_threshold_bytes"`
}

// Config is the root of the briefcase manager's TOML configuration
// (SPEC_FULL.md §3).
type Config struct {
	CacheRoot   string `toml:"cache_root"`
	LayoutMajor int    `toml:"layout_major"`
	LayoutMinor int    `toml:"layout_minor"`

	Hub       HubConfig       `toml:"hub"`
	Push      PushConfig      `toml:"push"`
	ChangeSet ChangeSetConfig `toml:"changeset"`
}
