package config

// Default values for configuration options, mirroring the teacher's
// "layer 0" defaults.go — safe starting points usable without a config
// file.
const (
	defaultCacheRoot   = "/var/lib/briefcases"
	defaultLayoutMajor = 1
	defaultLayoutMinor = 0

	defaultHubBaseURL        = "https://hub.example.com/api/v2"
	defaultHubRequestTimeout = "30s"
	defaultHubMaxRetries     = 5
	defaultHubBaseBackoff    = "200ms"
	defaultHubMaxBackoff     = "5s"

	defaultPushMaxAttempts       = 5
	defaultPushDescriptionMaxLen = 254

	defaultChangeSetAsyncThresholdBytes = 1048576
)

// DefaultConfig returns a Config populated with all default values, used
// both as the decode target (so unset fields keep defaults) and as the
// fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		CacheRoot:   defaultCacheRoot,
		LayoutMajor: defaultLayoutMajor,
		LayoutMinor: defaultLayoutMinor,
		Hub: HubConfig{
			BaseURL:        defaultHubBaseURL,
			RequestTimeout: defaultHubRequestTimeout,
			MaxRetries:     defaultHubMaxRetries,
			BaseBackoff:    defaultHubBaseBackoff,
			MaxBackoff:     defaultHubMaxBackoff,
		},
		Push: PushConfig{
			MaxAttempts:       defaultPushMaxAttempts,
			DescriptionMaxLen: defaultPushDescriptionMaxLen,
		},
		ChangeSet: ChangeSetConfig{
			AsyncThresholdBytes: defaultChangeSetAsyncThresholdBytes,
		},
	}
}
