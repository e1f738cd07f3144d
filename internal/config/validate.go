package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"time"
)

const (
	minRetries  = 1
	maxRetries  = 20
	minAttempts = 1
	maxAttempts = 20
)

// Validate checks every configuration value and returns all errors found
// at once via errors.Join, mirroring the teacher's accumulate-all-errors
// Validate.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.CacheRoot == "" {
		errs = append(errs, errors.New("config: cache_root must not be empty"))
	} else if !filepath.IsAbs(cfg.CacheRoot) {
		errs = append(errs, fmt.Errorf("config: cache_root %q must be an absolute path", cfg.CacheRoot))
	}

	if cfg.LayoutMajor < 0 || cfg.LayoutMinor < 0 {
		errs = append(errs, errors.New("config: layout_major/layout_minor must be non-negative"))
	}

	errs = append(errs, validateHub(&cfg.Hub)...)
	errs = append(errs, validatePush(&cfg.Push)...)
	errs = append(errs, validateChangeSet(&cfg.ChangeSet)...)

	return errors.Join(errs...)
}

func validateHub(h *HubConfig) []error {
	var errs []error

	if h.BaseURL == "" {
		errs = append(errs, errors.New("config: hub.base_url must not be empty"))
	} else if u, err := url.Parse(h.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("config: hub.base_url %q is not a valid absolute URL", h.BaseURL))
	}

	if h.MaxRetries < minRetries || h.MaxRetries > maxRetries {
		errs = append(errs, fmt.Errorf("config: hub.max_retries must be in [%d, %d]", minRetries, maxRetries))
	}

	for name, raw := range map[string]string{
		"hub.request_timeout": h.RequestTimeout,
		"hub.base_backoff":    h.BaseBackoff,
		"hub.max_backoff":     h.MaxBackoff,
	} {
		if _, err := time.ParseDuration(raw); err != nil {
			errs = append(errs, fmt.Errorf("config: %s %q is not a valid duration: %w", name, raw, err))
		}
	}

	return errs
}

func validatePush(p *PushConfig) []error {
	var errs []error

	if p.MaxAttempts < minAttempts || p.MaxAttempts > maxAttempts {
		errs = append(errs, fmt.Errorf("config: push.max_attempts must be in [%d, %d]", minAttempts, maxAttempts))
	}
	if p.DescriptionMaxLen <= 0 {
		errs = append(errs, errors.New("config: push.description_max_len must be positive"))
	}

	return errs
}

func validateChangeSet(c *ChangeSetConfig) []error {
	if c.AsyncThresholdBytes <= 0 {
		return []error{errors.New("config: changeset.async_threshold_bytes must be positive")}
	}
	return nil
}

// RequestTimeoutDuration, BaseBackoffDuration, and MaxBackoffDuration parse the hub config's
// string durations; Validate guarantees they parse cleanly once a Config
// has passed validation.
func (h *HubConfig) RequestTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(h.RequestTimeout)
	return d
}

func (h *HubConfig) BaseBackoffDuration() time.Duration {
	d, _ := time.ParseDuration(h.BaseBackoff)
	return d
}

func (h *HubConfig) MaxBackoffDuration() time.Duration {
	d, _ := time.ParseDuration(h.MaxBackoff)
	return d
}
