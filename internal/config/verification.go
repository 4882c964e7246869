package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/JaimeStill/warden/pkg/formatting"
)

const (
	EnvVerificationMaxUploadSize     = "WARDEN_VERIFICATION_MAX_UPLOAD_SIZE"
	EnvVerificationAllowedTypes      = "WARDEN_VERIFICATION_ALLOWED_TYPES"
	EnvVerificationEstimatedDuration = "WARDEN_VERIFICATION_ESTIMATED_DURATION"
	EnvVerificationTickInterval      = "WARDEN_VERIFICATION_TICK_INTERVAL"
	EnvVerificationMaxIncrement      = "WARDEN_VERIFICATION_MAX_INCREMENT"
	EnvVerificationProgressCap       = "WARDEN_VERIFICATION_PROGRESS_CAP"
	EnvVerificationSettleDelay       = "WARDEN_VERIFICATION_SETTLE_DELAY"
	EnvVerificationTimeout           = "WARDEN_VERIFICATION_TIMEOUT"
	EnvVerificationSessionTTL        = "WARDEN_VERIFICATION_SESSION_TTL"
	EnvVerificationMaxSessions       = "WARDEN_VERIFICATION_MAX_SESSIONS"
)

var defaultAllowedTypes = []string{
	"application/pdf",
	"image/jpeg",
	"image/png",
	"image/tiff",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// VerificationConfig holds upload limits, progress pacing, and session bounds.
// Durations and sizes are strings ("800ms", "10MB") parsed on access.
type VerificationConfig struct {
	MaxUploadSize     string   `toml:"max_upload_size"`
	AllowedTypes      []string `toml:"allowed_types"`
	EstimatedDuration string   `toml:"estimated_duration"`
	TickInterval      string   `toml:"tick_interval"`
	MaxIncrement      float64  `toml:"max_increment"`
	ProgressCap       float64  `toml:"progress_cap"`
	SettleDelay       string   `toml:"settle_delay"`
	Timeout           string   `toml:"timeout"`
	SessionTTL        string   `toml:"session_ttl"`
	MaxSessions       int      `toml:"max_sessions"`
	KeyPrefix         string   `toml:"key_prefix"`
}

// MaxUploadSizeBytes returns MaxUploadSize in bytes.
func (c *VerificationConfig) MaxUploadSizeBytes() int64 {
	n, _ := formatting.ParseBytes(c.MaxUploadSize)
	return n
}

// EstimatedDurationValue returns EstimatedDuration as a time.Duration.
func (c *VerificationConfig) EstimatedDurationValue() time.Duration {
	return duration(c.EstimatedDuration)
}

// TickIntervalDuration returns TickInterval as a time.Duration.
func (c *VerificationConfig) TickIntervalDuration() time.Duration {
	return duration(c.TickInterval)
}

// SettleDelayDuration returns SettleDelay as a time.Duration.
func (c *VerificationConfig) SettleDelayDuration() time.Duration {
	return duration(c.SettleDelay)
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *VerificationConfig) TimeoutDuration() time.Duration {
	return duration(c.Timeout)
}

// SessionTTLDuration returns SessionTTL as a time.Duration.
func (c *VerificationConfig) SessionTTLDuration() time.Duration {
	return duration(c.SessionTTL)
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *VerificationConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *VerificationConfig) Merge(overlay *VerificationConfig) {
	if overlay.MaxUploadSize != "" {
		c.MaxUploadSize = overlay.MaxUploadSize
	}
	if len(overlay.AllowedTypes) > 0 {
		c.AllowedTypes = overlay.AllowedTypes
	}
	if overlay.EstimatedDuration != "" {
		c.EstimatedDuration = overlay.EstimatedDuration
	}
	if overlay.TickInterval != "" {
		c.TickInterval = overlay.TickInterval
	}
	if overlay.MaxIncrement != 0 {
		c.MaxIncrement = overlay.MaxIncrement
	}
	if overlay.ProgressCap != 0 {
		c.ProgressCap = overlay.ProgressCap
	}
	if overlay.SettleDelay != "" {
		c.SettleDelay = overlay.SettleDelay
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
	if overlay.SessionTTL != "" {
		c.SessionTTL = overlay.SessionTTL
	}
	if overlay.MaxSessions != 0 {
		c.MaxSessions = overlay.MaxSessions
	}
	if overlay.KeyPrefix != "" {
		c.KeyPrefix = overlay.KeyPrefix
	}
}

func (c *VerificationConfig) loadDefaults() {
	if c.MaxUploadSize == "" {
		c.MaxUploadSize = "10MB"
	}
	if len(c.AllowedTypes) == 0 {
		c.AllowedTypes = append([]string(nil), defaultAllowedTypes...)
	}
	if c.EstimatedDuration == "" {
		c.EstimatedDuration = "5s"
	}
	if c.TickInterval == "" {
		c.TickInterval = "800ms"
	}
	if c.MaxIncrement == 0 {
		c.MaxIncrement = 15
	}
	if c.ProgressCap == 0 {
		c.ProgressCap = 95
	}
	if c.SettleDelay == "" {
		c.SettleDelay = "500ms"
	}
	if c.Timeout == "" {
		c.Timeout = "2m"
	}
	if c.SessionTTL == "" {
		c.SessionTTL = "30m"
	}
	if c.MaxSessions == 0 {
		c.MaxSessions = 1000
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "verifications"
	}
}

func (c *VerificationConfig) loadEnv() {
	if v := os.Getenv(EnvVerificationMaxUploadSize); v != "" {
		c.MaxUploadSize = v
	}
	if v := os.Getenv(EnvVerificationAllowedTypes); v != "" {
		c.AllowedTypes = splitList(v)
	}
	if v := os.Getenv(EnvVerificationEstimatedDuration); v != "" {
		c.EstimatedDuration = v
	}
	if v := os.Getenv(EnvVerificationTickInterval); v != "" {
		c.TickInterval = v
	}
	if v := os.Getenv(EnvVerificationMaxIncrement); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.MaxIncrement = f
		}
	}
	if v := os.Getenv(EnvVerificationProgressCap); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.ProgressCap = f
		}
	}
	if v := os.Getenv(EnvVerificationSettleDelay); v != "" {
		c.SettleDelay = v
	}
	if v := os.Getenv(EnvVerificationTimeout); v != "" {
		c.Timeout = v
	}
	if v := os.Getenv(EnvVerificationSessionTTL); v != "" {
		c.SessionTTL = v
	}
	if v := os.Getenv(EnvVerificationMaxSessions); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxSessions = n
		}
	}
}

func (c *VerificationConfig) validate() error {
	if n, err := formatting.ParseBytes(c.MaxUploadSize); err != nil {
		return fmt.Errorf("invalid max_upload_size: %w", err)
	} else if n <= 0 {
		return fmt.Errorf("max_upload_size must be positive")
	}

	for name, v := range map[string]string{
		"estimated_duration": c.EstimatedDuration,
		"tick_interval":      c.TickInterval,
		"settle_delay":       c.SettleDelay,
		"timeout":            c.Timeout,
		"session_ttl":        c.SessionTTL,
	} {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}

	if c.EstimatedDurationValue() == 0 || c.TickIntervalDuration() == 0 {
		return fmt.Errorf("estimated_duration and tick_interval must be positive")
	}
	if c.MaxIncrement <= 0 {
		return fmt.Errorf("max_increment must be positive")
	}
	if c.ProgressCap <= 0 || c.ProgressCap > 100 {
		return fmt.Errorf("progress_cap must be in (0, 100]")
	}
	if c.MaxSessions < 0 {
		return fmt.Errorf("max_sessions must not be negative")
	}
	return nil
}

func duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
