package api

import (
	"github.com/JaimeStill/warden/internal/config"
	"github.com/JaimeStill/warden/internal/infrastructure"
	"github.com/JaimeStill/warden/internal/verification"
	"github.com/JaimeStill/warden/internal/verifications"
	"github.com/JaimeStill/warden/pkg/pagination"
)

// Runtime extends Infrastructure with API-specific configuration.
type Runtime struct {
	*infrastructure.Infrastructure
	Pagination   pagination.Config
	Verification verifications.Config
}

// NewRuntime creates an API runtime with a module-scoped logger.
func NewRuntime(cfg *config.Config, infra *infrastructure.Infrastructure) *Runtime {
	scoped := *infra
	scoped.Logger = infra.Logger.With("module", "api")

	return &Runtime{
		Infrastructure: &scoped,
		Pagination:     cfg.API.Pagination,
		Verification:   verificationConfig(&cfg.Verification),
	}
}

func verificationConfig(c *config.VerificationConfig) verifications.Config {
	return verifications.Config{
		Workflow: verification.Config{
			Limits: verification.Limits{
				MaxSizeBytes: c.MaxUploadSizeBytes(),
				AllowedTypes: c.AllowedTypes,
			},
			EstimatedDuration: c.EstimatedDurationValue(),
			TickInterval:      c.TickIntervalDuration(),
			MaxIncrement:      c.MaxIncrement,
			ProgressCap:       c.ProgressCap,
			SettleDelay:       c.SettleDelayDuration(),
			Timeout:           c.TimeoutDuration(),
			KeyPrefix:         c.KeyPrefix,
		},
		Sessions: verifications.SessionConfig{
			TTL:         c.SessionTTLDuration(),
			MaxSessions: c.MaxSessions,
		},
	}
}
