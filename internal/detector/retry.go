package detector

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/JaimeStill/warden/internal/verification"
)

// Retrying retries transient detector failures with linear backoff.
type Retrying struct {
	next       verification.Detector
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
}

// NewRetrying wraps next. maxRetries counts attempts after the first.
func NewRetrying(next verification.Detector, maxRetries int, backoff time.Duration, logger *slog.Logger) *Retrying {
	return &Retrying{
		next:       next,
		maxRetries: max(maxRetries, 0),
		backoff:    backoff,
		logger:     logger.With("system", "detector"),
	}
}

func (r *Retrying) Detect(ctx context.Context, doc verification.Document) (*verification.Detection, error) {
	for attempt := 0; ; attempt++ {
		d, err := r.next.Detect(ctx, doc)
		if err == nil || !errors.Is(err, ErrTransient) || attempt >= r.maxRetries {
			return d, err
		}

		wait := r.backoff * time.Duration(attempt+1)
		r.logger.Warn("detector attempt failed, retrying",
			"attempt", attempt+1,
			"wait", wait,
			"error", err,
		)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}
