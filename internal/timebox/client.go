package timebox

import (
	"context"
	"fmt"
	"time"

	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/lexvoice/casecall-backend/internal/platform/logger"
	"github.com/lexvoice/casecall-backend/internal/utils"
)

// NewClient dials Temporal. A missing TEMPORAL_ADDRESS disables the timebox
// (nil client, nil error); callers fall back to the noop scheduler.
func NewClient(log *logger.Logger) (temporalsdkclient.Client, error) {
	cfg := LoadConfig()
	if cfg.Address == "" {
		if log != nil {
			log.Warn("TEMPORAL_ADDRESS not set; timebox disabled")
		}
		return nil, nil
	}

	opts := temporalsdkclient.Options{
		HostPort:  cfg.Address,
		Namespace: cfg.Namespace,
		Logger:    log,
	}

	dialTimeout := time.Duration(utils.GetEnvAsInt("TEMPORAL_DIAL_TIMEOUT_SECONDS", 5, nil)) * time.Second
	maxWait := time.Duration(utils.GetEnvAsInt("TEMPORAL_DIAL_MAX_WAIT_SECONDS", 60, nil)) * time.Second
	backoff := time.Duration(utils.GetEnvAsInt("TEMPORAL_DIAL_BACKOFF_MS", 250, nil)) * time.Millisecond
	backoffMax := time.Duration(utils.GetEnvAsInt("TEMPORAL_DIAL_BACKOFF_MAX_MS", 5000, nil)) * time.Millisecond

	deadline := time.Now().Add(maxWait)
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		c, err := temporalsdkclient.DialContext(ctx, opts)
		cancel()
		if err == nil {
			if log != nil && attempt > 1 {
				log.Info("Connected to Temporal", "address", cfg.Address, "namespace", cfg.Namespace, "attempts", attempt)
			}
			return c, nil
		}

		if maxWait <= 0 || time.Now().After(deadline) {
			return nil, fmt.Errorf("temporal dial failed (address=%s namespace=%s): %w", cfg.Address, cfg.Namespace, err)
		}

		if log != nil {
			log.Warn("Temporal not reachable; retrying", "address", cfg.Address, "namespace", cfg.Namespace, "attempt", attempt, "error", err)
		}

		sleep := backoff * time.Duration(attempt)
		if sleep > backoffMax {
			sleep = backoffMax
		}
		time.Sleep(sleep)
	}
}
