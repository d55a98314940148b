package app

import (
	"fmt"
	"math"

	"github.com/adhocore/gronx"

	"relaydesk/pkg/config"
)

// validateConfig performs quick, fail-fast validation of the effective
// configuration before starting long-running services. Keep checks light
// and focused so callers can surface user-friendly errors.
func validateConfig(cfg *config.Config) error {
	if cfg.Storage.DBPath == "" {
		return fmt.Errorf("database path is empty: set --db flag, RELAYDESK_DB_PATH env, or storage.db_path in config")
	}

	if err := validateWeights("allocation.weights", cfg.Allocation.Weights.Alpha, cfg.Allocation.Weights.Beta); err != nil {
		return err
	}
	for tenant, w := range cfg.Allocation.Tenants {
		if err := validateWeights("allocation.tenants."+tenant, w.Alpha, w.Beta); err != nil {
			return err
		}
	}

	if cfg.Events.Enabled && cfg.Events.URL == "" {
		return fmt.Errorf("events enabled but events.url is empty")
	}

	if cfg.Rescore.Enabled {
		if !gronx.IsValid(cfg.Rescore.Cron) {
			return fmt.Errorf("invalid rescore.cron expression: %q", cfg.Rescore.Cron)
		}
	}

	return nil
}

// validateWeights rejects pairs the scorer could not renormalize into a
// meaningful blend. Zero/zero is allowed: the scorer falls back to the
// balanced default.
func validateWeights(path string, alpha, beta float64) error {
	for _, v := range []float64{alpha, beta} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%s: alpha and beta must be finite and non-negative", path)
		}
	}
	return nil
}
