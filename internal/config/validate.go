package config

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks the settings a command mode needs. All problems are
// reported together.
func (c *Config) Validate(mode string) error {
	var errs []string
	needDB := func() {
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	}

	switch mode {
	case "preview":
		needDB()
		if c.Sync.Validate && c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required when sync.validate is on")
		}
	case "apply", "migrate", "runs":
		needDB()
	case "serve":
		needDB()
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		if c.Server.MaxUploadMB <= 0 {
			errs = append(errs, "server.max_upload_mb must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Sync.TxTimeoutSecs <= 0 {
		errs = append(errs, "sync.tx_timeout_secs must be > 0")
	}
	if c.Sync.FuzzyThreshold <= 0 || c.Sync.FuzzyThreshold > 1 {
		errs = append(errs, "sync.fuzzy_threshold must be in (0, 1]")
	}
	if c.Sync.ValidateConcurrency < 1 || c.Sync.ValidateConcurrency > 16 {
		errs = append(errs, "sync.validate_concurrency must be between 1 and 16")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
