package main

import (
	"log/slog"

	"github.com/signalmesh/signal-relay/internal/config"
)

func logStartupSecurityWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	if containsString(cfg.AllowedOrigins, "*") {
		logger.Warn("startup security warning: ALLOWED_ORIGINS contains '*' (allows any origin)",
			"warning_code", "allowed_origins_wildcard",
			"allowed_origins", cfg.AllowedOrigins,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && len(cfg.AllowedOrigins) == 0 {
		logger.Warn("startup security warning: ALLOWED_ORIGINS is unset while --mode=prod (any browser origin may connect)",
			"warning_code", "allowed_origins_unset_in_prod",
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.MaxConnections <= 0 {
		logger.Warn("startup security warning: MAX_CONNECTIONS is unset/0 (unlimited) while --mode=prod",
			"warning_code", "max_connections_unlimited_in_prod",
			"max_connections", cfg.MaxConnections,
			"mode", cfg.Mode,
		)
	}
}

func containsString(xs []string, v string) bool {
	for _, s := range xs {
		if s == v {
			return true
		}
	}
	return false
}
