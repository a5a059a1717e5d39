package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// knownPhases is the set of phase names a config may override.
var knownPhases = map[string]bool{
	"plan":     true,
	"build":    true,
	"test":     true,
	"review":   true,
	"document": true,
	"patch":    true,
}

// Validate checks a Config for structural and semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError

	if cfg.BaseDir == "" {
		errs = append(errs, ValidationError{Field: "base_dir", Message: "is required"})
	}
	if cfg.TreesDir == "" {
		errs = append(errs, ValidationError{Field: "trees_dir", Message: "is required"})
	}

	if cfg.Ports.BackendBase <= 0 || cfg.Ports.BackendBase > 65535 {
		errs = append(errs, ValidationError{
			Field:   "ports.backend_base",
			Message: fmt.Sprintf("%d is not a valid port", cfg.Ports.BackendBase),
		})
	}
	if cfg.Ports.FrontendBase <= 0 || cfg.Ports.FrontendBase > 65535 {
		errs = append(errs, ValidationError{
			Field:   "ports.frontend_base",
			Message: fmt.Sprintf("%d is not a valid port", cfg.Ports.FrontendBase),
		})
	}
	if cfg.Ports.PoolSize < 1 || cfg.Ports.PoolSize > 1000 {
		errs = append(errs, ValidationError{
			Field:   "ports.pool_size",
			Message: fmt.Sprintf("%d is out of range (1-1000)", cfg.Ports.PoolSize),
		})
	} else {
		// The two ranges must not overlap or concurrent runs could share a port.
		lo, hi := cfg.Ports.BackendBase, cfg.Ports.FrontendBase
		if lo > hi {
			lo, hi = hi, lo
		}
		if hi-lo < cfg.Ports.PoolSize {
			errs = append(errs, ValidationError{
				Field:   "ports",
				Message: "backend and frontend ranges overlap; bases must differ by at least pool_size",
			})
		}
		if cfg.Ports.FrontendBase+cfg.Ports.PoolSize-1 > 65535 || cfg.Ports.BackendBase+cfg.Ports.PoolSize-1 > 65535 {
			errs = append(errs, ValidationError{
				Field:   "ports",
				Message: "port range exceeds 65535",
			})
		}
	}

	if cfg.Database.Path != "" && cfg.Database.DSN != "" {
		errs = append(errs, ValidationError{
			Field:   "database",
			Message: "path and dsn are mutually exclusive",
		})
	}

	if cfg.Tracker.Repo != "" && !strings.Contains(cfg.Tracker.Repo, "/") {
		errs = append(errs, ValidationError{
			Field:   "tracker.repo",
			Message: fmt.Sprintf("%q is not an owner/name pair", cfg.Tracker.Repo),
		})
	}

	for name, phase := range cfg.Phases {
		if !knownPhases[name] {
			errs = append(errs, ValidationError{
				Field:   "phases." + name,
				Message: fmt.Sprintf("unrecognized phase %q", name),
			})
			continue
		}
		if len(phase.Command) == 0 {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("phases.%s.command", name),
				Message: "must not be empty",
			})
		}
		for _, part := range phase.Command {
			if part == "" {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("phases.%s.command", name),
					Message: "contains an empty element",
				})
				break
			}
		}
	}

	for i, name := range cfg.Env.Passthrough {
		if name == "" || strings.Contains(name, "=") {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("env.passthrough[%d]", i),
				Message: fmt.Sprintf("%q is not a variable name", name),
			})
		}
	}

	return errs
}
