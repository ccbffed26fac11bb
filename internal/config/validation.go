package config

import (
	"fmt"
	"strings"

	"yqhp/combat-engine/internal/timedhit"
	"yqhp/combat-engine/pkg/types"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Fields returns the offending field paths in order.
func (e ValidationErrors) Fields() []string {
	fields := make([]string, len(e))
	for i, err := range e {
		fields[i] = err.Field
	}
	return fields
}

// Validator validates configuration values.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// addError adds a validation error.
func (v *Validator) addError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

// Validate validates the entire configuration and returns any errors.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = make(ValidationErrors, 0)

	v.validateLoggingConfig(&cfg.Logging)
	v.validateSchedulerConfig(&cfg.Scheduler)
	v.validateTimedHitConfig(&cfg.TimedHit)
	v.validateDispatcherConfig(&cfg.Dispatcher)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

// Validate is a convenience wrapper around Validator.
func (c *Config) Validate() error {
	return NewValidator().Validate(c)
}

func (v *Validator) validateLoggingConfig(cfg *LoggingConfig) {
	switch strings.ToLower(cfg.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		v.addError("logging.level", fmt.Sprintf("invalid log level %q, expected debug, info, warn or error", cfg.Level))
	}

	switch cfg.Format {
	case "json", "console":
	default:
		v.addError("logging.format", fmt.Sprintf("invalid log format %q, expected json or console", cfg.Format))
	}

	switch cfg.Output {
	case "stdout", "stderr":
	case "file", "both":
		if cfg.FilePath == "" {
			v.addError("logging.file_path", "file path is required when output includes a file")
		}
	default:
		v.addError("logging.output", fmt.Sprintf("invalid log output %q, expected stdout, stderr, file or both", cfg.Output))
	}

	if cfg.MaxSize < 0 {
		v.addError("logging.max_size", "max size must be non-negative")
	}
	if cfg.MaxBackups < 0 {
		v.addError("logging.max_backups", "max backups must be non-negative")
	}
	if cfg.MaxAge < 0 {
		v.addError("logging.max_age", "max age must be non-negative")
	}
}

func (v *Validator) validateSchedulerConfig(cfg *SchedulerConfig) {
	if cfg.MaxBranches < 0 {
		v.addError("scheduler.max_branches", "max branches must be non-negative")
	}
}

func (v *Validator) validateTimedHitConfig(cfg *TimedHitConfig) {
	if cfg.Retention <= 0 {
		v.addError("timed_hit.retention", "buffer retention must be positive")
	}

	if !types.ParseJudgment(cfg.InstantJudgment).IsSuccess() {
		v.addError("timed_hit.instant_judgment", "instant judgment must be perfect or good")
	}

	if err := cfg.DefaultTolerance.Validate(); err != nil {
		v.addError("timed_hit.default_tolerance", err.Error())
	}
	for id, tol := range cfg.Profiles {
		if strings.TrimSpace(id) == "" {
			v.addError("timed_hit.profiles", "profile id must not be empty")
			continue
		}
		if err := tol.Validate(); err != nil {
			v.addError("timed_hit.profiles."+id, err.Error())
		}
	}

	v.validateBasicProfile(&cfg.Basic)
	v.validateChainProfile(&cfg.Chain)
}

func (v *Validator) validateBasicProfile(p *timedhit.BasicProfile) {
	if p.WindowMs <= 0 {
		v.addError("timed_hit.basic.window_ms", "window must be positive")
	}
	if p.TargetMs < 0 || (p.WindowMs > 0 && p.TargetMs > p.WindowMs) {
		v.addError("timed_hit.basic.target_ms", "target must lie inside the window")
	}
	if p.EarlyMs < 0 {
		v.addError("timed_hit.basic.early_ms", "early allowance must be non-negative")
	}
	if p.PerfectMs < 0 || p.GoodMs < p.PerfectMs {
		v.addError("timed_hit.basic.good_ms", "thresholds must satisfy 0 <= perfect_ms <= good_ms")
	}
	if p.PerfectMultiplier < 0 || p.GoodMultiplier < 0 || p.MissMultiplier < 0 {
		v.addError("timed_hit.basic.multipliers", "multipliers must be non-negative")
	}
	if p.PerfectRefund < 0 || p.GoodRefund < 0 {
		v.addError("timed_hit.basic.refunds", "refunds must be non-negative")
	}
}

func (v *Validator) validateChainProfile(p *timedhit.ChainProfile) {
	if p.PhaseDurationMs <= 0 {
		v.addError("timed_hit.chain.phase_duration_ms", "phase duration must be positive")
	}
	if p.Center < 0 || p.Center > 1 {
		v.addError("timed_hit.chain.center", "center must be within [0, 1]")
	}
	if p.PerfectRadius < 0 || p.SuccessRadius < p.PerfectRadius || p.SuccessRadius > 1 {
		v.addError("timed_hit.chain.success_radius", "radii must satisfy 0 <= perfect_radius <= success_radius <= 1")
	}
	if p.EarlyMs < 0 {
		v.addError("timed_hit.chain.early_ms", "early allowance must be non-negative")
	}
	if p.GraceMs < 0 {
		v.addError("timed_hit.chain.grace_ms", "grace must be non-negative")
	}
	if p.PerfectMultiplier < 0 || p.GoodMultiplier < 0 {
		v.addError("timed_hit.chain.multipliers", "multipliers must be non-negative")
	}
	for i, tier := range p.Tiers {
		if tier.Hits < 1 {
			v.addError(fmt.Sprintf("timed_hit.chain.tiers[%d].hits", i), "a tier needs at least one hit")
		}
		if tier.Multiplier < 0 || tier.RefundMax < 0 {
			v.addError(fmt.Sprintf("timed_hit.chain.tiers[%d]", i), "multiplier and refund_max must be non-negative")
		}
	}
}

func (v *Validator) validateDispatcherConfig(cfg *DispatcherConfig) {
	if cfg.PoolCapacity < 0 {
		v.addError("dispatcher.pool_capacity", "pool capacity must be non-negative")
	}
	if cfg.QueueSize < 0 {
		v.addError("dispatcher.queue_size", "queue size must be non-negative")
	}
}
