package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
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
	return strings.Join(msgs, "; ")
}

// Fields returns the names of the offending fields in order.
func (e ValidationErrors) Fields() []string {
	fields := make([]string, len(e))
	for i, err := range e {
		fields[i] = err.Field
	}
	return fields
}

// ValidateConfig performs comprehensive validation of the configuration.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateService(&c.Service)...)
	errs = append(errs, validatePipeline(&c.Pipeline)...)
	errs = append(errs, validateStorage(&c.Storage)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateMetrics(&c.Metrics)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateService(s *ServiceConfig) ValidationErrors {
	var errs ValidationErrors

	u, err := url.Parse(s.URL)
	switch {
	case s.URL == "":
		errs = append(errs, ValidationError{Field: "service.url", Message: "must not be empty"})
	case err != nil:
		errs = append(errs, ValidationError{Field: "service.url", Message: err.Error()})
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, ValidationError{Field: "service.url", Message: "scheme must be http or https"})
	case u.Host == "":
		errs = append(errs, ValidationError{Field: "service.url", Message: "missing host"})
	}

	if s.TimeoutSec < 0 {
		errs = append(errs, ValidationError{Field: "service.timeout_sec", Message: "must not be negative"})
	}
	return errs
}

func validatePipeline(p *PipelineConfig) ValidationErrors {
	var errs ValidationErrors
	if p.DebounceMs < 0 {
		errs = append(errs, ValidationError{Field: "pipeline.debounce_ms", Message: "must not be negative"})
	}
	if p.DebounceMs > 10000 {
		errs = append(errs, ValidationError{Field: "pipeline.debounce_ms", Message: "must be at most 10000"})
	}
	return errs
}

func validateStorage(s *StorageConfig) ValidationErrors {
	var errs ValidationErrors
	switch strings.ToLower(s.Type) {
	case "sqlite", "":
		if s.Path == "" {
			errs = append(errs, ValidationError{Field: "storage.path", Message: "required for sqlite storage"})
		}
	case "memory", "none":
	default:
		errs = append(errs, ValidationError{
			Field:   "storage.type",
			Message: fmt.Sprintf("unknown type %q (want sqlite, memory or none)", s.Type),
		})
	}
	if s.BusyTimeoutMs < 0 {
		errs = append(errs, ValidationError{Field: "storage.busy_timeout_ms", Message: "must not be negative"})
	}
	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, ValidationError{Field: "logging.level", Message: fmt.Sprintf("unknown level %q", l.Level)})
	}

	switch strings.ToLower(l.Format) {
	case "text", "json", "":
	default:
		errs = append(errs, ValidationError{Field: "logging.format", Message: fmt.Sprintf("unknown format %q", l.Format)})
	}

	switch l.Output {
	case "stdout", "stderr", "discard", "":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{Field: "logging.file_path", Message: "required for file output"})
		}
	default:
		errs = append(errs, ValidationError{Field: "logging.output", Message: fmt.Sprintf("unknown output %q", l.Output)})
	}

	if l.MaxSizeMB < 0 {
		errs = append(errs, ValidationError{Field: "logging.max_size_mb", Message: "must not be negative"})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{Field: "logging.max_backups", Message: "must not be negative"})
	}
	return errs
}

func validateMetrics(m *MetricsConfig) ValidationErrors {
	if !m.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(m.Listen); err != nil {
		return ValidationErrors{{Field: "metrics.listen", Message: err.Error()}}
	}
	return nil
}
