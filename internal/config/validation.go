package config

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// ValidationError is a problem with one configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found by Validate.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks all fields. The error wraps ErrInvalidConfig and a
// ValidationErrors.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Key.Env == "" {
		add("key.env", "must not be empty")
	}
	switch c.Key.Encoding {
	case "", "raw", "hex", "base64":
	default:
		add("key.encoding", "must be raw, hex or base64, got %q", c.Key.Encoding)
	}
	switch c.Watermark.ECC {
	case "", "none", "golay":
	default:
		add("watermark.ecc", "must be none or golay, got %q", c.Watermark.ECC)
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level", "unknown level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		add("logging.format", "must be text or json, got %q", c.Logging.Format)
	}
	if c.Server.Addr == "" {
		add("server.addr", "must not be empty")
	}
	if c.Server.MaxUploadBytes <= 0 {
		add("server.max_upload_bytes", "must be positive")
	}
	if c.Server.ReadTimeoutSec < 0 || c.Server.WriteTimeoutSec < 0 || c.Server.ShutdownTimeoutSec < 0 {
		add("server", "timeouts must not be negative")
	}
	if c.Batch.Workers < 1 {
		add("batch.workers", "must be at least 1, got %d", c.Batch.Workers)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errs)
	}
	return nil
}
