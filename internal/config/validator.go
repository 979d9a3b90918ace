package config

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate checks the configuration.
//
// Returns nil if valid, or a *ValidationErrors holding every problem.
func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	if c.Worker.ID < 0 {
		errs.Add("worker.id", "must not be negative")
	}
	if c.Worker.UUID != "" {
		if _, err := uuid.Parse(c.Worker.UUID); err != nil {
			errs.Add("worker.uuid", fmt.Sprintf("invalid uuid: %v", err))
		}
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs.Add("server.port", fmt.Sprintf("port %d out of range", c.Server.Port))
	}
	if c.Server.Port != 0 && c.Server.Host == "" {
		errs.Add("server.host", "host is required when a port is set")
	}

	if c.Log.Interval < 0 {
		errs.Add("log.interval", "must not be negative")
	}
	if c.Log.Every < 0 {
		errs.Add("log.every", "must not be negative")
	}

	if c.Registry.Redis.DB < 0 {
		errs.Add("registry.redis.db", "must not be negative")
	}

	if c.Limits.Memory != 0 && c.Limits.Memory < 16<<20 {
		errs.Add("limits.memory", "must be at least 16MiB or 0 to disable")
	}

	if c.HTTP.Timeout < 0 {
		errs.Add("http.timeout", "must not be negative")
	}
	if c.HTTP.MaxIdleConns < 0 || c.HTTP.MaxIdleConnsPerHost < 0 || c.HTTP.MaxConnsPerHost < 0 {
		errs.Add("http", "connection pool sizes must not be negative")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
