// Package logger provides the structured logging contract for the authcore service.
// Implementations live in internal/infrastructure/monitoring; this package only defines
// the interface, typed fields and value sanitization shared by every implementation.
package logger

import (
	"context"
	"strings"
	"time"
)

// ================================================================================
// Logger Interface
// ================================================================================

// Logger defines the interface for structured logging
type Logger interface {
	// Debug logs a debug message
	Debug(ctx context.Context, message string, fields ...Field)

	// Info logs an informational message
	Info(ctx context.Context, message string, fields ...Field)

	// Warn logs a warning message
	Warn(ctx context.Context, message string, fields ...Field)

	// Error logs an error message
	Error(ctx context.Context, message string, err error, fields ...Field)

	// Fatal logs a fatal message and exits the application
	Fatal(ctx context.Context, message string, err error, fields ...Field)

	// WithFields creates a new logger with additional fields
	WithFields(fields ...Field) Logger

	// WithComponent creates a new logger for a specific component
	WithComponent(component string) Logger
}

// ================================================================================
// Field Type for Structured Logging
// ================================================================================

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value interface{}
}

// String creates a string field
func String(key string, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an integer field
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Float64 creates a float64 field
func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a boolean field
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Err creates an error field
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Duration creates a duration field
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

// Time creates a time field
func Time(key string, value time.Time) Field {
	return Field{Key: key, Value: value.UTC().Format(time.RFC3339)}
}

// Strings creates a string slice field
func Strings(key string, value []string) Field {
	return Field{Key: key, Value: value}
}

// Any creates a field with any type
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// ================================================================================
// Sanitization
// ================================================================================

// sensitiveKeys are matched as substrings of the lower-cased field key.
var sensitiveKeys = []string{
	"password",
	"secret",
	"token",
	"authorization",
	"private_key",
	"master_key",
	"verifier",
	"code",
	"dek",
}

// allowedKeys contain a sensitive substring but never carry secret material.
var allowedKeys = map[string]struct{}{
	"token_type":            {},
	"token_kind":            {},
	"token_id":              {},
	"error_code":            {},
	"status_code":           {},
	"code_challenge_method": {},
}

// SanitizeValue masks values whose key names secret material.
func SanitizeValue(key string, value interface{}) interface{} {
	keyLower := strings.ToLower(key)
	if _, ok := allowedKeys[keyLower]; ok {
		return value
	}
	for _, sensitiveKey := range sensitiveKeys {
		if strings.Contains(keyLower, sensitiveKey) {
			return "***REDACTED***"
		}
	}
	return value
}
