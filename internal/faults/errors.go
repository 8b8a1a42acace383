// Package faults defines the error taxonomy shared by every bibkeep component.
//
// Errors are tagged with a sentinel marker and a "stage: operation: message"
// detail so callers can classify them with errors.Is while operators still get
// a readable chain.
package faults

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks malformed input: a proposal entry, a config value, a record.
	ErrValidation = errors.New("validation error")
	// ErrConflict marks a detected duplicate or filename collision.
	ErrConflict = errors.New("conflict")
	// ErrStale marks a proposal entry whose target changed since detection.
	ErrStale = errors.New("stale proposal entry")
	// ErrNotFound marks a missing record or file.
	ErrNotFound = errors.New("not found")
	// ErrIO marks filesystem or database failures.
	ErrIO = errors.New("io failure")
	// ErrConfiguration marks unusable configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrLocked marks a store held by another process.
	ErrLocked = errors.New("store locked")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. A nil marker defaults to ErrIO.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrIO
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ExitCode maps an error to the process exit status used by the CLI.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration):
		return 2
	case errors.Is(err, ErrConflict), errors.Is(err, ErrStale):
		return 3
	case errors.Is(err, ErrLocked):
		return 4
	default:
		return 1
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "operation failed"
	}
	return strings.Join(parts, ": ")
}
