package services

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"shelfarr/internal/queue"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")

	// ErrInvalidPayload marks bytes that failed structural torrent validation.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrPathSecurity marks a path that resolves outside its configured root.
	ErrPathSecurity = errors.New("path security violation")
	// ErrProcessingTimeout marks a post-processing subprocess that exceeded its budget.
	ErrProcessingTimeout = errors.New("processing timeout")
	// ErrPublish marks a library notification failure.
	ErrPublish = errors.New("publish failed")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later status classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRetryable reports whether err represents a failure that may succeed when
// the same operation is attempted again.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrInvalidPayload),
		errors.Is(err, ErrPathSecurity),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrProcessingTimeout):
		return false
	case errors.Is(err, ErrTransient), errors.Is(err, ErrTimeout), errors.Is(err, ErrPublish):
		return true
	default:
		return false
	}
}

// FailureStatus maps a pipeline error to the job status the orchestrator
// should persist. Transient failures keep the current status so the recheck
// scheduler can revisit the job.
func FailureStatus(current queue.Status, err error) queue.Status {
	if err == nil {
		return current
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, ErrTimeout) {
		return current
	}
	return queue.StatusFailed
}

const maxDetailBytes = 1024

// Details returns a human-readable description suitable for a job's last
// error field.
func Details(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.TrimSpace(err.Error())
	if len(msg) > maxDetailBytes {
		cut := maxDetailBytes - len("...")
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut] + "..."
	}
	return msg
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
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

// RetryableDetail reports whether a persisted LastError came from a failure
// class the recheck sweep may retry without operator action.
func RetryableDetail(detail string) bool {
	detail = strings.TrimSpace(detail)
	for _, marker := range []error{ErrTransient, ErrTimeout, ErrExternalTool, ErrNotFound} {
		if strings.HasPrefix(detail, marker.Error()+":") {
			return true
		}
	}
	return false
}
