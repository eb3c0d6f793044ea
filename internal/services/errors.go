package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrSource        = errors.New("source error")
	ErrEncoder       = errors.New("encoder error")
	ErrCancelled     = errors.New("cancelled")
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
)

// Kind is the coarse failure class recorded in run history and metrics labels.
type Kind string

const (
	KindNone          Kind = ""
	KindConfiguration Kind = "configuration"
	KindSource        Kind = "source"
	KindEncoder       Kind = "encoder"
	KindCancelled     Kind = "cancelled"
	KindExternalTool  Kind = "external_tool"
	KindUnknown       Kind = "unknown"
)

// Wrap returns "marker: component: operation: message: err", tagged with
// marker for errors.Is. A nil marker means ErrExternalTool.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureKind maps an error onto its marker class.
func FailureKind(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrValidation):
		return KindConfiguration
	case errors.Is(err, ErrSource):
		return KindSource
	case errors.Is(err, ErrEncoder):
		return KindEncoder
	case errors.Is(err, ErrExternalTool):
		return KindExternalTool
	default:
		return KindUnknown
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
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
