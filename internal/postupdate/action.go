// Package postupdate runs the configured side effect after the persisted IP
// changes: a local command or a remote DNS provider call.
package postupdate

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Action propagates a new IP address to an external system.
// Implementations make a single attempt and do not retry.
type Action interface {
	// Name returns the strategy name (e.g., "exec", "netcup").
	Name() string

	// Propagate pushes ip downstream.
	Propagate(ctx context.Context, ip string) error
}

// Pinger is implemented by strategies that can check their remote end.
// It backs the readiness endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PropagationError reports a failed post-update action. It is logged only
// and never changes the response already sent to the client.
type PropagationError struct {
	Strategy string
	Err      error
}

func (e *PropagationError) Error() string {
	return fmt.Sprintf("post-update %s: %v", e.Strategy, e.Err)
}

func (e *PropagationError) Unwrap() error {
	return e.Err
}

// WrapError wraps err with strategy context. It returns nil for a nil err
// and leaves an existing *PropagationError untouched.
func WrapError(strategy string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PropagationError
	if errors.As(err, &pe) {
		return err
	}
	return &PropagationError{Strategy: strategy, Err: err}
}

// SplitList splits a comma-separated setting into trimmed, non-empty items.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
