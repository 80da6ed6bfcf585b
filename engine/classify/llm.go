// Package classify decides whether posts satisfy a free-text relevance
// command by asking a language model, and never lets a provider failure
// escape as anything but a negative verdict.
package classify

import (
	"context"
	"errors"
	"fmt"
)

// Prompt is one system+user exchange.
type Prompt struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// Completer abstracts the model provider so tests can substitute a fake.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, p Prompt) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, p Prompt) (string, error) { return f(ctx, p) }

// ErrorKind buckets provider failures by the action a user can take.
type ErrorKind string

const (
	KindMissingCredential ErrorKind = "missing-credential"
	KindAuthRejected      ErrorKind = "auth-rejected"
	KindQuotaExceeded     ErrorKind = "quota-exceeded"
	KindTimeout           ErrorKind = "timeout"
	KindOther             ErrorKind = "other"
)

// ErrEmptyResponse is returned when the provider answers with no choices.
var ErrEmptyResponse = errors.New("empty model response")

// ProviderError tags a provider failure with its kind.
type ProviderError struct {
	Kind ErrorKind
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("ai provider (%s): %v", e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// KindOf classifies err. Deadline errors are timeouts regardless of wrapping.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindOther
}

// kindForStatus maps an HTTP status from any provider to a kind.
func kindForStatus(status int) ErrorKind {
	switch status {
	case 401, 403:
		return KindAuthRejected
	case 429:
		return KindQuotaExceeded
	default:
		return KindOther
	}
}
