package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a generation failure.
type ErrorKind string

const (
	// KindTimeout means the call exceeded its deadline. Transient, never retried.
	KindTimeout ErrorKind = "timeout"
	// KindMalformed means the response did not parse against the expected shape.
	KindMalformed ErrorKind = "malformed_output"
	// KindUpstream covers quota, auth and other backend errors.
	KindUpstream ErrorKind = "upstream"
)

// GenerationError is returned by agents when a backend call fails.
type GenerationError struct {
	Agent   string
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *GenerationError) Error() string {
	msg := fmt.Sprintf("%s agent: %s", e.Agent, e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// Transient reports whether the failure may succeed on a later, caller-initiated run.
func (e *GenerationError) Transient() bool {
	return e.Kind == KindTimeout
}

// Classify wraps a backend error as a GenerationError. ctx is the call's own context,
// so an expired deadline is attributed to the model rather than the caller.
func Classify(ctx context.Context, agent string, err error) *GenerationError {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &GenerationError{Agent: agent, Kind: KindTimeout, Message: "generation exceeded the agent timeout", Cause: err}
	}
	return &GenerationError{Agent: agent, Kind: KindUpstream, Cause: err}
}

// Malformed builds a KindMalformed error.
func Malformed(agent, message string, cause error) *GenerationError {
	return &GenerationError{Agent: agent, Kind: KindMalformed, Message: message, Cause: cause}
}
