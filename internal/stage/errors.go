package stage

import (
	"errors"
	"fmt"

	"github.com/KaramelBytes/datacrew-cli/internal/ai"
)

// ErrorKind classifies a stage failure.
type ErrorKind string

const (
	KindNetwork  ErrorKind = "network"
	KindProvider ErrorKind = "provider"
	KindEmpty    ErrorKind = "empty_response"
)

// NetworkError means the provider was never reached or did not answer in
// time.
type NetworkError struct {
	Stage ID
	Err   error
}

func (e *NetworkError) Error() string   { return fmt.Sprintf("%s: network: %v", e.Stage, e.Err) }
func (e *NetworkError) Unwrap() error   { return e.Err }
func (e *NetworkError) Kind() ErrorKind { return KindNetwork }

// ProviderError means the provider answered with an error.
type ProviderError struct {
	Stage      ID
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: provider status %d: %v", e.Stage, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: provider: %v", e.Stage, e.Err)
}
func (e *ProviderError) Unwrap() error   { return e.Err }
func (e *ProviderError) Kind() ErrorKind { return KindProvider }

// EmptyResponse means the call succeeded but carried no usable text.
type EmptyResponse struct {
	Stage ID
}

func (e *EmptyResponse) Error() string   { return fmt.Sprintf("%s: empty response", e.Stage) }
func (e *EmptyResponse) Kind() ErrorKind { return KindEmpty }

type kinded interface {
	error
	Kind() ErrorKind
}

// Classify wraps a runtime error in the stage error type matching its cause.
// Errors that are already classified are returned unchanged.
func Classify(id ID, err error) error {
	if err == nil {
		return nil
	}
	var k kinded
	if errors.As(err, &k) {
		return err
	}
	if ai.IsTransport(err) {
		return &NetworkError{Stage: id, Err: err}
	}
	return &ProviderError{Stage: id, StatusCode: ai.StatusCode(err), Err: err}
}

// KindOf returns the kind of a classified error; unclassified errors count
// as provider errors.
func KindOf(err error) ErrorKind {
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindProvider
}

// retryable reports whether another attempt could plausibly succeed.
// Provider-level 429/5xx backoff already happened inside the runtime.
func retryable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindEmpty:
		return true
	}
	return false
}
