package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent error conditions in the spbatch domain.
// These errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrAlreadyExecuted is returned when Execute is called on a batch that was already executed.
	ErrAlreadyExecuted = errors.New("spbatch: batch already executed")

	// ErrBatchExecuted is returned when an operation is added to an executed batch.
	ErrBatchExecuted = errors.New("spbatch: cannot add to an executed batch")

	// ErrUnknownBatch identifies a batch id that is not registered.
	// Registry lookups report this as a false/nil result rather than returning it.
	ErrUnknownBatch = errors.New("spbatch: unknown batch")

	// ErrUnsplittable is recorded on a record whose primary protocol is disabled
	// and which has no usable fallback.
	ErrUnsplittable = errors.New("spbatch: no enabled protocol for operation")

	// ErrTransportUnavailable is returned when the transport cannot attempt any request.
	ErrTransportUnavailable = errors.New("spbatch: transport unavailable")

	// ErrInvalidTransition is returned when a record state change is not allowed.
	ErrInvalidTransition = errors.New("spbatch: invalid record state transition")

	// ErrInvalidCall is returned when an absent call descriptor is added to a batch.
	ErrInvalidCall = errors.New("spbatch: call has no protocol or endpoint")

	// ErrResultMismatch indicates the transport returned a different number of
	// results than calls it was given.
	ErrResultMismatch = errors.New("spbatch: result count does not match request count")
)

// TransportError reports a failure of a whole sub-batch.
// Every record of the sub-batch is failed with the same TransportError.
type TransportError struct {
	Protocol Protocol
	SubBatch int
	Cause    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("spbatch: %s sub-batch %d failed: %v", e.Protocol, e.SubBatch, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is and errors.As.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// RequestError reports a per-request failure inside an otherwise successful batch response.
type RequestError struct {
	Status  int
	Code    string
	Message string
}

func (e *RequestError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("spbatch: request failed with status %d: %s: %s", e.Status, e.Code, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("spbatch: request failed with status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("spbatch: request failed with status %d", e.Status)
}
