package ports

import (
	"context"

	"github.com/bft-labs/spbatch/internal/domain"
)

// Transport executes one protocol-homogeneous sub-batch.
// Implementations handle serialization, HTTP communication and authentication.
type Transport interface {
	// Send transmits calls, all on protocol, as one logical batch request.
	// On success it returns exactly one Result per call, in call order.
	// A returned error fails every call of the sub-batch.
	// Send is invoked at most once per sub-batch; implementations may only
	// repeat a request the server did not process (e.g. throttling responses).
	Send(ctx context.Context, protocol domain.Protocol, calls []domain.Call) ([]Result, error)
}

// Result is the raw outcome of a single call inside a batch response.
type Result struct {
	// Status is the HTTP status of the individual response.
	Status int

	// Body is the raw response body.
	Body []byte

	// Err is set when the individual request failed.
	Err error
}

// Availability reports whether a transport can attempt requests at all.
// When Available returns false, executing a batch fails without sending anything.
type Availability interface {
	Available() bool
}
