package ports

import "github.com/bft-labs/spbatch/internal/domain"

// Model is the capability a domain object exposes to the batch client.
type Model interface {
	domain.Owner

	// Describe produces the call descriptor for the given operation.
	// The descriptor may carry a fallback on the other protocol.
	Describe(kind domain.OperationKind) (domain.Call, error)

	// Requested reports whether a response has been applied.
	Requested() bool
}
