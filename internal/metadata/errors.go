package metadata

import "errors"

var (
	// ErrUnknownType is returned when no table is registered for an entity type.
	ErrUnknownType = errors.New("spbatch: unknown entity type")

	// ErrUnknownField is returned when a requested property is not in the entity table.
	ErrUnknownField = errors.New("spbatch: unknown field")

	// ErrUnsupported is returned when a request cannot be expressed on any protocol.
	ErrUnsupported = errors.New("spbatch: operation not supported on any protocol")

	// ErrMissingVar is returned when a template placeholder has no value.
	ErrMissingVar = errors.New("spbatch: missing template variable")
)

// TableError reports an invalid entity table.
type TableError struct {
	Type string
	Msg  string
}

func (e *TableError) Error() string {
	return "spbatch: invalid table for " + e.Type + ": " + e.Msg
}
