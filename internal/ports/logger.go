package ports

import "github.com/bft-labs/spbatch/pkg/log"

// Logger provides structured logging capabilities.
type Logger = log.Logger

// Field represents a key-value pair for structured logging.
type Field = log.Field

// Field constructors, shared with pkg/log.
var (
	String   = log.String
	Int      = log.Int
	Int64    = log.Int64
	Bool     = log.Bool
	Duration = log.Duration
	Stringer = log.Stringer
	Err      = log.Err
	Any      = log.Any
)
