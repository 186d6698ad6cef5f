package ports

import "github.com/bft-labs/spbatch/internal/metadata"

// MetadataResolver reports remote-field mappings and protocol support for an entity type.
type MetadataResolver interface {
	Resolve(typeName string, fields []string) (metadata.Resolution, error)
}
