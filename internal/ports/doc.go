// Package ports defines the interfaces (ports) that connect the batching core
// to infrastructure adapters and to the domain objects that request work.
//
// # Port Interfaces
//
//   - [Transport]: Sends one protocol-homogeneous sub-batch and returns ordered results
//   - [Availability]: Optional transport capability reporting whether any send can be attempted
//   - [Model]: The capability a domain object exposes to the batch client
//   - [MetadataResolver]: Read-only lookup of entity field mappings and protocol support
//   - [Logger]: Structured logging abstraction
//   - [HTTPClient]: HTTP request abstraction for dependency injection
//
// # Usage
//
// The application layer (internal/app) depends only on these interfaces.
// Infrastructure adapters (internal/adapters) implement them with concrete
// HTTP and in-memory transports.
package ports
