// Package domain contains the core entities and value objects for spbatch.
//
// This package is the innermost layer of the module. It has no dependencies on
// infrastructure concerns (HTTP, logging, configuration) and contains only the
// batching data model and its invariants.
//
// # Entities
//
//   - [Call]: An immutable description of one remote request on one protocol
//   - [Record]: One queued operation, its owners and its eventual outcome
//   - [Batch]: An ordered, deduplicated collection of records sent together
//
// # Design Principles
//
// Domain entities are:
//   - Immutable after construction where the model requires it ([Call])
//   - Safe for concurrent use where callers share them ([Batch], [Record])
//   - Free of infrastructure dependencies
//   - Testable without mocks or external systems
package domain
