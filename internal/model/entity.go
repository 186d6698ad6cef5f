// Package model provides a table-driven domain object that can be queued into batches.
package model

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/bft-labs/spbatch/internal/domain"
	"github.com/bft-labs/spbatch/internal/metadata"
	"github.com/bft-labs/spbatch/internal/ports"
)

// Entity is a generic remote object whose fields are described by a metadata table.
// It is safe for concurrent use.
type Entity struct {
	mu sync.RWMutex

	resolver    ports.MetadataResolver
	info        *metadata.EntityInfo
	vars        map[string]string
	preferGraph bool

	selected []string
	changes  map[string]any
	values   map[string]any

	requested bool
	deleted   bool
}

// Option configures an Entity.
type Option func(*Entity)

// PreferGraph chooses the protocol of the primary descriptor when both are possible.
func PreferGraph(prefer bool) Option {
	return func(e *Entity) { e.preferGraph = prefer }
}

// New creates an entity of typeName. vars fill the placeholders of its request templates.
func New(resolver ports.MetadataResolver, typeName string, vars map[string]string, opts ...Option) (*Entity, error) {
	res, err := resolver.Resolve(typeName, nil)
	if err != nil {
		return nil, err
	}
	e := &Entity{
		resolver:    resolver,
		info:        res.Entity,
		vars:        make(map[string]string, len(vars)),
		preferGraph: true,
		changes:     make(map[string]any),
		values:      make(map[string]any),
	}
	for k, v := range vars {
		e.vars[k] = v
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Type returns the entity type name.
func (e *Entity) Type() string { return e.info.Type }

// Select adds properties to load on the next get.
func (e *Entity) Select(fields ...string) *Entity {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selected = append(e.selected, fields...)
	return e
}

// Set stages a property value for the next create or update.
func (e *Entity) Set(field string, value any) *Entity {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.changes[field] = value
	return e
}

// Describe implements ports.Model.
func (e *Entity) Describe(kind domain.OperationKind) (domain.Call, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var fields []string
	if kind == domain.OpGet {
		fields = e.selected
	}
	res, err := e.resolver.Resolve(e.info.Type, fields)
	if err != nil {
		return domain.Call{}, err
	}

	var values map[string]any
	if kind == domain.OpCreate || kind == domain.OpUpdate {
		values = e.changes
	}
	call, err := res.Calls(kind, e.vars, values, e.preferGraph)
	if err != nil {
		return domain.Call{}, err
	}
	return call, nil
}

// ApplyResponse implements domain.Owner. It understands REST verbose
// ({"d":{...}}), REST nometadata and Graph payloads. The verb of the
// answered call decides how the response applies, so one entity may own
// several records of different kinds in the same batch.
func (e *Entity) ApplyResponse(resp domain.Response) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.requested = true
	if resp.Verb == http.MethodDelete {
		e.deleted = true
		return nil
	}
	if len(strings.TrimSpace(string(resp.Body))) == 0 || resp.Status == http.StatusNoContent {
		if resp.Verb == http.MethodGet {
			return nil
		}
		// Writes answer without a body; the staged values are now current.
		for name, v := range e.changes {
			if f, ok := e.info.Field(name); ok {
				e.values[f.Name] = v
			}
		}
		return nil
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return fmt.Errorf("decode %s response: %w", e.info.Type, err)
	}
	if inner, ok := payload["d"]; ok {
		var d map[string]json.RawMessage
		if err := json.Unmarshal(inner, &d); err == nil {
			payload = d
		}
	}

	for key, raw := range payload {
		if key == "__metadata" || strings.HasPrefix(key, "@odata.") || strings.HasPrefix(key, "odata.") {
			continue
		}
		f, ok := e.info.FieldByRemote(resp.Protocol, key)
		if !ok {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("decode %s.%s: %w", e.info.Type, f.Name, err)
		}
		e.values[f.Name] = v
	}
	return nil
}

// Requested implements ports.Model.
func (e *Entity) Requested() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.requested
}

// Deleted reports whether a delete of this entity completed.
func (e *Entity) Deleted() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.deleted
}

// Value returns a loaded property, looked up case-insensitively.
func (e *Entity) Value(field string) (any, bool) {
	f, ok := e.info.Field(field)
	if !ok {
		return nil, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.values[f.Name]
	return v, ok
}

// IsPropertyAvailable reports whether field was loaded.
func (e *Entity) IsPropertyAvailable(field string) bool {
	_, ok := e.Value(field)
	return ok
}

// Values returns a copy of every loaded property keyed by local name.
func (e *Entity) Values() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]any, len(e.values))
	for k, v := range e.values {
		out[k] = v
	}
	return out
}
