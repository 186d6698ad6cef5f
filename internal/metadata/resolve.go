package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bft-labs/spbatch/internal/domain"
)

// Resolution is the outcome of mapping a set of requested properties onto an entity table.
type Resolution struct {
	Entity     *EntityInfo
	Fields     []FieldInfo
	Capability domain.Capability
}

// SupportsREST reports whether the resolved request can be sent over REST.
func (r Resolution) SupportsREST() bool { return r.Capability.Supports(domain.ProtocolREST) }

// SupportsGraph reports whether the resolved request can be sent over Graph.
func (r Resolution) SupportsGraph() bool { return r.Capability.Supports(domain.ProtocolGraph) }

// Resolve maps the requested properties of typeName onto its table. Key fields
// are appended when a selection is given. A property without a Graph name makes
// the request REST-only and vice versa.
func (r *Registry) Resolve(typeName string, fields []string) (Resolution, error) {
	e, ok := r.Lookup(typeName)
	if !ok {
		return Resolution{}, fmt.Errorf("%w: %s", ErrUnknownType, typeName)
	}

	res := Resolution{Entity: e, Capability: e.Capability()}
	if len(fields) > 0 {
		seen := make(map[string]bool, len(fields))
		for _, name := range fields {
			f, ok := e.Field(name)
			if !ok {
				return Resolution{}, fmt.Errorf("%w: %s.%s", ErrUnknownField, e.Type, name)
			}
			if seen[f.Name] {
				continue
			}
			seen[f.Name] = true
			res.Fields = append(res.Fields, f)
		}
		for _, k := range e.KeyFields() {
			if !seen[k.Name] {
				seen[k.Name] = true
				res.Fields = append(res.Fields, k)
			}
		}
	}

	res.Capability = narrow(res.Capability, res.Fields)
	if res.Capability == 0 {
		return Resolution{}, fmt.Errorf("%w: %s %v", ErrUnsupported, e.Type, fields)
	}
	return res, nil
}

// Calls builds the descriptor for kind. The primary descriptor uses the preferred
// protocol when it can express the request; the other protocol's descriptor is
// attached as fallback when it can too. values are keyed by local property name.
func (r Resolution) Calls(kind domain.OperationKind, vars map[string]string, values map[string]any, preferGraph bool) (domain.Call, error) {
	if r.Entity == nil {
		return domain.Call{}, fmt.Errorf("%w: empty resolution", ErrUnknownType)
	}

	var written []FieldInfo
	for name := range values {
		f, ok := r.Entity.Field(name)
		if !ok {
			return domain.Call{}, fmt.Errorf("%w: %s.%s", ErrUnknownField, r.Entity.Type, name)
		}
		written = append(written, f)
	}
	capability := narrow(r.Capability, written)

	order := []domain.Protocol{domain.ProtocolREST, domain.ProtocolGraph}
	if preferGraph {
		order = []domain.Protocol{domain.ProtocolGraph, domain.ProtocolREST}
	}

	var built []domain.Call
	var errs []error
	for _, p := range order {
		if !capability.Supports(p) {
			continue
		}
		c, err := r.build(p, kind, vars, values)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			continue
		}
		built = append(built, c)
	}

	switch len(built) {
	case 0:
		if len(errs) > 0 {
			return domain.Call{}, errors.Join(errs...)
		}
		return domain.Call{}, fmt.Errorf("%w: %s %s", ErrUnsupported, kind, r.Entity.Type)
	case 1:
		return built[0], nil
	default:
		return built[0].WithFallback(built[1]), nil
	}
}

func (r Resolution) build(p domain.Protocol, kind domain.OperationKind, vars map[string]string, values map[string]any) (domain.Call, error) {
	tmpl := r.Entity.template(p, kind)
	if tmpl == "" {
		return domain.Call{}, fmt.Errorf("%w: no %s template", ErrUnsupported, kind)
	}
	endpoint, err := Expand(tmpl, vars)
	if err != nil {
		return domain.Call{}, err
	}

	switch kind {
	case domain.OpGet:
		if len(r.Fields) > 0 {
			names := make([]string, len(r.Fields))
			for i, f := range r.Fields {
				names[i] = f.RemoteName(p)
			}
			sep := "?"
			if strings.Contains(endpoint, "?") {
				sep = "&"
			}
			endpoint += sep + "$select=" + strings.Join(names, ",")
		}
		return domain.NewCall(p, http.MethodGet, endpoint, nil), nil
	case domain.OpCreate, domain.OpUpdate:
		body, err := r.body(p, values)
		if err != nil {
			return domain.Call{}, err
		}
		verb := http.MethodPatch
		if kind == domain.OpCreate {
			verb = http.MethodPost
		}
		return domain.NewCall(p, verb, endpoint, body), nil
	case domain.OpDelete:
		return domain.NewCall(p, http.MethodDelete, endpoint, nil), nil
	default:
		return domain.Call{}, fmt.Errorf("%w: operation %d", ErrUnsupported, int(kind))
	}
}

// body encodes values under their remote names. Map keys marshal in sorted order.
func (r Resolution) body(p domain.Protocol, values map[string]any) ([]byte, error) {
	payload := make(map[string]any, len(values)+1)
	for name, v := range values {
		f, _ := r.Entity.Field(name)
		payload[f.RemoteName(p)] = v
	}
	if p == domain.ProtocolREST && r.Entity.REST != nil && r.Entity.REST.Type != "" {
		payload["__metadata"] = map[string]string{"type": r.Entity.REST.Type}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return b, nil
}

// narrow drops every protocol on which one of fields has no remote name.
func narrow(c domain.Capability, fields []FieldInfo) domain.Capability {
	rest := c.Supports(domain.ProtocolREST)
	graph := c.Supports(domain.ProtocolGraph)
	for _, f := range fields {
		if f.REST == "" {
			rest = false
		}
		if f.Graph == "" {
			graph = false
		}
	}
	switch {
	case rest && graph:
		return domain.Both
	case rest:
		return domain.RESTOnly
	case graph:
		return domain.GraphOnly
	default:
		return 0
	}
}
