package metadata

import "github.com/bft-labs/spbatch/internal/domain"

// RESTInfo describes how an entity is addressed over SharePoint REST.
type RESTInfo struct {
	Type   string `yaml:"type"`
	URI    string `yaml:"uri"`
	Get    string `yaml:"get"`
	Create string `yaml:"create"`
	Update string `yaml:"update"`
	Delete string `yaml:"delete"`
}

// GraphInfo describes how an entity is addressed over Microsoft Graph.
type GraphInfo struct {
	Get    string `yaml:"get"`
	Create string `yaml:"create"`
	Update string `yaml:"update"`
	Delete string `yaml:"delete"`
}

// FieldInfo maps one local property to its remote names.
// An empty remote name means the property is not available on that protocol.
type FieldInfo struct {
	Name  string `yaml:"name"`
	REST  string `yaml:"rest"`
	Graph string `yaml:"graph"`
	Key   bool   `yaml:"key"`
}

// RemoteName returns the field name used on protocol p.
func (f FieldInfo) RemoteName(p domain.Protocol) string {
	if p == domain.ProtocolGraph {
		return f.Graph
	}
	return f.REST
}

// EntityInfo is the descriptor table of one entity type.
// It is read-only once registered.
type EntityInfo struct {
	Type   string      `yaml:"type"`
	REST   *RESTInfo   `yaml:"rest"`
	Graph  *GraphInfo  `yaml:"graph"`
	Fields []FieldInfo `yaml:"fields"`

	byName   map[string]int
	byRemote map[domain.Protocol]map[string]int
}

// Capability returns which protocols the entity can be addressed over at all.
func (e *EntityInfo) Capability() domain.Capability {
	rest := e.REST != nil && e.REST.URI != ""
	graph := e.Graph != nil && e.Graph.Get != ""
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

// Field looks up a field by local name, case-insensitively.
func (e *EntityInfo) Field(name string) (FieldInfo, bool) {
	i, ok := e.byName[fold(name)]
	if !ok {
		return FieldInfo{}, false
	}
	return e.Fields[i], true
}

// FieldByRemote looks up a field by its remote name on protocol p, case-insensitively.
func (e *EntityInfo) FieldByRemote(p domain.Protocol, remote string) (FieldInfo, bool) {
	i, ok := e.byRemote[p][fold(remote)]
	if !ok {
		return FieldInfo{}, false
	}
	return e.Fields[i], true
}

// KeyFields returns the fields that are always loaded.
func (e *EntityInfo) KeyFields() []FieldInfo {
	var keys []FieldInfo
	for _, f := range e.Fields {
		if f.Key {
			keys = append(keys, f)
		}
	}
	return keys
}

// template returns the request template for kind on protocol p, applying the
// defaults: REST templates fall back to the URI, Graph update/delete to Get.
func (e *EntityInfo) template(p domain.Protocol, kind domain.OperationKind) string {
	if p == domain.ProtocolREST {
		if e.REST == nil || e.REST.URI == "" {
			return ""
		}
		var t string
		switch kind {
		case domain.OpGet:
			t = e.REST.Get
		case domain.OpCreate:
			t = e.REST.Create
		case domain.OpUpdate:
			t = e.REST.Update
		case domain.OpDelete:
			t = e.REST.Delete
		}
		if t == "" {
			t = e.REST.URI
		}
		return t
	}

	if e.Graph == nil || e.Graph.Get == "" {
		return ""
	}
	switch kind {
	case domain.OpGet:
		return e.Graph.Get
	case domain.OpCreate:
		return e.Graph.Create
	case domain.OpUpdate:
		if e.Graph.Update != "" {
			return e.Graph.Update
		}
		return e.Graph.Get
	case domain.OpDelete:
		if e.Graph.Delete != "" {
			return e.Graph.Delete
		}
		return e.Graph.Get
	}
	return ""
}

// index fills in default remote names and builds the lookup maps.
func (e *EntityInfo) index() error {
	e.byName = make(map[string]int, len(e.Fields))
	e.byRemote = map[domain.Protocol]map[string]int{
		domain.ProtocolREST:  {},
		domain.ProtocolGraph: {},
	}
	capability := e.Capability()
	for i := range e.Fields {
		f := &e.Fields[i]
		if f.Name == "" {
			return &TableError{Type: e.Type, Msg: "field without name"}
		}
		key := fold(f.Name)
		if _, dup := e.byName[key]; dup {
			return &TableError{Type: e.Type, Msg: "duplicate field " + f.Name}
		}
		// REST-capable entities expose every property under its own name unless mapped;
		// graph names are only implied for graph-only entities.
		if f.REST == "" && capability.Supports(domain.ProtocolREST) {
			f.REST = f.Name
		}
		if f.Graph == "" && capability == domain.GraphOnly {
			f.Graph = f.Name
		}
		if f.REST == "-" {
			f.REST = ""
		}
		e.byName[key] = i
		if f.REST != "" {
			e.byRemote[domain.ProtocolREST][fold(f.REST)] = i
		}
		if f.Graph != "" {
			e.byRemote[domain.ProtocolGraph][fold(f.Graph)] = i
		}
	}
	return nil
}
