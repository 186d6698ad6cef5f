package metadata

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

//go:embed entities.yaml
var defaultTables []byte

// Registry holds entity tables keyed by case-folded type name.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	entities map[string]*EntityInfo
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entities: make(map[string]*EntityInfo)}
}

// Default creates a registry loaded with the built-in tables.
func Default() (*Registry, error) {
	r := New()
	if err := r.LoadYAML(bytes.NewReader(defaultTables)); err != nil {
		return nil, fmt.Errorf("load built-in tables: %w", err)
	}
	return r, nil
}

type tableFile struct {
	Entities []EntityInfo `yaml:"entities"`
}

// LoadYAML registers every entity listed in r.
func (r *Registry) LoadYAML(src io.Reader) error {
	var file tableFile
	dec := yaml.NewDecoder(src)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("decode tables: %w", err)
	}
	for _, e := range file.Entities {
		if err := r.Register(e); err != nil {
			return err
		}
	}
	return nil
}

// LoadFile registers every entity listed in the YAML file at path.
func (r *Registry) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open tables: %w", err)
	}
	defer f.Close()
	return r.LoadYAML(f)
}

// Register adds an entity table. Registering a type that is already known is a no-op.
func (r *Registry) Register(info EntityInfo) error {
	if info.Type == "" {
		return &TableError{Type: "<unnamed>", Msg: "missing type"}
	}
	if info.Capability() == 0 {
		return &TableError{Type: info.Type, Msg: "neither rest uri nor graph get template"}
	}
	key := fold(info.Type)

	r.mu.RLock()
	_, exists := r.entities[key]
	r.mu.RUnlock()
	if exists {
		return nil
	}

	// Own copies so the caller's slices cannot mutate a registered table.
	e := info
	e.Fields = append([]FieldInfo(nil), info.Fields...)
	if info.REST != nil {
		rest := *info.REST
		e.REST = &rest
	}
	if info.Graph != nil {
		graph := *info.Graph
		e.Graph = &graph
	}
	if err := e.index(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entities[key]; !exists {
		r.entities[key] = &e
	}
	return nil
}

// Lookup returns the shared table for typeName.
func (r *Registry) Lookup(typeName string) (*EntityInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[fold(typeName)]
	return e, ok
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entities))
	for _, e := range r.entities {
		names = append(names, e.Type)
	}
	sort.Strings(names)
	return names
}

// fold returns the case-folded form of s. Casers are stateful, so a new one is
// used per call.
func fold(s string) string {
	return cases.Fold().String(s)
}
