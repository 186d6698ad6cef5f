package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bft-labs/spbatch/internal/domain"
)

// OpsFile is the operations file read by plan and exec.
type OpsFile struct {
	Operations []Operation `yaml:"operations"`
}

// Operation is one entity operation. Op defaults to get.
type Operation struct {
	Type   string            `yaml:"type"`
	Op     string            `yaml:"op"`
	Fields []string          `yaml:"fields"`
	Vars   map[string]string `yaml:"vars"`
	Values map[string]any    `yaml:"values"`
}

// Kind parses Op.
func (o Operation) Kind() (domain.OperationKind, error) {
	if o.Op == "" {
		return domain.OpGet, nil
	}
	return domain.ParseOperationKind(o.Op)
}

func (o Operation) String() string {
	op := o.Op
	if op == "" {
		op = "get"
	}
	return op + " " + o.Type
}

// ParseOps decodes an operations file. Unknown keys are rejected.
func ParseOps(r io.Reader) (OpsFile, error) {
	var f OpsFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return OpsFile{}, fmt.Errorf("decode operations: %w", err)
	}
	if len(f.Operations) == 0 {
		return OpsFile{}, fmt.Errorf("no operations")
	}
	for i, op := range f.Operations {
		if op.Type == "" {
			return OpsFile{}, fmt.Errorf("operation %d: type is required", i)
		}
		if _, err := op.Kind(); err != nil {
			return OpsFile{}, fmt.Errorf("operation %d: %w", i, err)
		}
	}
	return f, nil
}

// LoadOps reads an operations file from disk.
func LoadOps(path string) (OpsFile, error) {
	fh, err := os.Open(path)
	if err != nil {
		return OpsFile{}, err
	}
	defer fh.Close()
	return ParseOps(fh)
}
