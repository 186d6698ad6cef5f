package cli

import (
	"context"
	"fmt"

	"github.com/bft-labs/spbatch"
	"github.com/bft-labs/spbatch/internal/domain"
	"github.com/bft-labs/spbatch/internal/model"
)

// Item ties one operation of the file to the entity and record serving it.
type Item struct {
	Index  int
	Op     Operation
	Kind   domain.OperationKind
	Entity *model.Entity
	Record *domain.Record
}

// Report is the result of running an operations file as one batch.
type Report struct {
	Batch *domain.Batch
	Items []Item
}

// Failed counts records that ended in the Failed state.
func (r *Report) Failed() int {
	n := 0
	for _, o := range r.Batch.Outcomes() {
		if o.State == domain.StateFailed {
			n++
		}
	}
	return n
}

// runOps enqueues every operation into a fresh batch and executes it.
// Execute's error is returned alongside the report so partial results can be shown.
func runOps(ctx context.Context, svc *spbatch.Service, ops []Operation) (*Report, error) {
	b := svc.NewBatch()
	rep := &Report{Batch: b, Items: make([]Item, 0, len(ops))}

	for i, op := range ops {
		kind, err := op.Kind()
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		ent, err := svc.Entity(op.Type, op.Vars)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		ent.Select(op.Fields...)
		for field, v := range op.Values {
			ent.Set(field, v)
		}
		rec, err := svc.Enqueue(b, ent, kind)
		if err != nil {
			return nil, fmt.Errorf("operation %d (%s): %w", i, op, err)
		}
		rep.Items = append(rep.Items, Item{Index: i, Op: op, Kind: kind, Entity: ent, Record: rec})
	}

	return rep, svc.Execute(ctx, b)
}
