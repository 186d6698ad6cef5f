package domain

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Batch is an ordered collection of records sent together.
// Records keep insertion order and no two carry equal primary calls.
// A batch is executed at most once.
type Batch struct {
	mu sync.RWMutex

	id         uuid.UUID
	createdAt  time.Time
	executedAt time.Time
	executed   bool

	records []*Record
	index   map[uint64][]*Record

	subBatches []SubBatchInfo
}

// SubBatchInfo describes one protocol-homogeneous transport call made for a batch.
type SubBatchInfo struct {
	// Index is the position of the sub-batch in the plan.
	Index int

	// Protocol is the protocol every call of the sub-batch was sent over.
	Protocol Protocol

	// Orders lists the record orders in the sub-batch, ascending.
	Orders []int

	// Err is the whole-sub-batch failure, if any.
	Err error
}

// NewBatch creates a new empty batch with a fresh identifier.
func NewBatch(now time.Time) *Batch {
	return &Batch{
		id:        uuid.New(),
		createdAt: now,
		records:   make([]*Record, 0),
		index:     make(map[uint64][]*Record),
	}
}

// ID returns the batch identifier.
func (b *Batch) ID() uuid.UUID { return b.id }

// CreatedAt returns the creation time.
func (b *Batch) CreatedAt() time.Time { return b.createdAt }

// Add queues a call. If a record with an equal primary call already exists, the
// owner is bound to it and the existing record is returned with dedup set to true.
// A zero fallback means "use the call's own fallback, if any".
func (b *Batch) Add(call, fallback Call, owner Owner) (rec *Record, dedup bool, err error) {
	if fallback.IsZero() {
		fallback, _ = call.Fallback()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.executed {
		return nil, false, ErrBatchExecuted
	}

	fp := call.Fingerprint()
	for _, existing := range b.index[fp] {
		if existing.primary.Equal(call) {
			existing.bind(owner, fallback)
			return existing, true, nil
		}
	}

	rec = newRecord(len(b.records), call, fallback, owner)
	b.records = append(b.records, rec)
	b.index[fp] = append(b.index[fp], rec)
	return rec, false, nil
}

// Seal marks the batch executed. It fails with ErrAlreadyExecuted if the batch
// was sealed before, leaving the batch unchanged.
func (b *Batch) Seal(now time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.executed {
		return ErrAlreadyExecuted
	}
	b.executed = true
	b.executedAt = now
	return nil
}

// Executed reports whether the batch was handed to Execute.
func (b *Batch) Executed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.executed
}

// ExecutedAt returns when the batch was sealed, or the zero time.
func (b *Batch) ExecutedAt() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.executedAt
}

// Size returns the number of records in the batch.
func (b *Batch) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.records)
}

// Empty returns true if the batch has no records.
func (b *Batch) Empty() bool {
	return b.Size() == 0
}

// Records returns the records in insertion order.
func (b *Batch) Records() []*Record {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]*Record(nil), b.records...)
}

// Outcomes returns per-record outcomes in insertion order.
func (b *Batch) Outcomes() []Outcome {
	records := b.Records()
	out := make([]Outcome, len(records))
	for i, r := range records {
		out[i] = r.Outcome()
	}
	return out
}

// RecordSubBatch appends the description of an executed sub-batch.
func (b *Batch) RecordSubBatch(info SubBatchInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	info.Orders = append([]int(nil), info.Orders...)
	b.subBatches = append(b.subBatches, info)
}

// SubBatches returns the executed sub-batches ordered by plan index.
func (b *Batch) SubBatches() []SubBatchInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]SubBatchInfo, len(b.subBatches))
	copy(out, b.subBatches)
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}
