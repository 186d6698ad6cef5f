package domain

import (
	"errors"
	"reflect"
	"sync"

	"github.com/google/uuid"
)

// RecordState is the lifecycle state of an operation record.
type RecordState int

const (
	// StateQueued records are part of a batch that has not been sent yet.
	StateQueued RecordState = iota
	// StateSent records were handed to the transport; the resolved call is frozen.
	StateSent
	// StateCompleted records received a successful response.
	StateCompleted
	// StateFailed records carry an error and never reached any owner.
	StateFailed
)

// String returns a human-readable representation of the state.
func (s RecordState) String() string {
	switch s {
	case StateQueued:
		return "Queued"
	case StateSent:
		return "Sent"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s RecordState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Response is what an owner receives once its record completes.
// Verb is the HTTP verb of the call that was sent for the record.
type Response struct {
	Protocol Protocol
	Verb     string
	Status   int
	Body     []byte
}

// Owner is the capability a requesting domain object exposes to the batch.
// The record only calls back into it; it never owns the object.
type Owner interface {
	ApplyResponse(resp Response) error
}

// Record is one queued unit of work inside a Batch.
// Duplicate requests for an equal primary call share one Record and are
// represented by additional owners.
type Record struct {
	mu sync.RWMutex

	order    int
	id       uuid.UUID
	primary  Call
	fallback Call
	owners   []Owner
	requests int

	state    RecordState
	resolved Call
	status   int
	body     []byte
	err      error
	applyErr error
}

func newRecord(order int, primary, fallback Call, owner Owner) *Record {
	r := &Record{
		order:    order,
		id:       uuid.New(),
		primary:  primary.WithFallback(Call{}),
		requests: 1,
		state:    StateQueued,
	}
	if fallback.Protocol() != primary.Protocol() {
		r.fallback = fallback.WithFallback(Call{})
	}
	r.resolved = r.primary
	r.bindOwnerLocked(owner)
	return r
}

// Order returns the insertion sequence number within the batch.
func (r *Record) Order() int { return r.order }

// ID returns the record identifier.
func (r *Record) ID() uuid.UUID { return r.id }

// Primary returns the descriptor the record was created with.
func (r *Record) Primary() Call { return r.primary }

// Fallback returns the alternate-protocol descriptor, if any.
func (r *Record) Fallback() (Call, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallback, !r.fallback.IsZero()
}

// CallOn returns the record's descriptor for protocol p, if it has one.
func (r *Record) CallOn(p Protocol) (Call, bool) {
	if r.primary.Protocol() == p {
		return r.primary, true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.fallback.IsZero() && r.fallback.Protocol() == p {
		return r.fallback, true
	}
	return Call{}, false
}

// Owners returns the distinct owners bound to this record.
func (r *Record) Owners() []Owner {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Owner(nil), r.owners...)
}

// Requests returns how many add calls were collapsed into this record.
func (r *Record) Requests() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.requests
}

// State returns the current state.
func (r *Record) State() RecordState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Resolved returns the descriptor that is (or will be) sent.
func (r *Record) Resolved() Call {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolved
}

// Status returns the response status, or 0 before completion.
func (r *Record) Status() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Result returns a copy of the raw response body.
func (r *Record) Result() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.body == nil {
		return nil
	}
	return append([]byte(nil), r.body...)
}

// Err returns the failure recorded for the record, if any.
func (r *Record) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// ApplyErr returns the joined errors owners reported while applying the response.
func (r *Record) ApplyErr() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.applyErr
}

// Resolve selects the descriptor to send. It must be one of the record's own
// descriptors and can only change while the record is queued.
func (r *Record) Resolve(c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateQueued {
		return ErrInvalidTransition
	}
	if !c.Equal(r.primary) && (r.fallback.IsZero() || !c.Equal(r.fallback)) {
		return errors.New("spbatch: resolved call does not belong to record")
	}
	r.resolved = c
	return nil
}

// MarkSent moves the record to Sent.
func (r *Record) MarkSent() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transitionTo(StateSent)
}

// Complete stores a successful result. The result is set exactly once.
func (r *Record) Complete(status int, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.transitionTo(StateCompleted); err != nil {
		return err
	}
	r.status = status
	if len(body) > 0 {
		r.body = append([]byte(nil), body...)
	}
	return nil
}

// Fail stores a failure. Queued records can fail without being sent.
func (r *Record) Fail(status int, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.transitionTo(StateFailed); err != nil {
		return err
	}
	r.status = status
	r.err = err
	return nil
}

// AddApplyError records an owner's failure to apply a successful response.
func (r *Record) AddApplyError(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applyErr = errors.Join(r.applyErr, err)
}

// Outcome returns a snapshot of the record's result.
func (r *Record) Outcome() Outcome {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o := Outcome{
		Order:  r.order,
		ID:     r.id,
		State:  r.state,
		Call:   r.resolved,
		Status: r.status,
		Err:    r.err,
	}
	if r.body != nil {
		o.Body = append([]byte(nil), r.body...)
	}
	return o
}

// transitionTo validates and applies a state change. Must be called with r.mu held.
func (r *Record) transitionTo(next RecordState) error {
	switch r.state {
	case StateQueued:
		if next != StateSent && next != StateFailed {
			return ErrInvalidTransition
		}
	case StateSent:
		if next != StateCompleted && next != StateFailed {
			return ErrInvalidTransition
		}
	default:
		return ErrInvalidTransition
	}
	r.state = next
	return nil
}

// bind attaches a duplicate request to this record.
func (r *Record) bind(owner Owner, fallback Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests++
	r.bindOwnerLocked(owner)
	if r.fallback.IsZero() && !fallback.IsZero() && fallback.Protocol() != r.primary.Protocol() && r.state == StateQueued {
		r.fallback = fallback.WithFallback(Call{})
	}
}

func (r *Record) bindOwnerLocked(owner Owner) {
	if owner == nil {
		return
	}
	for _, o := range r.owners {
		if sameOwner(o, owner) {
			return
		}
	}
	r.owners = append(r.owners, owner)
}

// sameOwner compares owners by identity when their dynamic type is comparable.
func sameOwner(a, b Owner) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

// Outcome is the per-record view handed to callers awaiting a whole batch.
type Outcome struct {
	Order  int
	ID     uuid.UUID
	State  RecordState
	Call   Call
	Status int
	Body   []byte
	Err    error
}
