package domain

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingOwner struct {
	mu    sync.Mutex
	calls []Response
	err   error
}

func (o *recordingOwner) ApplyResponse(resp Response) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, resp)
	return o.err
}

func webTitle() Call {
	return NewCall(ProtocolREST, "get", "_api/web?$select=Title", nil)
}

func TestBatch_AddDeduplicatesEqualCalls(t *testing.T) {
	b := NewBatch(time.Now())
	owners := []*recordingOwner{{}, {}, {}}

	var first *Record
	for i, o := range owners {
		rec, dedup, err := b.Add(webTitle(), Call{}, o)
		require.NoError(t, err)
		if i == 0 {
			first = rec
			assert.False(t, dedup)
			continue
		}
		assert.True(t, dedup)
		assert.Same(t, first, rec)
	}

	assert.Equal(t, 1, b.Size())
	assert.Len(t, first.Owners(), 3)
	assert.Equal(t, 3, first.Requests())
}

func TestBatch_AddKeepsDistinctCalls(t *testing.T) {
	b := NewBatch(time.Now())

	r1, _, err := b.Add(webTitle(), Call{}, nil)
	require.NoError(t, err)
	r2, _, err := b.Add(NewCall(ProtocolREST, "GET", "_api/web?$select=SearchScope", nil), Call{}, nil)
	require.NoError(t, err)
	r3, _, err := b.Add(NewCall(ProtocolREST, "PATCH", "_api/web", []byte(`{"Title":"a"}`)), Call{}, nil)
	require.NoError(t, err)
	r4, _, err := b.Add(NewCall(ProtocolREST, "PATCH", "_api/web", []byte(`{"Title":"b"}`)), Call{}, nil)
	require.NoError(t, err)

	assert.Equal(t, 4, b.Size())
	assert.Equal(t, []int{0, 1, 2, 3}, []int{r1.Order(), r2.Order(), r3.Order(), r4.Order()})
}

func TestBatch_SameOwnerBoundOnce(t *testing.T) {
	b := NewBatch(time.Now())
	o := &recordingOwner{}

	rec, _, err := b.Add(webTitle(), Call{}, o)
	require.NoError(t, err)
	_, _, err = b.Add(webTitle(), Call{}, o)
	require.NoError(t, err)

	assert.Len(t, rec.Owners(), 1)
	assert.Equal(t, 2, rec.Requests())
}

func TestBatch_DuplicateAdoptsFallback(t *testing.T) {
	b := NewBatch(time.Now())
	graph := NewCall(ProtocolGraph, "GET", "sites/root?$select=displayName", nil)
	rest := NewCall(ProtocolREST, "GET", "_api/web?$select=Title", nil)

	rec, _, err := b.Add(graph, Call{}, nil)
	require.NoError(t, err)
	_, ok := rec.Fallback()
	assert.False(t, ok)

	_, _, err = b.Add(graph.WithFallback(rest), Call{}, nil)
	require.NoError(t, err)
	fb, ok := rec.Fallback()
	require.True(t, ok)
	assert.True(t, fb.Equal(rest))
}

func TestBatch_AddAfterSealFails(t *testing.T) {
	b := NewBatch(time.Now())
	require.NoError(t, b.Seal(time.Now()))

	_, _, err := b.Add(webTitle(), Call{}, nil)
	assert.ErrorIs(t, err, ErrBatchExecuted)
	assert.True(t, b.Empty())
}

func TestBatch_SealTwice(t *testing.T) {
	b := NewBatch(time.Now())
	require.NoError(t, b.Seal(time.Now()))
	at := b.ExecutedAt()

	err := b.Seal(time.Now().Add(time.Hour))
	assert.True(t, errors.Is(err, ErrAlreadyExecuted))
	assert.Equal(t, at, b.ExecutedAt())
	assert.True(t, b.Executed())
}

func TestBatch_ConcurrentAdd(t *testing.T) {
	b := NewBatch(time.Now())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := b.Add(webTitle(), Call{}, &recordingOwner{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, 1, b.Size())
	rec := b.Records()[0]
	assert.Equal(t, 50, rec.Requests())
	assert.Len(t, rec.Owners(), 50)
}

func TestBatch_SubBatchesSortedByIndex(t *testing.T) {
	b := NewBatch(time.Now())
	b.RecordSubBatch(SubBatchInfo{Index: 1, Protocol: ProtocolREST, Orders: []int{1}})
	b.RecordSubBatch(SubBatchInfo{Index: 0, Protocol: ProtocolGraph, Orders: []int{0}})

	subs := b.SubBatches()
	require.Len(t, subs, 2)
	assert.Equal(t, ProtocolGraph, subs[0].Protocol)
	assert.Equal(t, ProtocolREST, subs[1].Protocol)
}

func TestBatch_IdentifiersAreUnique(t *testing.T) {
	a := NewBatch(time.Now())
	b := NewBatch(time.Now())
	assert.NotEqual(t, a.ID(), b.ID())
}
