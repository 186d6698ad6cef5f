package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCall_Equal(t *testing.T) {
	base := NewCall(ProtocolREST, "GET", "_api/web", nil)

	tests := []struct {
		name  string
		other Call
		want  bool
	}{
		{"same values", NewCall(ProtocolREST, "get", "_api/web", nil), true},
		{"fallback ignored", NewCall(ProtocolREST, "GET", "_api/web", nil).WithFallback(NewCall(ProtocolGraph, "GET", "sites/root", nil)), true},
		{"empty body equals nil body", NewCall(ProtocolREST, "GET", "_api/web", []byte{}), true},
		{"different protocol", NewCall(ProtocolGraph, "GET", "_api/web", nil), false},
		{"different verb", NewCall(ProtocolREST, "POST", "_api/web", nil), false},
		{"different endpoint", NewCall(ProtocolREST, "GET", "_api/site", nil), false},
		{"different body", NewCall(ProtocolREST, "GET", "_api/web", []byte("x")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, base.Equal(tt.other))
			if tt.want {
				assert.Equal(t, base.Fingerprint(), tt.other.Fingerprint())
			}
		})
	}
}

func TestCall_Immutable(t *testing.T) {
	body := []byte(`{"Title":"a"}`)
	c := NewCall(ProtocolREST, "PATCH", "_api/web", body)

	body[0] = 'X'
	assert.Equal(t, `{"Title":"a"}`, string(c.Body()))

	got := c.Body()
	got[0] = 'Y'
	assert.Equal(t, `{"Title":"a"}`, string(c.Body()))
}

func TestCall_WithFallback(t *testing.T) {
	graph := NewCall(ProtocolGraph, "GET", "sites/root", nil)
	rest := NewCall(ProtocolREST, "GET", "_api/web", nil)

	withFB := graph.WithFallback(rest)
	_, ok := graph.Fallback()
	assert.False(t, ok, "original must not change")

	fb, ok := withFB.Fallback()
	require.True(t, ok)
	assert.True(t, fb.Equal(rest))

	cleared := withFB.WithFallback(Call{})
	_, ok = cleared.Fallback()
	assert.False(t, ok)
}

func TestCall_IsZero(t *testing.T) {
	assert.True(t, Call{}.IsZero())
	assert.False(t, NewCall(ProtocolREST, "GET", "_api/web", nil).IsZero())
	assert.Equal(t, "<none>", Call{}.String())
	assert.Equal(t, "graph GET sites/root", NewCall(ProtocolGraph, "get", "sites/root", nil).String())
}

func TestParseProtocol(t *testing.T) {
	p, err := ParseProtocol("Graph")
	require.NoError(t, err)
	assert.Equal(t, ProtocolGraph, p)

	p, err = ParseProtocol("rest")
	require.NoError(t, err)
	assert.Equal(t, ProtocolREST, p)

	_, err = ParseProtocol("soap")
	assert.Error(t, err)
}

func TestCapability_Supports(t *testing.T) {
	assert.True(t, Both.Supports(ProtocolREST))
	assert.True(t, Both.Supports(ProtocolGraph))
	assert.True(t, RESTOnly.Supports(ProtocolREST))
	assert.False(t, RESTOnly.Supports(ProtocolGraph))
	assert.False(t, GraphOnly.Supports(ProtocolREST))
	assert.False(t, Capability(0).Supports(ProtocolREST))
}
