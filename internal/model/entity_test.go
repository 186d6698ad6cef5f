package model

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/spbatch/internal/domain"
	"github.com/bft-labs/spbatch/internal/metadata"
	"github.com/bft-labs/spbatch/internal/ports"
)

var _ ports.Model = (*Entity)(nil)

var webVars = map[string]string{
	"hostname":           "contoso.sharepoint.com",
	"serverrelativepath": "/sites/dev",
}

func registry(t *testing.T) *metadata.Registry {
	t.Helper()
	reg, err := metadata.Default()
	require.NoError(t, err)
	return reg
}

func TestNewUnknownType(t *testing.T) {
	_, err := New(registry(t), "Nope", nil)
	assert.ErrorIs(t, err, metadata.ErrUnknownType)
}

func TestDescribeGet(t *testing.T) {
	web, err := New(registry(t), "web", webVars)
	require.NoError(t, err)
	assert.Equal(t, "Web", web.Type())

	call, err := web.Select("Title").Describe(domain.OpGet)
	require.NoError(t, err)
	assert.Equal(t, domain.ProtocolGraph, call.Protocol())
	fb, ok := call.Fallback()
	require.True(t, ok)
	assert.Equal(t, "_api/web?$select=Title,Id", fb.Endpoint())

	rest, err := New(registry(t), "Web", webVars, PreferGraph(false))
	require.NoError(t, err)
	call, err = rest.Select("Title").Describe(domain.OpGet)
	require.NoError(t, err)
	assert.Equal(t, domain.ProtocolREST, call.Protocol())
}

func TestDescribeUpdateUsesStagedValues(t *testing.T) {
	web, err := New(registry(t), "Web", webVars, PreferGraph(false))
	require.NoError(t, err)

	call, err := web.Set("Title", "Renamed").Describe(domain.OpUpdate)
	require.NoError(t, err)
	assert.Equal(t, "PATCH", call.Verb())
	assert.JSONEq(t, `{"Title":"Renamed","__metadata":{"type":"SP.Web"}}`, string(call.Body()))

	require.NoError(t, web.ApplyResponse(domain.Response{Protocol: domain.ProtocolREST, Verb: call.Verb(), Status: http.StatusNoContent}))
	v, ok := web.Value("title")
	require.True(t, ok)
	assert.Equal(t, "Renamed", v)
}

func TestApplyResponseFormats(t *testing.T) {
	tests := []struct {
		name     string
		protocol domain.Protocol
		body     string
	}{
		{name: "rest verbose", protocol: domain.ProtocolREST, body: `{"d":{"__metadata":{"type":"SP.Web"},"Id":"w1","Title":"Dev"}}`},
		{name: "rest nometadata", protocol: domain.ProtocolREST, body: `{"odata.metadata":"x","Id":"w1","Title":"Dev"}`},
		{name: "graph", protocol: domain.ProtocolGraph, body: `{"@odata.context":"x","id":"w1","displayName":"Dev","unknown":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			web, err := New(registry(t), "Web", webVars)
			require.NoError(t, err)
			assert.False(t, web.Requested())

			require.NoError(t, web.ApplyResponse(domain.Response{Protocol: tt.protocol, Verb: http.MethodGet, Status: 200, Body: []byte(tt.body)}))
			assert.True(t, web.Requested())
			assert.True(t, web.IsPropertyAvailable("Title"))
			assert.False(t, web.IsPropertyAvailable("Description"))
			assert.Equal(t, map[string]any{"Id": "w1", "Title": "Dev"}, web.Values())
		})
	}
}

func TestApplyResponseInvalidJSON(t *testing.T) {
	web, err := New(registry(t), "Web", webVars)
	require.NoError(t, err)
	err = web.ApplyResponse(domain.Response{Protocol: domain.ProtocolGraph, Status: 200, Body: []byte("<html>")})
	assert.Error(t, err)
}

func TestDeleteMarksDeleted(t *testing.T) {
	ch, err := New(registry(t), "TeamChannel", map[string]string{"groupid": "g", "channelid": "c"})
	require.NoError(t, err)

	call, err := ch.Describe(domain.OpDelete)
	require.NoError(t, err)
	assert.Equal(t, "DELETE", call.Verb())

	require.NoError(t, ch.ApplyResponse(domain.Response{Protocol: domain.ProtocolGraph, Verb: call.Verb(), Status: http.StatusNoContent}))
	assert.True(t, ch.Deleted())
}

func TestValueUnknownField(t *testing.T) {
	web, err := New(registry(t), "Web", webVars)
	require.NoError(t, err)
	_, ok := web.Value("Bogus")
	assert.False(t, ok)
}

func TestApplyResponseVerbSelectsBehavior(t *testing.T) {
	web, err := New(registry(t), "Web", webVars, PreferGraph(false))
	require.NoError(t, err)
	web.Set("Title", "Renamed")

	require.NoError(t, web.ApplyResponse(domain.Response{Protocol: domain.ProtocolREST, Verb: http.MethodGet, Status: http.StatusNoContent}))
	assert.False(t, web.IsPropertyAvailable("Title"))
	assert.False(t, web.Deleted())

	require.NoError(t, web.ApplyResponse(domain.Response{Protocol: domain.ProtocolREST, Verb: http.MethodPatch, Status: http.StatusNoContent}))
	assert.True(t, web.IsPropertyAvailable("Title"))

	require.NoError(t, web.ApplyResponse(domain.Response{Protocol: domain.ProtocolREST, Verb: http.MethodDelete, Status: http.StatusOK}))
	assert.True(t, web.Deleted())
}
