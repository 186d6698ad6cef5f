package domain

import (
	"bytes"
	"strings"

	"github.com/cespare/xxhash"
)

// Call describes one remote request on one protocol.
// A Call is immutable: all fields are unexported and accessors return copies.
// The zero Call is "absent" and is used wherever a descriptor is optional.
type Call struct {
	protocol Protocol
	verb     string
	endpoint string
	body     []byte
	fallback *Call
}

// NewCall creates a call descriptor. The verb is normalized to upper case and
// the body is copied.
func NewCall(protocol Protocol, verb, endpoint string, body []byte) Call {
	c := Call{
		protocol: protocol,
		verb:     strings.ToUpper(strings.TrimSpace(verb)),
		endpoint: endpoint,
	}
	if len(body) > 0 {
		c.body = append([]byte(nil), body...)
	}
	return c
}

// WithFallback returns a copy of c that carries fb as its alternate-protocol descriptor.
// The fallback's own fallback is dropped.
func (c Call) WithFallback(fb Call) Call {
	if fb.IsZero() {
		c.fallback = nil
		return c
	}
	fb.fallback = nil
	c.fallback = &fb
	return c
}

// Protocol returns the protocol the call is sent over.
func (c Call) Protocol() Protocol { return c.protocol }

// Verb returns the HTTP verb.
func (c Call) Verb() string { return c.verb }

// Endpoint returns the request path or template-expanded URL relative to the protocol root.
func (c Call) Endpoint() string { return c.endpoint }

// Body returns a copy of the request body, or nil.
func (c Call) Body() []byte {
	if c.body == nil {
		return nil
	}
	return append([]byte(nil), c.body...)
}

// Fallback returns the alternate-protocol descriptor, if any.
func (c Call) Fallback() (Call, bool) {
	if c.fallback == nil {
		return Call{}, false
	}
	return *c.fallback, true
}

// IsZero reports whether c is the absent descriptor.
func (c Call) IsZero() bool {
	return c.protocol == 0 && c.verb == "" && c.endpoint == "" && len(c.body) == 0
}

// Equal reports value equality over protocol, endpoint, verb and body.
// Fallbacks do not take part in equality.
func (c Call) Equal(o Call) bool {
	return c.protocol == o.protocol &&
		c.verb == o.verb &&
		c.endpoint == o.endpoint &&
		bytes.Equal(c.body, o.body)
}

// Fingerprint returns a stable hash of the components compared by Equal.
// Equal calls always have equal fingerprints.
func (c Call) Fingerprint() uint64 {
	h := xxhash.New()
	_, _ = h.Write([]byte{byte(c.protocol), 0})
	_, _ = h.Write([]byte(c.verb))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(c.endpoint))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(c.body)
	return h.Sum64()
}

// String returns "protocol VERB endpoint" for logs and diagnostics.
func (c Call) String() string {
	if c.IsZero() {
		return "<none>"
	}
	return c.protocol.String() + " " + c.verb + " " + c.endpoint
}
