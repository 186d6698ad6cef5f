// Package memory provides a scriptable in-process transport.
// It answers calls from registered responders and never touches the network.
package memory

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bft-labs/spbatch/internal/domain"
	"github.com/bft-labs/spbatch/internal/ports"
)

// Responder produces the result of a single call.
type Responder func(call domain.Call) ports.Result

// SendHook runs before a sub-batch is answered. A non-nil error fails the sub-batch.
type SendHook func(ctx context.Context, protocol domain.Protocol, calls []domain.Call) error

// Sent is one recorded transport call.
type Sent struct {
	Protocol domain.Protocol
	Calls    []domain.Call
}

type route struct {
	protocol domain.Protocol
	verb     string
	endpoint string
}

// Transport is an in-memory ports.Transport.
type Transport struct {
	mu         sync.Mutex
	responders map[route]Responder
	fallback   Responder
	sendErrs   map[domain.Protocol]error
	hook       SendHook
	history    []Sent

	unavailable atomic.Bool
	sends       atomic.Int64
	calls       atomic.Int64
}

// New creates a transport answering every call with 200 and an empty JSON object.
func New() *Transport {
	return &Transport{
		responders: make(map[route]Responder),
		fallback:   JSON(http.StatusOK, "{}"),
		sendErrs:   make(map[domain.Protocol]error),
	}
}

// JSON returns a responder that always answers with status and body.
func JSON(status int, body string) Responder {
	return func(domain.Call) ports.Result {
		return ports.Result{Status: status, Body: []byte(body)}
	}
}

// Respond registers r for calls matching protocol, verb and endpoint.
// The endpoint is matched without its query string.
func (t *Transport) Respond(protocol domain.Protocol, verb, endpoint string, r Responder) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.responders[route{protocol: protocol, verb: strings.ToUpper(verb), endpoint: stripQuery(endpoint)}] = r
}

// SetDefault sets the responder used when no route matches.
func (t *Transport) SetDefault(r Responder) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fallback = r
}

// FailProtocol makes every sub-batch on protocol fail with err. A nil err clears it.
func (t *Transport) FailProtocol(protocol domain.Protocol, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err == nil {
		delete(t.sendErrs, protocol)
		return
	}
	t.sendErrs[protocol] = err
}

// OnSend installs a hook run before each sub-batch is answered.
func (t *Transport) OnSend(hook SendHook) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hook = hook
}

// SetAvailable switches the availability reported to the client.
func (t *Transport) SetAvailable(ok bool) {
	t.unavailable.Store(!ok)
}

// Available implements ports.Availability.
func (t *Transport) Available() bool {
	return !t.unavailable.Load()
}

// Send implements ports.Transport.
func (t *Transport) Send(ctx context.Context, protocol domain.Protocol, calls []domain.Call) ([]ports.Result, error) {
	t.mu.Lock()
	hook := t.hook
	sendErr := t.sendErrs[protocol]
	t.history = append(t.history, Sent{Protocol: protocol, Calls: append([]domain.Call(nil), calls...)})
	t.mu.Unlock()

	t.sends.Add(1)
	t.calls.Add(int64(len(calls)))

	if hook != nil {
		if err := hook(ctx, protocol, calls); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if sendErr != nil {
		return nil, sendErr
	}

	results := make([]ports.Result, len(calls))
	for i, c := range calls {
		results[i] = t.responder(c)(c)
	}
	return results, nil
}

func (t *Transport) responder(c domain.Call) Responder {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.responders[route{protocol: c.Protocol(), verb: c.Verb(), endpoint: stripQuery(c.Endpoint())}]; ok {
		return r
	}
	return t.fallback
}

// History returns every recorded transport call, in send order.
func (t *Transport) History() []Sent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Sent(nil), t.history...)
}

// Sends returns the number of transport calls.
func (t *Transport) Sends() int64 { return t.sends.Load() }

// Calls returns the total number of individual requests sent.
func (t *Transport) Calls() int64 { return t.calls.Load() }

// Reset clears history and counters. Responders stay registered.
func (t *Transport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = nil
	t.sends.Store(0)
	t.calls.Store(0)
}

func stripQuery(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		return endpoint[:i]
	}
	return endpoint
}
