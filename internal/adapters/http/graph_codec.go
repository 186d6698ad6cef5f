package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bft-labs/spbatch/internal/domain"
	"github.com/bft-labs/spbatch/internal/ports"
)

// graphBatchLimit is the maximum number of requests in one Graph $batch call.
const graphBatchLimit = 20

type graphRequest struct {
	ID      string            `json:"id"`
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
}

type graphResponse struct {
	ID      string            `json:"id"`
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
}

// encodeGraph writes calls as a Graph JSON batch. Request ids are 1-based positions.
func encodeGraph(calls []domain.Call) ([]byte, error) {
	reqs := make([]graphRequest, len(calls))
	for i, c := range calls {
		r := graphRequest{
			ID:     strconv.Itoa(i + 1),
			Method: c.Verb(),
			URL:    "/" + strings.TrimLeft(c.Endpoint(), "/"),
		}
		if body := c.Body(); len(body) > 0 {
			if !json.Valid(body) {
				return nil, fmt.Errorf("request %d: body is not JSON", i+1)
			}
			r.Headers = map[string]string{"Content-Type": "application/json"}
			r.Body = body
		}
		reqs[i] = r
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(struct {
		Requests []graphRequest `json:"requests"`
	}{Requests: reqs}); err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeGraph maps the responses of a Graph batch back to request positions.
// A request without a response gets a per-request error.
func decodeGraph(body io.Reader, n int) ([]ports.Result, error) {
	var batch struct {
		Responses []graphResponse `json:"responses"`
	}
	if err := json.NewDecoder(body).Decode(&batch); err != nil {
		return nil, fmt.Errorf("decode batch response: %w", err)
	}

	results := make([]ports.Result, n)
	seen := make([]bool, n)
	for _, r := range batch.Responses {
		idx, err := strconv.Atoi(r.ID)
		if err != nil || idx < 1 || idx > n {
			return nil, fmt.Errorf("unexpected response id %q", r.ID)
		}
		var data []byte
		if len(r.Body) > 0 && !bytes.Equal(r.Body, []byte("null")) {
			data = []byte(r.Body)
		}
		results[idx-1] = ports.Result{Status: r.Status, Body: data}
		seen[idx-1] = true
	}
	for i, ok := range seen {
		if !ok {
			results[i] = ports.Result{Err: fmt.Errorf("spbatch: no response for request %d", i+1)}
		}
	}
	return results, nil
}
