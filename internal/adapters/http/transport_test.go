package http

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/bft-labs/spbatch/internal/domain"
	"github.com/bft-labs/spbatch/pkg/log"
)

func sequentialIDs() func() string {
	var n int
	return func() string {
		n++
		return fmt.Sprintf("id%d", n)
	}
}

func noSleep(calls *[]time.Duration) Option {
	return withSleep(func(_ context.Context, d time.Duration) error {
		*calls = append(*calls, d)
		return nil
	})
}

// writeRESTResponse answers a $batch request with one part per entry of parts.
func writeRESTResponse(t *testing.T, w http.ResponseWriter, parts []string) {
	t.Helper()
	mw := multipart.NewWriter(w)
	w.Header().Set("Content-Type", "multipart/mixed; boundary="+mw.Boundary())
	for _, p := range parts {
		part, err := mw.CreatePart(httpPartHeader())
		require.NoError(t, err)
		_, err = io.WriteString(part, p)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
}

// readRESTRequests parses the individual requests of a $batch body.
func readRESTRequests(t *testing.T, r *http.Request) []*http.Request {
	t.Helper()
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	require.NoError(t, err)
	return readRequestParts(t, multipart.NewReader(r.Body, params["boundary"]))
}

func readRequestParts(t *testing.T, mr *multipart.Reader) []*http.Request {
	var reqs []*http.Request
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return reqs
		}
		require.NoError(t, err)
		mt, params, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if strings.HasPrefix(mt, "multipart/") {
			reqs = append(reqs, readRequestParts(t, multipart.NewReader(part, params["boundary"]))...)
			continue
		}
		req, err := http.ReadRequest(bufio.NewReader(part))
		require.NoError(t, err)
		reqs = append(reqs, req)
	}
}

func TestSendREST(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sites/dev/_api/$batch", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		reqs := readRESTRequests(t, r)
		require.Len(t, reqs, 2)
		assert.Equal(t, "GET", reqs[0].Method)
		assert.Equal(t, "/sites/dev/_api/web", reqs[0].URL.Path)
		assert.Equal(t, "Title", reqs[0].URL.Query().Get("$select"))
		assert.Equal(t, "PATCH", reqs[1].Method)
		assert.Equal(t, "*", reqs[1].Header.Get("If-Match"))
		body, _ := io.ReadAll(reqs[1].Body)
		assert.JSONEq(t, `{"Title":"New"}`, strings.TrimSpace(string(body)))

		writeRESTResponse(t, w, []string{
			"HTTP/1.1 200 OK\r\nContent-Type: application/json\r\n\r\n{\"d\":{\"Title\":\"Dev\"}}\r\n",
			"HTTP/1.1 204 No Content\r\n\r\n",
		})
	}))
	defer srv.Close()

	tr := NewTransport(Config{SiteURL: srv.URL + "/sites/dev"}, srv.Client(), log.NewNoopLogger(),
		WithTokenSource(domain.ProtocolREST, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "rest-token"})),
		withIDs(sequentialIDs()),
	)

	results, err := tr.Send(context.Background(), domain.ProtocolREST, []domain.Call{
		domain.NewCall(domain.ProtocolREST, "GET", "_api/web?$select=Title", nil),
		domain.NewCall(domain.ProtocolREST, "PATCH", "_api/web", []byte(`{"Title":"New"}`)),
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 200, results[0].Status)
	assert.Equal(t, `{"d":{"Title":"Dev"}}`, string(results[0].Body))
	assert.Equal(t, 204, results[1].Status)
	assert.Nil(t, results[1].Body)
	assert.Equal(t, "Bearer rest-token", gotAuth)
}

func TestDecodeRESTFlattensChangesets(t *testing.T) {
	body := "--batchresponse_1\r\n" +
		"Content-Type: application/http\r\n" +
		"Content-Transfer-Encoding: binary\r\n\r\n" +
		"HTTP/1.1 200 OK\r\nContent-Type: application/json\r\n\r\n{\"a\":1}\r\n" +
		"--batchresponse_1\r\n" +
		"Content-Type: multipart/mixed; boundary=changesetresponse_2\r\n\r\n" +
		"--changesetresponse_2\r\n" +
		"Content-Type: application/http\r\n" +
		"Content-Transfer-Encoding: binary\r\n\r\n" +
		"HTTP/1.1 404 Not Found\r\nContent-Type: application/json\r\n\r\n{\"error\":{}}\r\n" +
		"--changesetresponse_2--\r\n" +
		"--batchresponse_1--\r\n"

	results, err := decodeREST("multipart/mixed; boundary=batchresponse_1", strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, `{"a":1}`, string(results[0].Body))
	assert.Equal(t, 404, results[1].Status)

	_, err = decodeREST("application/json", strings.NewReader("{}"))
	assert.Error(t, err)
}

func TestSendGraphMatchesResponsesByID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1.0/$batch", r.URL.Path)
		assert.Equal(t, "Bearer graph-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"responses":[
			{"id":"2","status":404,"body":{"error":{"code":"itemNotFound","message":"gone"}}},
			{"id":"1","status":200,"body":{"id":"site"}}
		]}`)
	}))
	defer srv.Close()

	tr := NewTransport(Config{GraphURL: srv.URL + "/v1.0"}, srv.Client(), log.NewNoopLogger(),
		WithTokenSources(map[domain.Protocol]oauth2.TokenSource{
			domain.ProtocolGraph: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "graph-token"}),
		}),
	)
	results, err := tr.Send(context.Background(), domain.ProtocolGraph, []domain.Call{
		domain.NewCall(domain.ProtocolGraph, "GET", "sites/root", nil),
		domain.NewCall(domain.ProtocolGraph, "GET", "teams/x", nil),
		domain.NewCall(domain.ProtocolGraph, "GET", "teams/y", nil),
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, 200, results[0].Status)
	assert.JSONEq(t, `{"id":"site"}`, string(results[0].Body))
	assert.Equal(t, 404, results[1].Status)
	assert.Error(t, results[2].Err)
}

func TestSendGraphChunks(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		var batch struct {
			Requests []graphRequest `json:"requests"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
		assert.LessOrEqual(t, len(batch.Requests), graphBatchLimit)

		resp := make([]graphResponse, len(batch.Requests))
		for i, req := range batch.Requests {
			resp[i] = graphResponse{ID: req.ID, Status: 200, Body: json.RawMessage(fmt.Sprintf(`{"url":%q}`, req.URL))}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"responses": resp})
	}))
	defer srv.Close()

	calls := make([]domain.Call, 45)
	for i := range calls {
		calls[i] = domain.NewCall(domain.ProtocolGraph, "GET", fmt.Sprintf("teams/%d", i), nil)
	}
	tr := NewTransport(Config{GraphURL: srv.URL}, srv.Client(), log.NewNoopLogger())
	results, err := tr.Send(context.Background(), domain.ProtocolGraph, calls)
	require.NoError(t, err)
	require.Len(t, results, 45)
	assert.Equal(t, int32(3), requests.Load())
	assert.JSONEq(t, `{"url":"/teams/44"}`, string(results[44].Body))
}

func TestSendGraphFailedChunkFailsOnlyItsRequests(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 2 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		var batch struct {
			Requests []graphRequest `json:"requests"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
		resp := make([]graphResponse, len(batch.Requests))
		for i, req := range batch.Requests {
			resp[i] = graphResponse{ID: req.ID, Status: 204}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"responses": resp})
	}))
	defer srv.Close()

	calls := make([]domain.Call, 25)
	for i := range calls {
		calls[i] = domain.NewCall(domain.ProtocolGraph, "DELETE", fmt.Sprintf("teams/g/channels/%d", i), nil)
	}
	tr := NewTransport(Config{GraphURL: srv.URL}, srv.Client(), log.NewNoopLogger())
	results, err := tr.Send(context.Background(), domain.ProtocolGraph, calls)
	require.NoError(t, err)
	require.Len(t, results, 25)
	assert.Equal(t, int32(2), requests.Load())
	for i := 0; i < graphBatchLimit; i++ {
		assert.NoError(t, results[i].Err)
		assert.Equal(t, 204, results[i].Status)
	}
	for i := graphBatchLimit; i < 25; i++ {
		assert.ErrorContains(t, results[i].Err, "500")
	}
}

func TestSendGraphEveryChunkFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	calls := make([]domain.Call, 25)
	for i := range calls {
		calls[i] = domain.NewCall(domain.ProtocolGraph, "GET", fmt.Sprintf("teams/%d", i), nil)
	}
	tr := NewTransport(Config{GraphURL: srv.URL}, srv.Client(), log.NewNoopLogger())
	results, err := tr.Send(context.Background(), domain.ProtocolGraph, calls)
	assert.ErrorContains(t, err, "500")
	assert.Nil(t, results)
}

func TestSendRetriesThrottledRequests(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, `{"responses":[{"id":"1","status":200}]}`)
	}))
	defer srv.Close()

	var waits []time.Duration
	tr := NewTransport(Config{GraphURL: srv.URL, MaxRetries: 2}, srv.Client(), log.NewNoopLogger(), noSleep(&waits))
	results, err := tr.Send(context.Background(), domain.ProtocolGraph, []domain.Call{
		domain.NewCall(domain.ProtocolGraph, "GET", "sites/root", nil),
	})
	require.NoError(t, err)
	assert.Equal(t, 200, results[0].Status)
	assert.Equal(t, int32(2), requests.Load())
	assert.Equal(t, []time.Duration{2 * time.Second}, waits)
}

func TestSendGivesUpAfterMaxRetries(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var waits []time.Duration
	tr := NewTransport(Config{GraphURL: srv.URL, MaxRetries: 2, RetryInitial: time.Millisecond, RetryMax: time.Millisecond}, srv.Client(), log.NewNoopLogger(), noSleep(&waits))
	_, err := tr.Send(context.Background(), domain.ProtocolGraph, []domain.Call{
		domain.NewCall(domain.ProtocolGraph, "GET", "sites/root", nil),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, int32(3), requests.Load())
	assert.Len(t, waits, 2)
}

func TestSendDoesNotRetryOtherFailures(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.Error(w, "bad batch", http.StatusBadRequest)
	}))
	defer srv.Close()

	tr := NewTransport(Config{SiteURL: srv.URL, MaxRetries: 5}, srv.Client(), log.NewNoopLogger())
	_, err := tr.Send(context.Background(), domain.ProtocolREST, []domain.Call{
		domain.NewCall(domain.ProtocolREST, "GET", "_api/web", nil),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad batch")
	assert.Equal(t, int32(1), requests.Load())
}

func TestSendRejectsMixedProtocols(t *testing.T) {
	tr := NewTransport(Config{SiteURL: "https://contoso.sharepoint.com"}, http.DefaultClient, log.NewNoopLogger())
	_, err := tr.Send(context.Background(), domain.ProtocolREST, []domain.Call{
		domain.NewCall(domain.ProtocolGraph, "GET", "sites/root", nil),
	})
	assert.Error(t, err)

	results, err := tr.Send(context.Background(), domain.ProtocolREST, nil)
	assert.NoError(t, err)
	assert.Nil(t, results)
}

func TestSendRESTWithoutSiteURL(t *testing.T) {
	tr := NewTransport(Config{}, http.DefaultClient, log.NewNoopLogger())
	assert.True(t, tr.Available())
	_, err := tr.Send(context.Background(), domain.ProtocolREST, []domain.Call{
		domain.NewCall(domain.ProtocolREST, "GET", "_api/web", nil),
	})
	assert.Error(t, err)
}

func TestTransportUnavailableWithoutClient(t *testing.T) {
	tr := NewTransport(Config{SiteURL: "https://contoso.sharepoint.com"}, nil, log.NewNoopLogger())
	assert.False(t, tr.Available())
}
