package http

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/bft-labs/spbatch/internal/domain"
	"github.com/bft-labs/spbatch/internal/ports"
)

const restJSON = "application/json;odata=verbose"

// encodeREST writes calls as a SharePoint $batch body. Reads go directly into
// the batch; each write is wrapped in its own changeset.
func encodeREST(siteURL, boundary string, calls []domain.Call, newID func() string) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.SetBoundary(boundary); err != nil {
		return nil, fmt.Errorf("set boundary: %w", err)
	}

	for _, c := range calls {
		if c.Verb() == http.MethodGet {
			part, err := w.CreatePart(httpPartHeader())
			if err != nil {
				return nil, fmt.Errorf("create part: %w", err)
			}
			if err := writeRESTRequest(part, siteURL, c); err != nil {
				return nil, err
			}
			continue
		}

		changeset := "changeset_" + newID()
		part, err := w.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {"multipart/mixed; boundary=" + changeset},
			"Content-Transfer-Encoding": {"binary"},
		})
		if err != nil {
			return nil, fmt.Errorf("create changeset: %w", err)
		}
		cs := multipart.NewWriter(part)
		if err := cs.SetBoundary(changeset); err != nil {
			return nil, fmt.Errorf("set changeset boundary: %w", err)
		}
		inner, err := cs.CreatePart(httpPartHeader())
		if err != nil {
			return nil, fmt.Errorf("create changeset part: %w", err)
		}
		if err := writeRESTRequest(inner, siteURL, c); err != nil {
			return nil, err
		}
		if err := cs.Close(); err != nil {
			return nil, fmt.Errorf("finalize changeset: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart: %w", err)
	}
	return buf.Bytes(), nil
}

func httpPartHeader() textproto.MIMEHeader {
	return textproto.MIMEHeader{
		"Content-Type":              {"application/http"},
		"Content-Transfer-Encoding": {"binary"},
	}
}

func writeRESTRequest(w io.Writer, siteURL string, c domain.Call) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", c.Verb(), joinURL(siteURL, c.Endpoint()))
	b.WriteString("Accept: " + restJSON + "\r\n")
	body := c.Body()
	if len(body) > 0 {
		b.WriteString("Content-Type: " + restJSON + "\r\n")
		fmt.Fprintf(&b, "Content-Length: %d\r\n", len(body))
	}
	if c.Verb() != http.MethodGet && c.Verb() != http.MethodPost {
		b.WriteString("IF-MATCH: *\r\n")
	}
	b.WriteString("\r\n")
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return fmt.Errorf("write request body: %w", err)
		}
		if _, err := io.WriteString(w, "\r\n"); err != nil {
			return fmt.Errorf("write request body: %w", err)
		}
	}
	return nil
}

// decodeREST reads the individual responses out of a $batch response, in order.
// Changeset responses are flattened.
func decodeREST(contentType string, body io.Reader) ([]ports.Result, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("parse content type: %w", err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		return nil, fmt.Errorf("unexpected batch response content type %q", contentType)
	}
	return readRESTParts(multipart.NewReader(body, params["boundary"]))
}

func readRESTParts(mr *multipart.Reader) ([]ports.Result, error) {
	var results []ports.Result
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return results, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read part: %w", err)
		}

		mediaType, params, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if strings.HasPrefix(mediaType, "multipart/") {
			nested, err := readRESTParts(multipart.NewReader(part, params["boundary"]))
			if err != nil {
				return nil, err
			}
			results = append(results, nested...)
			continue
		}

		resp, err := http.ReadResponse(bufio.NewReader(part), nil)
		if err != nil {
			return nil, fmt.Errorf("read response part: %w", err)
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		data = bytes.TrimRight(data, "\r\n")
		if len(data) == 0 {
			data = nil
		}
		results = append(results, ports.Result{Status: resp.StatusCode, Body: data})
	}
}

func joinURL(base, endpoint string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(endpoint, "/")
}
