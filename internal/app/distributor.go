package app

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bft-labs/spbatch/internal/domain"
	"github.com/bft-labs/spbatch/internal/ports"
)

// distributor maps transport results back onto records and owners.
type distributor struct {
	logger ports.Logger
}

// distribute settles every record of sb. It returns the whole-sub-batch error, if any.
// Owners are only called for records that completed.
func (d *distributor) distribute(sb SubBatch, results []ports.Result, sendErr error) error {
	if sendErr == nil && len(results) != len(sb.Wire) {
		sendErr = fmt.Errorf("%w: got %d, want %d", domain.ErrResultMismatch, len(results), len(sb.Wire))
	}
	if sendErr != nil {
		te := &domain.TransportError{Protocol: sb.Protocol, SubBatch: sb.Index, Cause: sendErr}
		for _, rec := range sb.Records {
			if err := rec.Fail(0, te); err != nil {
				d.logger.Error("failed to settle record", ports.Err(err), ports.Int("order", rec.Order()))
			}
		}
		return te
	}

	for i, rec := range sb.Records {
		d.settle(sb.Protocol, rec, results[sb.Slots[i]])
	}
	return nil
}

func (d *distributor) settle(protocol domain.Protocol, rec *domain.Record, res ports.Result) {
	if res.Err != nil || res.Status >= http.StatusBadRequest {
		failure := res.Err
		if failure == nil {
			failure = parseRequestError(res.Status, res.Body)
		}
		if err := rec.Fail(res.Status, failure); err != nil {
			d.logger.Error("failed to settle record", ports.Err(err), ports.Int("order", rec.Order()))
			return
		}
		d.logger.Debug("request failed",
			ports.Int("order", rec.Order()),
			ports.Int("status", res.Status),
			ports.Err(failure),
		)
		return
	}

	if err := rec.Complete(res.Status, res.Body); err != nil {
		d.logger.Error("failed to settle record", ports.Err(err), ports.Int("order", rec.Order()))
		return
	}

	resp := domain.Response{Protocol: protocol, Verb: rec.Resolved().Verb(), Status: res.Status, Body: rec.Result()}
	for _, owner := range rec.Owners() {
		if err := owner.ApplyResponse(resp); err != nil {
			rec.AddApplyError(err)
			d.logger.Warn("owner rejected response",
				ports.Int("order", rec.Order()),
				ports.Err(err),
			)
		}
	}
}

// errorBody covers both error envelopes:
// REST {"error":{"code":"..","message":{"value":".."}}} and
// Graph {"error":{"code":"..","message":".."}}.
type errorBody struct {
	Error struct {
		Code    string          `json:"code"`
		Message json.RawMessage `json:"message"`
	} `json:"error"`
	ODataError *struct {
		Code    string          `json:"code"`
		Message json.RawMessage `json:"message"`
	} `json:"odata.error"`
}

func parseRequestError(status int, body []byte) *domain.RequestError {
	re := &domain.RequestError{Status: status}
	var eb errorBody
	if len(body) == 0 || json.Unmarshal(body, &eb) != nil {
		re.Message = http.StatusText(status)
		return re
	}
	code, msg := eb.Error.Code, eb.Error.Message
	if eb.ODataError != nil {
		code, msg = eb.ODataError.Code, eb.ODataError.Message
	}
	re.Code = code
	re.Message = messageText(msg)
	if re.Message == "" {
		re.Message = http.StatusText(status)
	}
	return re
}

func messageText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var v struct {
		Value string `json:"value"`
	}
	if json.Unmarshal(raw, &v) == nil {
		return v.Value
	}
	return ""
}
