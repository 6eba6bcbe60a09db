package elasticsearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrTransport matches every failure that happened below the query layer:
// network errors, timeouts and gateway/unavailable statuses.
var ErrTransport = errors.New("elasticsearch transport failure")

// TransportError is a retryable failure. errors.Is(err, ErrTransport) holds.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: elasticsearch unavailable (%d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// QueryError is an application-level rejection (malformed query, missing
// index, auth). It is never retried.
type QueryError struct {
	Status int
	Type   string
	Reason string
}

func (e *QueryError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("search failed (%d %s): %s", e.Status, e.Type, e.Reason)
	}
	return fmt.Sprintf("search failed (%d): %s", e.Status, e.Reason)
}

func newQueryError(status int, body []byte) *QueryError {
	var parsed struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	qe := &QueryError{Status: status}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Type != "" {
		qe.Type = parsed.Error.Type
		qe.Reason = parsed.Error.Reason
		return qe
	}
	qe.Reason = strings.TrimSpace(string(body))
	return qe
}

func transientStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrTransport)
}
