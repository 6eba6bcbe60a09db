package pipeline

import (
	"errors"
	"log/slog"
	"net/http"
)

// InternalErrorMessage is the only text a client sees for unexpected failures.
const InternalErrorMessage = "Internal server error"

// Guard turns any pending failure into a generic 500. It belongs first in
// the stage list.
type Guard struct {
	log *slog.Logger
}

// NewGuard creates the exception guard.
func NewGuard(log *slog.Logger) *Guard {
	return &Guard{log: log}
}

func (g *Guard) Name() string { return "exception_guard" }

func (g *Guard) Enter(http.ResponseWriter, *http.Request, *RequestContext) (*Reply, error) {
	return nil, nil
}

// Leave logs the full error and replies 500 if the response is still open.
func (g *Guard) Leave(w http.ResponseWriter, r *http.Request, rc *RequestContext) {
	if rc.Err == nil {
		return
	}

	attrs := []any{
		slog.Any("err", rc.Err),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("client_ip", rc.ClientIP),
		slog.String("request_id", rc.RequestID),
	}
	var pe *PanicError
	if errors.As(rc.Err, &pe) {
		attrs = append(attrs, slog.String("stack", string(pe.Stack)))
	}
	g.log.Error("unhandled error processing request", attrs...)

	if !rc.Written() {
		writeReply(w, Detail(http.StatusInternalServerError, InternalErrorMessage))
	}
	rc.Err = nil
}
