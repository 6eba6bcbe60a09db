// Package pipeline runs every tool request through an explicit, ordered list
// of stages before it reaches the MCP handler.
//
// Each stage may short-circuit with a Reply, fail with an error, or let the
// request continue. Stages that also implement Leaver are unwound in reverse
// order once the inner part of the pipeline has finished, whatever its
// outcome, so outer stages observe short-circuits and failures of inner ones.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// Reply is a terminal response produced by a stage.
type Reply struct {
	Status  int
	Headers map[string]string
	Body    any
}

// Detail builds the {"detail": msg} reply used for every pipeline rejection.
func Detail(status int, msg string) *Reply {
	return &Reply{Status: status, Body: map[string]string{"detail": msg}}
}

// Stage is one step of the pipeline.
type Stage interface {
	Name() string
	// Enter returns a non-nil Reply to stop the request, an error to fail
	// it, or neither to pass it on.
	Enter(w http.ResponseWriter, r *http.Request, rc *RequestContext) (*Reply, error)
}

// Leaver is implemented by stages that act after the inner stages and the
// handler have run. Leave is only called when the stage's Enter let the
// request continue.
type Leaver interface {
	Leave(w http.ResponseWriter, r *http.Request, rc *RequestContext)
}

// Pipeline is an http.Handler running stages around a handler.
type Pipeline struct {
	stages  []Stage
	handler http.Handler
	log     *slog.Logger
}

// New builds a pipeline. stages are given outermost first.
func New(handler http.Handler, log *slog.Logger, stages ...Stage) *Pipeline {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pipeline{stages: stages, handler: handler, log: log}
}

// ServeHTTP runs the request through the stages and the handler.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sw := &statusWriter{ResponseWriter: w}
	rc := &RequestContext{
		Start:     time.Now(),
		ClientIP:  ClientIP(r),
		RequestID: middleware.GetReqID(r.Context()),
		writer:    sw,
	}
	r = r.WithContext(WithRequestContext(r.Context(), rc))

	entered := 0
	for _, stage := range p.stages {
		reply, err := p.enter(stage, sw, r, rc)
		if err != nil {
			rc.Err = fmt.Errorf("%s: %w", stage.Name(), err)
			break
		}
		if reply != nil {
			writeReply(sw, reply)
			break
		}
		entered++
	}

	if entered == len(p.stages) {
		p.serve(sw, r, rc)
	}

	for i := entered - 1; i >= 0; i-- {
		if leaver, ok := p.stages[i].(Leaver); ok {
			p.leave(p.stages[i].Name(), leaver, sw, r, rc)
		}
	}

	// Nothing consumed the error: never leave the client without a response.
	if rc.Err != nil {
		p.log.Error("request failed without a guard",
			slog.Any("err", rc.Err),
			slog.String("path", r.URL.Path),
		)
		if !sw.Written() {
			writeReply(sw, Detail(http.StatusInternalServerError, InternalErrorMessage))
		}
	}
}

func (p *Pipeline) enter(stage Stage, w http.ResponseWriter, r *http.Request, rc *RequestContext) (reply *Reply, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Value: v, Stack: debug.Stack()}
		}
	}()
	return stage.Enter(w, r, rc)
}

func (p *Pipeline) serve(w http.ResponseWriter, r *http.Request, rc *RequestContext) {
	defer func() {
		if v := recover(); v != nil {
			if v == http.ErrAbortHandler {
				panic(v)
			}
			rc.Err = &PanicError{Value: v, Stack: debug.Stack()}
		}
	}()
	p.handler.ServeHTTP(w, r)
}

func (p *Pipeline) leave(name string, leaver Leaver, w http.ResponseWriter, r *http.Request, rc *RequestContext) {
	defer func() {
		if v := recover(); v != nil {
			err := fmt.Errorf("%s leave: %w", name, &PanicError{Value: v, Stack: debug.Stack()})
			if rc.Err == nil {
				rc.Err = err
				return
			}
			p.log.Error("stage panicked while unwinding", slog.Any("err", err))
		}
	}()
	leaver.Leave(w, r, rc)
}

// PanicError carries a recovered panic value.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// RequestContext is the per-request state shared by the stages.
type RequestContext struct {
	Start         time.Time
	ClientIP      string
	RequestID     string
	Authenticated bool

	// Rate limiter window key, set once the request was counted.
	WindowKey string

	SessionID string
	Session   map[string]any

	// JSON-RPC fields parsed by the audit stage.
	Method string
	Tool   string
	Params json.RawMessage

	// Err is the pending failure of an inner stage or the handler.
	Err error

	writer *statusWriter
}

// Written reports whether a response status has been sent.
func (rc *RequestContext) Written() bool {
	return rc.writer != nil && rc.writer.Written()
}

// Status is the response status as the client will see it: the written
// status, or 500 when an error is pending and nothing was written yet.
func (rc *RequestContext) Status() int {
	if rc.Written() {
		return rc.writer.status
	}
	if rc.Err != nil {
		return http.StatusInternalServerError
	}
	return http.StatusOK
}

type ctxKey struct{}

// WithRequestContext stores rc in ctx.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, rc)
}

// FromContext returns the request context stored by the pipeline, or nil.
func FromContext(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(ctxKey{}).(*RequestContext)
	return rc
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Written() bool {
	return w.status != 0
}

// Flush keeps streaming responses working through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		if w.status == 0 {
			w.status = http.StatusOK
		}
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func writeReply(w http.ResponseWriter, reply *Reply) {
	for k, v := range reply.Headers {
		w.Header().Set(k, v)
	}
	writeJSON(w, reply.Status, reply.Body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
