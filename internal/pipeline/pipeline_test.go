package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/news-mcp/internal/audit"
)

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *recordingSink) Record(_ context.Context, ev audit.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) last(t *testing.T) audit.Event {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.events)
	return s.events[len(s.events)-1]
}

type countingHandler struct {
	calls int
}

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.calls++
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok")
}

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func decodeDetail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["detail"]
}

// traceStage records its Enter/Leave calls into a shared log.
type traceStage struct {
	name  string
	trace *[]string
	reply *Reply
	err   error
}

func (s *traceStage) Name() string { return s.name }

func (s *traceStage) Enter(http.ResponseWriter, *http.Request, *RequestContext) (*Reply, error) {
	*s.trace = append(*s.trace, "enter:"+s.name)
	return s.reply, s.err
}

func (s *traceStage) Leave(http.ResponseWriter, *http.Request, *RequestContext) {
	*s.trace = append(*s.trace, "leave:"+s.name)
}

func TestStagesRunInOrderAndUnwindInReverse(t *testing.T) {
	var trace []string
	h := &countingHandler{}
	p := New(h, discard(),
		&traceStage{name: "a", trace: &trace},
		&traceStage{name: "b", trace: &trace},
		&traceStage{name: "c", trace: &trace},
	)

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp-server", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, h.calls)
	require.Equal(t, []string{"enter:a", "enter:b", "enter:c", "leave:c", "leave:b", "leave:a"}, trace)
}

func TestShortCircuitSkipsInnerStagesButUnwindsOuterOnes(t *testing.T) {
	var trace []string
	h := &countingHandler{}
	p := New(h, discard(),
		&traceStage{name: "a", trace: &trace},
		&traceStage{name: "b", trace: &trace, reply: Detail(http.StatusTeapot, "short")},
		&traceStage{name: "c", trace: &trace},
	)

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusTeapot, rec.Code)
	require.Equal(t, "short", decodeDetail(t, rec))
	require.Zero(t, h.calls)
	require.Equal(t, []string{"enter:a", "enter:b", "leave:a"}, trace)
}

func TestHandlerPanicBecomesGenericError(t *testing.T) {
	var logs bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logs, nil))
	sink := &recordingSink{}

	handler := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("dial tcp 10.0.0.3:9200: password=hunter2")
	})
	p := New(handler, log, NewGuard(log), NewAudit(sink, log))

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, InternalErrorMessage, decodeDetail(t, rec))
	require.NotContains(t, rec.Body.String(), "hunter2")
	require.Contains(t, logs.String(), "hunter2")
	require.Equal(t, http.StatusInternalServerError, sink.last(t).Status)
}

func TestStageErrorIsGuarded(t *testing.T) {
	var trace []string
	sink := &recordingSink{}
	p := New(&countingHandler{}, discard(),
		NewGuard(discard()),
		NewAudit(sink, discard()),
		&traceStage{name: "broken", trace: &trace, err: errors.New("redis: connection refused")},
	)

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "redis")
	require.Equal(t, http.StatusInternalServerError, sink.last(t).Status)
	require.Equal(t, []string{"enter:broken"}, trace, "a failed stage is not unwound")
}

func TestRunnerAnswersWhenNoGuardIsConfigured(t *testing.T) {
	handler := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })
	p := New(handler, discard())

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, InternalErrorMessage, decodeDetail(t, rec))
}

func TestPanicAfterWriteKeepsStatus(t *testing.T) {
	sink := &recordingSink{}
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		panic("late")
	})
	p := New(handler, discard(), NewGuard(discard()), NewAudit(sink, discard()))

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, http.StatusAccepted, sink.last(t).Status)
}

func TestAuditParsesToolCallAndRestoresBody(t *testing.T) {
	sink := &recordingSink{}
	body := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"search_news","arguments":{"query":"AI"}}}`

	var seen string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		seen = string(data)
		w.WriteHeader(http.StatusOK)
	})
	p := New(handler, discard(), NewGuard(discard()), NewAudit(sink, discard()))

	req := httptest.NewRequest(http.MethodPost, "/mcp-server", strings.NewReader(body))
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	p.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, body, seen)
	ev := sink.last(t)
	require.Equal(t, "tools/call", ev.Method)
	require.Equal(t, "search_news", ev.Tool)
	require.Equal(t, "203.0.113.9", ev.ClientIP)
	require.Equal(t, http.StatusOK, ev.Status)
	require.JSONEq(t, `{"name":"search_news","arguments":{"query":"AI"}}`, string(ev.Params))
}

func TestAuditToleratesUnparsableBody(t *testing.T) {
	sink := &recordingSink{}
	var seen string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		seen = string(data)
		w.WriteHeader(http.StatusBadRequest)
	})
	p := New(handler, discard(), NewGuard(discard()), NewAudit(sink, discard()))

	p.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("not json")))

	require.Equal(t, "not json", seen)
	ev := sink.last(t)
	require.Empty(t, ev.Method)
	require.Empty(t, ev.Tool)
	require.Equal(t, http.StatusBadRequest, ev.Status)
}

func TestClientIPPrecedence(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	require.Equal(t, "192.0.2.1", ClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.7")
	require.Equal(t, "198.51.100.7", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	require.Equal(t, "203.0.113.5", ClientIP(req))
}

func TestRequestContextIsReachableFromHandler(t *testing.T) {
	var got *RequestContext
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	auth, err := NewAuthenticator("s3cret", nil, discard())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	New(handler, discard(), auth).ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, got)
	require.True(t, got.Authenticated)
	require.Equal(t, "127.0.0.1", got.ClientIP)
	require.Nil(t, FromContext(context.Background()))
}
