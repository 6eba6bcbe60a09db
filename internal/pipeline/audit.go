package pipeline

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/DeafMist/news-mcp/internal/audit"
)

const maxAuditBody = 1 << 20

// Audit extracts the JSON-RPC call from the request body and records one
// event per request once the response is known.
type Audit struct {
	sink audit.Sink
	log  *slog.Logger
}

// NewAudit creates the audit stage.
func NewAudit(sink audit.Sink, log *slog.Logger) *Audit {
	return &Audit{sink: sink, log: log}
}

func (a *Audit) Name() string { return "audit" }

// Enter peeks at POST bodies. The body is always restored for the handler and
// parse failures only drop the parsed fields.
func (a *Audit) Enter(_ http.ResponseWriter, r *http.Request, rc *RequestContext) (*Reply, error) {
	if r.Method != http.MethodPost || r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}

	head, err := io.ReadAll(io.LimitReader(r.Body, maxAuditBody))
	r.Body = &replayBody{Reader: io.MultiReader(bytes.NewReader(head), r.Body), closer: r.Body}
	if err != nil {
		a.log.Debug("audit could not read body", slog.Any("err", err))
		return nil, nil
	}

	var call struct {
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(head, &call); err != nil {
		a.log.Debug("audit could not parse body", slog.Any("err", err))
		return nil, nil
	}
	rc.Method = call.Method
	rc.Params = call.Params

	if call.Method == "tools/call" && len(call.Params) > 0 {
		var params struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(call.Params, &params); err == nil {
			rc.Tool = params.Name
		}
	}
	return nil, nil
}

func (a *Audit) Leave(_ http.ResponseWriter, r *http.Request, rc *RequestContext) {
	a.sink.Record(r.Context(), audit.Event{
		RequestID:  rc.RequestID,
		ClientIP:   rc.ClientIP,
		Method:     rc.Method,
		Tool:       rc.Tool,
		Params:     rc.Params,
		Status:     rc.Status(),
		DurationMS: time.Since(rc.Start).Milliseconds(),
		Time:       rc.Start.UTC(),
	})
}

type replayBody struct {
	io.Reader
	closer io.Closer
}

func (b *replayBody) Close() error { return b.closer.Close() }
