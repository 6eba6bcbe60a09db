package pipeline

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionStore persists session documents.
type SessionStore interface {
	LoadSession(ctx context.Context, id string) (map[string]any, error)
	SaveSession(ctx context.Context, id string, data map[string]any, ttl time.Duration) error
}

// Session keeps server-side session state keyed by a signed cookie. The
// cookie carries the id and its signing time; it is re-signed on every
// request so the lifetime slides.
type Session struct {
	store  SessionStore
	secret []byte
	cookie string
	maxAge time.Duration
	log    *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewSession creates the session stage.
func NewSession(store SessionStore, secret, cookie string, maxAge time.Duration, log *slog.Logger) *Session {
	return &Session{
		store:  store,
		secret: []byte(secret),
		cookie: cookie,
		maxAge: maxAge,
		log:    log,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

func (s *Session) Name() string { return "session" }

func (s *Session) Enter(w http.ResponseWriter, r *http.Request, rc *RequestContext) (*Reply, error) {
	now := s.now()

	id := ""
	if c, err := r.Cookie(s.cookie); err == nil {
		id = s.verify(c.Value, now)
	}
	if id == "" {
		id = s.newID()
	}

	data, err := s.store.LoadSession(r.Context(), id)
	if err != nil {
		s.log.Warn("load session, starting empty", slog.Any("err", err), slog.String("session_id", id))
		data = map[string]any{}
	}
	data["requests"] = requestCount(data["requests"]) + 1
	data["last_seen"] = now.UTC().Format(time.RFC3339)

	rc.SessionID = id
	rc.Session = data

	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie,
		Value:    s.sign(id, now),
		Path:     "/",
		MaxAge:   int(s.maxAge / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil, nil
}

// Leave writes the session back even when the request failed.
func (s *Session) Leave(_ http.ResponseWriter, r *http.Request, rc *RequestContext) {
	if rc.SessionID == "" {
		return
	}
	ctx := context.WithoutCancel(r.Context())
	if err := s.store.SaveSession(ctx, rc.SessionID, rc.Session, s.maxAge); err != nil {
		s.log.Warn("save session", slog.Any("err", err), slog.String("session_id", rc.SessionID))
	}
}

func (s *Session) sign(id string, at time.Time) string {
	payload := id + "." + strconv.FormatInt(at.Unix(), 10)
	return payload + "." + s.mac(payload)
}

// verify returns the session id of a valid, unexpired cookie value.
func (s *Session) verify(value string, now time.Time) string {
	idx := strings.LastIndex(value, ".")
	if idx <= 0 {
		return ""
	}
	payload, sig := value[:idx], value[idx+1:]
	if !hmac.Equal([]byte(sig), []byte(s.mac(payload))) {
		return ""
	}

	id, rawTS, ok := strings.Cut(payload, ".")
	if !ok || id == "" {
		return ""
	}
	ts, err := strconv.ParseInt(rawTS, 10, 64)
	if err != nil {
		return ""
	}
	if now.Sub(time.Unix(ts, 0)) > s.maxAge {
		return ""
	}
	return id
}

func (s *Session) mac(payload string) string {
	sum := hmac.New(sha256.New, s.secret)
	_, _ = sum.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(sum.Sum(nil))
}

func requestCount(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}
