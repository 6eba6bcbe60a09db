package pipeline

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
)

// Rejection details of the authenticator.
const (
	MissingTokenMessage = "Bearer token not provided"
	InvalidTokenMessage = "Invalid token"
)

// Authenticator lets private, loopback and allow-listed addresses through and
// requires the shared bearer secret from everyone else.
type Authenticator struct {
	secret  []byte
	allowed []netip.Prefix
	log     *slog.Logger
}

// NewAuthenticator parses allowList entries as single addresses or CIDRs.
// With an empty secret only trusted addresses are accepted.
func NewAuthenticator(secret string, allowList []string, log *slog.Logger) (*Authenticator, error) {
	a := &Authenticator{secret: []byte(secret), log: log}
	for _, entry := range allowList {
		prefix, err := parseAllowed(entry)
		if err != nil {
			return nil, err
		}
		a.allowed = append(a.allowed, prefix)
	}
	if secret == "" {
		log.Warn("no bearer secret configured, only trusted addresses will be accepted")
	}
	return a, nil
}

func parseAllowed(entry string) (netip.Prefix, error) {
	if strings.Contains(entry, "/") {
		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("parse allowed network %q: %w", entry, err)
		}
		return prefix.Masked(), nil
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("parse allowed address %q: %w", entry, err)
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func (a *Authenticator) Name() string { return "authenticator" }

func (a *Authenticator) Enter(_ http.ResponseWriter, r *http.Request, rc *RequestContext) (*Reply, error) {
	if a.trusted(rc.ClientIP) {
		rc.Authenticated = true
		return nil, nil
	}

	header := r.Header.Get("Authorization")
	if len(header) < len("bearer ") || !strings.EqualFold(header[:len("bearer ")], "bearer ") {
		return Detail(http.StatusUnauthorized, MissingTokenMessage), nil
	}
	token := strings.TrimSpace(header[len("bearer "):])
	if token == "" {
		return Detail(http.StatusUnauthorized, MissingTokenMessage), nil
	}

	if len(a.secret) == 0 || subtle.ConstantTimeCompare([]byte(token), a.secret) != 1 {
		a.log.Info("rejected bearer token", slog.String("client_ip", rc.ClientIP))
		return Detail(http.StatusForbidden, InvalidTokenMessage), nil
	}

	rc.Authenticated = true
	return nil, nil
}

func (a *Authenticator) trusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsPrivate() {
		return true
	}
	for _, prefix := range a.allowed {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
