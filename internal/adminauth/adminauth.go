// Package adminauth gates privileged write operations (runtime config
// overrides, CLI write subcommands) the way original_source's
// backend/app/core/admin_auth.py gates the admin HTTP surface: a bearer
// token compared in constant time, plus an optional IP/CIDR allowlist.
// The HTTP surface itself is out of scope for this core, but the same
// actor/token/allowlist invariants apply to any caller, CLI included.
package adminauth

import (
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"
)

// Sentinel errors distinguish the admin_auth.py response codes (404/503/
// 403/401) for callers that want to map them onto CLI exit codes.
var (
	// ErrAdminDisabled mirrors admin_auth.py's 404 when ADMIN_ENABLED is false.
	ErrAdminDisabled = errors.New("adminauth: admin surface is disabled")
	// ErrNotConfigured mirrors the 503 when no token is configured server-side.
	ErrNotConfigured = errors.New("adminauth: no admin token configured")
	// ErrIPNotAllowed mirrors the 403 for a caller outside the allowlist.
	ErrIPNotAllowed = errors.New("adminauth: caller IP not in allowlist")
	// ErrTokenMismatch mirrors the 401 for a wrong or missing token.
	ErrTokenMismatch = errors.New("adminauth: token mismatch")
)

const defaultActorID = "admin"

// maxActorIDLen truncates the x-admin-user equivalent, matching
// admin_auth.py's 120-character cap.
const maxActorIDLen = 120

// Actor identifies the authenticated admin caller (admin_auth.py's
// AdminActor dataclass).
type Actor struct {
	ActorID  string
	ClientIP string
}

// Config holds the admin surface's runtime settings, normally sourced
// from ADMIN_ENABLED / ADMIN_API_TOKEN / ADMIN_IP_ALLOWLIST.
type Config struct {
	Enabled    bool
	Token      string
	Allowlist  []string // exact IPs or CIDR blocks, comma-separated in env form
	WriteEnabled bool   // ADMIN_WRITE_ENABLED: distinct from read-only admin access
}

// ParseAllowlist splits a comma-separated ADMIN_IP_ALLOWLIST value into
// individual entries, trimming whitespace and dropping empties.
func ParseAllowlist(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ipAllowed reports whether clientIP matches an entry in allowlist, either
// by exact string match (admin_auth.py's original behavior) or by CIDR
// containment when an entry parses as a network (our extension, per spec
// "CIDR/IP allowlist"). An empty allowlist allows everything, matching
// admin_auth.py's default of no restriction when ADMIN_IP_ALLOWLIST is unset.
func ipAllowed(clientIP string, allowlist []string) bool {
	if len(allowlist) == 0 {
		return true
	}
	ip := net.ParseIP(clientIP)
	for _, entry := range allowlist {
		if entry == clientIP {
			return true
		}
		if ip == nil {
			continue
		}
		if _, network, err := net.ParseCIDR(entry); err == nil && network.Contains(ip) {
			return true
		}
	}
	return false
}

// extractToken mirrors admin_auth.py's _extract_token: prefer an
// "Authorization: Bearer <token>" header, falling back to x-admin-token.
func extractToken(header http.Header) string {
	if auth := header.Get("Authorization"); auth != "" {
		if tok, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return tok
		}
	}
	return header.Get("x-admin-token")
}

// truncateActorID caps the actor id the way admin_auth.py truncates
// x-admin-user to 120 characters.
func truncateActorID(raw string) string {
	if raw == "" {
		return defaultActorID
	}
	if len(raw) > maxActorIDLen {
		return raw[:maxActorIDLen]
	}
	return raw
}

// Authenticate reproduces admin_auth.py's require_admin_auth precedence:
// disabled surface first, then missing server-side token, then IP
// allowlist, then constant-time token comparison.
func Authenticate(cfg Config, header http.Header, clientIP string) (Actor, error) {
	if !cfg.Enabled {
		return Actor{}, ErrAdminDisabled
	}
	if cfg.Token == "" {
		return Actor{}, ErrNotConfigured
	}
	if !ipAllowed(clientIP, cfg.Allowlist) {
		return Actor{}, ErrIPNotAllowed
	}

	supplied := extractToken(header)
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(cfg.Token)) != 1 {
		return Actor{}, ErrTokenMismatch
	}

	return Actor{
		ActorID:  truncateActorID(header.Get("x-admin-user")),
		ClientIP: clientIP,
	}, nil
}

// ValidateForEnvironment enforces the deployment-level constraint that a
// production admin surface must carry a non-empty IP allowlist — an open
// production admin endpoint is a misconfiguration, not a default.
func ValidateForEnvironment(cfg Config, environment string) error {
	if !cfg.Enabled {
		return nil
	}
	if environment == "production" && len(cfg.Allowlist) == 0 {
		return errors.New("adminauth: production requires a non-empty ADMIN_IP_ALLOWLIST")
	}
	return nil
}

// RequireWriteEnabled gates a mutating admin operation on ADMIN_WRITE_ENABLED,
// a distinct flag from read access so audit review and read-only diagnostics
// can run even when writes are frozen.
func RequireWriteEnabled(cfg Config) error {
	if !cfg.WriteEnabled {
		return errors.New("adminauth: admin writes are disabled (ADMIN_WRITE_ENABLED=false)")
	}
	return nil
}
