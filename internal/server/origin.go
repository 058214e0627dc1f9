// Package server decides which browser origins may open chat connections.
package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const anyOrigin = "*"

// originPolicy is the compiled form of Config.AllowedOrigins.
type originPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
}

// newOriginPolicy compiles the configured origins. It also returns the
// entries it kept in canonical form; anything that is not scheme://host or
// "*" is dropped with a warning.
func newOriginPolicy(origins []string) (originPolicy, []string) {
	policy := originPolicy{allowed: make(map[string]struct{}, len(origins))}
	kept := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		switch {
		case trimmed == "":
			continue
		case trimmed == anyOrigin:
			if !policy.allowAll {
				kept = append(kept, anyOrigin)
			}
			policy.allowAll = true
			continue
		}

		canonical, ok := canonicalOrigin(trimmed)
		if !ok {
			slog.Warn("ignoring invalid origin in configuration", "origin", origin)
			continue
		}
		if _, dup := policy.allowed[canonical]; dup {
			continue
		}
		policy.allowed[canonical] = struct{}{}
		kept = append(kept, canonical)
	}

	return policy, kept
}

// canonicalOrigin lower-cases scheme and host and drops any path.
func canonicalOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// allows reports whether a request carrying the Origin header value origin
// may connect. Requests without an Origin are refused.
func (p originPolicy) allows(origin string) bool {
	if origin == "" {
		return false
	}
	canonical, ok := canonicalOrigin(origin)
	if !ok {
		return false
	}
	if p.allowAll {
		return true
	}
	_, ok = p.allowed[canonical]
	return ok
}

// checkOrigin is the upgrader's origin check against the active policy.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if currentOriginPolicy().allows(origin) {
		return true
	}

	slog.Warn("blocked websocket connection from disallowed origin",
		"origin", origin,
		"remote_addr", r.RemoteAddr)
	return false
}
