// Package server normalizes and validates HTTP origins for WebSocket requests
// to enforce configured access control.
package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// originPolicy is the normalized set of origins allowed to open WebSockets.
type originPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
	log      *slog.Logger
}

func newOriginPolicy(origins []string, log *slog.Logger) *originPolicy {
	policy := &originPolicy{
		allowed: make(map[string]struct{}, len(origins)),
		log:     log,
	}

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}

		if trimmed == "*" {
			policy.allowAll = true
			continue
		}

		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			log.Warn("Ignoring invalid origin in configuration", "origin", origin)
			continue
		}
		policy.allowed[normalized] = struct{}{}
	}

	return policy
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}

	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

func (p *originPolicy) isAllowed(r *http.Request) bool {
	originHeader := r.Header.Get("Origin")
	if originHeader == "" {
		return false
	}

	normalized, ok := normalizeOrigin(originHeader)
	if !ok {
		return false
	}

	if p.allowAll {
		return true
	}

	_, exists := p.allowed[normalized]
	return exists
}

func (p *originPolicy) checkOrigin(r *http.Request) bool {
	if p.isAllowed(r) {
		return true
	}

	p.log.Warn("Blocked WebSocket connection from disallowed origin", "origin", r.Header.Get("Origin"))
	return false
}
