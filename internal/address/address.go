// Package address canonicalizes operator- or node-supplied endpoints into
// scheme-qualified websocket and HTTP forms.
package address

import (
	"net/url"
	"strings"
)

var schemes = []string{"wss://", "ws://", "https://", "http://"}

// Normalizer rewrites endpoints. Secure selects wss/https for addresses that
// arrive without a scheme, mirroring a client served over TLS.
type Normalizer struct {
	Secure bool
}

// splitScheme returns the lower-cased scheme prefix (or "") and the remainder.
func splitScheme(addr string) (string, string) {
	addr = strings.TrimSpace(addr)
	lower := strings.ToLower(addr)
	for _, s := range schemes {
		if strings.HasPrefix(lower, s) {
			return s, addr[len(s):]
		}
	}
	return "", addr
}

// ToWebSocket returns addr with a ws:// or wss:// scheme. An explicit http(s)
// scheme keeps its security level.
func (n Normalizer) ToWebSocket(addr string) string {
	scheme, rest := splitScheme(addr)
	switch scheme {
	case "wss://", "https://":
		return "wss://" + rest
	case "ws://", "http://":
		return "ws://" + rest
	}
	if n.Secure {
		return "wss://" + rest
	}
	return "ws://" + rest
}

// ToHTTP returns addr with an http:// or https:// scheme.
func (n Normalizer) ToHTTP(addr string) string {
	scheme, rest := splitScheme(addr)
	switch scheme {
	case "wss://", "https://":
		return "https://" + rest
	case "ws://", "http://":
		return "http://" + rest
	}
	if n.Secure {
		return "https://" + rest
	}
	return "http://" + rest
}

// Canonical is the registry key for a peer: its websocket form with any path,
// query or trailing slash removed, so "localhost:8000", "ws://localhost:8000/"
// and "http://localhost:8000/status" all map to "ws://localhost:8000".
func (n Normalizer) Canonical(addr string) string {
	ws := n.ToWebSocket(addr)
	u, err := url.Parse(ws)
	if err != nil || u.Host == "" {
		return strings.TrimRight(ws, "/")
	}
	return u.Scheme + "://" + strings.ToLower(u.Host)
}

// Endpoint joins a canonical peer address and a path such as "/status".
func Endpoint(base, path string) string {
	if path == "" {
		return base
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimRight(base, "/") + path
}
