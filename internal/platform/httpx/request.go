package httpx

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the address a request came from. With trustedHops == 0 it is the peer address
// and X-Forwarded-For is ignored. Otherwise it is the X-Forwarded-For entry trustedHops in from
// the right, the one written by the outermost trusted proxy. A header too short for the hop
// count, or an entry that is not an IP, falls back to the peer.
func ClientIP(r *http.Request, trustedHops int) string {
	if r == nil {
		return ""
	}
	if trustedHops > 0 {
		if ip := forwardedHop(r.Header.Values("X-Forwarded-For"), trustedHops); ip != "" {
			return ip
		}
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func forwardedHop(headers []string, hops int) string {
	var hopsSeen []string
	for _, header := range headers {
		for _, part := range strings.Split(header, ",") {
			hopsSeen = append(hopsSeen, strings.TrimSpace(part))
		}
	}
	if hops > len(hopsSeen) {
		return ""
	}
	candidate := hopsSeen[len(hopsSeen)-hops]
	if net.ParseIP(candidate) == nil {
		return ""
	}
	return candidate
}
