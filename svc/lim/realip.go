package lim

import (
	"net"
	"net/http"
	"strings"
)

// GetRealIP resolves the client network address, honoring X-Forwarded-For
// only when the direct peer is a trusted proxy. The header is walked right
// to left; the first hop that is not itself a trusted proxy wins.
func GetRealIP(r *http.Request, trustedProxies []string) string {
	remoteIP := stripPort(r.RemoteAddr)
	if len(trustedProxies) == 0 || !isTrustedProxy(remoteIP, trustedProxies) {
		return remoteIP
	}
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return remoteIP
	}
	hops := strings.Split(xff, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		ip := strings.TrimSpace(hops[i])
		if ip == "" || net.ParseIP(ip) == nil {
			continue
		}
		if !isTrustedProxy(ip, trustedProxies) {
			return ip
		}
	}
	return remoteIP
}

func isTrustedProxy(ip string, trustedProxies []string) bool {
	parsed := net.ParseIP(ip)
	for _, proxy := range trustedProxies {
		if ip == proxy {
			return true
		}
		if strings.Contains(proxy, "/") {
			if _, subnet, err := net.ParseCIDR(proxy); err == nil && parsed != nil && subnet.Contains(parsed) {
				return true
			}
		}
	}
	return false
}

func stripPort(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
