package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// ipSet matches single addresses and CIDR ranges.
type ipSet struct {
	ips  map[string]bool
	nets []*net.IPNet
}

func parseIPSet(entries []string, logger zerolog.Logger, name string) ipSet {
	set := ipSet{ips: make(map[string]bool)}
	for _, entry := range entries {
		if !strings.Contains(entry, "/") {
			set.ips[entry] = true
			continue
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			logger.Warn().Str("entry", entry).Err(err).Msgf("invalid CIDR in %s", name)
			continue
		}
		set.nets = append(set.nets, ipNet)
	}
	return set
}

func (s ipSet) empty() bool {
	return len(s.ips) == 0 && len(s.nets) == 0
}

func (s ipSet) contains(ipStr string) bool {
	if s.ips[ipStr] {
		return true
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, ipNet := range s.nets {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// TrustedRealIP rewrites r.RemoteAddr from X-Forwarded-For or X-Real-IP,
// but only when the connection comes from one of the trusted proxies.
// X-Forwarded-For is walked from the right and the first hop that is not
// itself a trusted proxy wins. With no proxies configured the headers are
// ignored.
func TrustedRealIP(proxies []string, logger zerolog.Logger) func(http.Handler) http.Handler {
	trusted := parseIPSet(proxies, logger, "trusted proxies")
	return func(next http.Handler) http.Handler {
		if trusted.empty() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if trusted.contains(RealIP(r)) {
				if ip := forwardedFor(r, trusted); ip != "" {
					r.RemoteAddr = net.JoinHostPort(ip, "0")
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func forwardedFor(r *http.Request, trusted ipSet) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if net.ParseIP(hop) == nil {
				return ""
			}
			if i == 0 || !trusted.contains(hop) {
				return hop
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(ip) != nil {
		return ip
	}
	return ""
}
