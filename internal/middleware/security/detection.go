// Package security resolves client addresses behind proxies, flags probing
// traffic and sets browser hardening headers.
package security

import (
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	applog "expensetracker/internal/log"
)

type DetectionMetrics struct {
	SuspiciousRequests int64
	InvalidIPAttempts  int64
}

// Detector never blocks; it only reports.
type Detector struct {
	suspicious atomic.Int64
	invalidIP  atomic.Int64

	mu      sync.RWMutex
	trusted []netip.Prefix
}

// rule is one heuristic for probing traffic.
type rule struct {
	name  string
	match func(r *http.Request) bool
}

var (
	probeFragments = []string{
		"../", "..\\", ".env", "wp-admin", "phpmyadmin",
		"admin.php", "config.php", ".git", ".ssh",
		"eval(", "javascript:", "<script", "union select",
		"etc/passwd", "cmd.exe",
	}
	scannerAgents = []string{"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan", "zgrab"}

	rules = []rule{
		{"probe_path", func(r *http.Request) bool { return containsAny(r.URL.Path, probeFragments) }},
		{"probe_query", func(r *http.Request) bool {
			q, err := url.QueryUnescape(r.URL.RawQuery)
			if err != nil {
				q = r.URL.RawQuery
			}
			return containsAny(q, probeFragments)
		}},
		{"scanner_agent", func(r *http.Request) bool { return containsAny(r.UserAgent(), scannerAgents) }},
		{"unusual_method", func(r *http.Request) bool {
			switch r.Method {
			case "TRACE", "TRACK", "DEBUG", "CONNECT":
				return true
			}
			return false
		}},
		{"long_url", func(r *http.Request) bool { return len(r.URL.String()) > 2048 }},
		{"proxy_chain", func(r *http.Request) bool { return strings.Count(r.Header.Get("X-Forwarded-For"), ",") > 5 }},
	}
)

// NewDetector trusts loopback and private networks to set forwarding headers.
func NewDetector() *Detector {
	d := &Detector{}
	for _, cidr := range []string{"127.0.0.0/8", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "::1/128"} {
		d.trusted = append(d.trusted, netip.MustParsePrefix(cidr))
	}
	return d
}

// AddTrustedProxy trusts one more proxy network.
func (d *Detector) AddTrustedProxy(cidr string) error {
	p, err := netip.ParsePrefix(cidr)
	if err != nil {
		return fmt.Errorf("invalid CIDR %s: %w", cidr, err)
	}
	d.mu.Lock()
	d.trusted = append(d.trusted, p.Masked())
	d.mu.Unlock()
	return nil
}

// Inspect returns the first rule r trips, if any.
func (d *Detector) Inspect(r *http.Request) (string, bool) {
	for _, ru := range rules {
		if ru.match(r) {
			d.suspicious.Add(1)
			return ru.name, true
		}
	}
	return "", false
}

func (d *Detector) DetectSuspiciousRequest(r *http.Request) bool {
	_, hit := d.Inspect(r)
	return hit
}

func containsAny(s string, fragments []string) bool {
	s = strings.ToLower(s)
	for _, f := range fragments {
		if strings.Contains(s, f) {
			return true
		}
	}
	return false
}

// ExtractClientIP returns the peer address unless the peer is a trusted
// proxy. Behind a proxy, X-Forwarded-For is walked right to left past trusted
// hops; X-Real-IP is the fallback when no forwarded chain is present.
func (d *Detector) ExtractClientIP(r *http.Request) string {
	peer, err := netip.ParseAddrPort(r.RemoteAddr)
	var addr netip.Addr
	if err == nil {
		addr = peer.Addr()
	} else if addr, err = netip.ParseAddr(r.RemoteAddr); err != nil {
		d.invalidIP.Add(1)
		return r.RemoteAddr
	}
	direct := addr.Unmap().String()
	if !d.isTrusted(addr) {
		return direct
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				d.invalidIP.Add(1)
				return direct
			}
			if i == 0 || !d.isTrusted(hop) {
				return hop.Unmap().String()
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if ip, err := netip.ParseAddr(xri); err == nil {
			return ip.Unmap().String()
		}
		d.invalidIP.Add(1)
	}
	return direct
}

func (d *Detector) isTrusted(addr netip.Addr) bool {
	addr = addr.Unmap()
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, p := range d.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func (d *Detector) GetMetrics() DetectionMetrics {
	return DetectionMetrics{
		SuspiciousRequests: d.suspicious.Load(),
		InvalidIPAttempts:  d.invalidIP.Load(),
	}
}

// Middleware logs suspicious requests at Warn with the rule that fired.
func (d *Detector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if name, hit := d.Inspect(r); hit {
			fields := applog.NewFields().
				WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent(), "").
				WithClientIP(d.ExtractClientIP(r))
			applog.FromContext(r.Context()).
				WithComponent(applog.ComponentSecurity).
				WarnContext(r.Context(), "Suspicious request detected", append(fields.ToSlice(), "rule", name)...)
		}
		next.ServeHTTP(w, r)
	})
}
