package main

import (
	"fmt"
	"net"
	"net/http"

	"github.com/gorilla/handlers"
)

// trustedProxies applies forwarded client address headers only to requests
// whose peer is one of the trusted proxy networks. Requests from any other
// peer keep their connection address.
type trustedProxies struct {
	networks []*net.IPNet
}

func newTrustedProxies(cidrs []string) (*trustedProxies, error) {
	t := &trustedProxies{}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", cidr, err)
		}
		t.networks = append(t.networks, network)
	}
	return t, nil
}

func (t *trustedProxies) trusts(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, network := range t.networks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// Middleware rewrites RemoteAddr and scheme from proxy headers for trusted peers.
func (t *trustedProxies) Middleware(next http.Handler) http.Handler {
	proxied := handlers.ProxyHeaders(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if t.trusts(r.RemoteAddr) {
			proxied.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
