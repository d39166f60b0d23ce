package lookuplog

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// RemoteAddr returns the client address, preferring the first hop of
// X-Forwarded-For over the connection address.
func RemoteAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Resolver does reverse DNS lookups.
type Resolver interface {
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// FQDN returns the reverse DNS name of addr, or addr itself when the lookup
// fails.
func FQDN(ctx context.Context, res Resolver, addr string) string {
	if addr == "" {
		return addr
	}
	names, err := res.LookupAddr(ctx, addr)
	if err != nil || len(names) == 0 {
		return addr
	}
	return strings.TrimSuffix(names[0], ".")
}
