package observability

import (
	"net"
	"net/http"
	"strings"
)

// Client identifies where a request came from, for event payloads.
type Client struct {
	DeviceID  string
	IP        string
	RequestID string
	UserAgent string
}

// ClientFromRequest collects the client fields of r.
func ClientFromRequest(r *http.Request) Client {
	return Client{
		DeviceID:  r.Header.Get("X-Device-Id"),
		IP:        IPFromRequest(r),
		RequestID: r.Header.Get("X-Request-Id"),
		UserAgent: r.UserAgent(),
	}
}

// IPFromRequest prefers the first X-Forwarded-For hop over RemoteAddr.
func IPFromRequest(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
