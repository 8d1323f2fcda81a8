package observability

import (
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// ClientMeta identifies the device and network origin of a websocket
// handshake. It is captured once and reported on every lifecycle event of
// the connection.
type ClientMeta struct {
	DeviceID  string
	IP        string
	RequestID string
	UserAgent string
}

// ClientMetaFromRequest reads client metadata from the handshake request.
// A request without X-Request-Id gets a fresh id so the connect and
// disconnect events of one connection can be correlated.
func ClientMetaFromRequest(r *http.Request) ClientMeta {
	requestID := r.Header.Get("X-Request-Id")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return ClientMeta{
		DeviceID:  r.Header.Get("X-Device-Id"),
		IP:        clientIP(r),
		RequestID: requestID,
		UserAgent: r.UserAgent(),
	}
}

func clientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-Ip")); ip != "" {
		return ip
	}
	for _, hop := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
		if hop = strings.TrimSpace(hop); hop != "" {
			return hop
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
