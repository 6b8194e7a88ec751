package daemon

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"

	"photostore/internal/config"
)

// ValidateListenAddress normalizes addr and refuses hosts outside loopback
// unless allowRemote is set. The port must be numeric; 0 picks a free one.
func ValidateListenAddress(addr string, allowRemote bool) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		addr = config.DefaultServerAddr
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	n, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return "", fmt.Errorf("invalid listen port %q in %q", port, addr)
	}
	addr = net.JoinHostPort(host, strconv.FormatUint(n, 10))

	if allowRemote || isLoopbackHost(host) {
		return addr, nil
	}
	return "", fmt.Errorf("listen address %q is not loopback; pass --allow-remote to permit remote listeners", addr)
}

// isLoopbackHost accepts "localhost" and loopback literals. Other names
// are not resolved, since they may point anywhere by the time we bind.
func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	return ip.Unmap().IsLoopback()
}
