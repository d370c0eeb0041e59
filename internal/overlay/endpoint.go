package overlay

import (
	"net"
	"strconv"
	"strings"

	"github.com/treeline-net/treeline/internal/protocol"
)

// listenSpec formats the TCP listen string for a configured ip/port pair.
// Port 0 asks the kernel for a free port; resolveSelf reads it back.
func listenSpec(ip string, port uint16) string {
	return net.JoinHostPort(strings.TrimSpace(ip), strconv.Itoa(int(port)))
}

// resolveSelf derives the node's canonical overlay address from the bound
// listener. A wildcard or non-IPv4 bind falls back to the configured IP,
// which peers must be able to dial.
func resolveSelf(bound net.Addr, cfgIP string) (protocol.Addr, error) {
	host, portText, err := net.SplitHostPort(bound.String())
	if err != nil {
		return protocol.Addr{}, err
	}
	if ip := net.ParseIP(host); ip == nil || ip.To4() == nil || ip.IsUnspecified() {
		host = strings.TrimSpace(cfgIP)
	}
	return protocol.ParseAddr(host, portText)
}
