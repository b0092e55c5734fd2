// Package privacy reduces client addresses before they reach logs.
package privacy

import (
	"net/netip"
)

// AnonymizeIP masks IPv4 to /24 and IPv6 to /48.
// Returns "unknown" for empty input and "invalid" for unparsable input.
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "invalid"
	}
	addr = addr.Unmap()
	bits := 48
	if addr.Is4() {
		bits = 24
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return "invalid"
	}
	return prefix.Addr().String()
}
