// Package netx holds small address helpers shared by the transports.
package netx

import "net"

// Host strips the port from a host:port address. Addresses without a port
// are returned unchanged, so a value already reduced by a proxy header
// passes through.
func Host(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
