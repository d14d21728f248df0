package dbus

import (
	"net"
)

// Dial opens a stream connection for the given D-Bus server address
// string, per spec.md §4.3/§4.4. Only the "unix" and "tcp" transports are
// supported (spec.md §1 Non-goals).
//
// Unlike the teacher's transport.go, key/value unescaping goes through
// ParseAddress's percentUnescape rather than net/url.QueryUnescape -- see
// DESIGN.md "Fixed from teacher".
func Dial(address string) (net.Conn, error) {
	sa, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	switch sa.Transport {
	case "unix":
		return net.Dial("unix", sa.Path)
	case "tcp":
		return net.Dial("tcp", net.JoinHostPort(sa.Host, sa.Port))
	default:
		return nil, &AddressError{Kind: UnknownTransport, Detail: sa.Transport}
	}
}
