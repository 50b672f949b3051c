//go:build !unix

package torero

import (
	"fmt"
	"net"
)

// Listen binds port on every local IPv4 address. The backlog is left to
// the net package on this platform.
func Listen(port, backlog int) (net.Listener, error) {
	l, err := net.Listen("tcp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("torero: %w", err)
	}
	return l, nil
}
