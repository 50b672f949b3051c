//go:build unix

package torero

import (
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListen(t *testing.T) {
	l, err := Listen(0, 10)
	require.NoError(t, err)
	defer l.Close()

	addr, ok := l.Addr().(*net.TCPAddr)
	require.True(t, ok, "not a TCP listener: %T", l.Addr())
	require.NotZero(t, addr.Port)

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := l.Accept()
		if err == nil {
			accepted <- conn
		}
		close(accepted)
	}()
	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", addr.Port))
	require.NoError(t, err)
	defer conn.Close()
	server, ok := <-accepted
	require.True(t, ok, "accept failed")
	server.Close()

	// the port is taken while l is open
	_, err = Listen(addr.Port, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bind")
}
