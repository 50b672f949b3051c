//go:build unix

package torero

import (
	"fmt"
	"net"
	"os"
	"syscall"
)

// Listen creates an IPv4 stream socket with SO_REUSEADDR set, binds it to
// port on every local address and listens with the given backlog.
//
// The net package always asks for the system maximum backlog, so the
// socket is set up by hand and then given to net.FileListener.
func Listen(port, backlog int) (net.Listener, error) {
	fd, err := syscall.Socket(syscall.AF_INET, syscall.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("torero: creating socket failed: %w", os.NewSyscallError("socket", err))
	}
	syscall.CloseOnExec(fd)
	if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("torero: setting socket option failed: %w", os.NewSyscallError("setsockopt", err))
	}
	if err := syscall.Bind(fd, &syscall.SockaddrInet4{Port: port}); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("torero: error binding to port %d: %w", port, os.NewSyscallError("bind", err))
	}
	if err := syscall.Listen(fd, backlog); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("torero: error listening for connections: %w", os.NewSyscallError("listen", err))
	}

	f := os.NewFile(uintptr(fd), fmt.Sprintf("tcp:%d", port))
	defer f.Close() // FileListener holds its own dup
	l, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("torero: %w", err)
	}
	return l, nil
}
