package torero

import (
	"errors"
	"net"
	"time"
)

// acceptLoop takes connections off l one at a time and submits them to
// the pool. Submit blocks while the queue is full, which leaves further
// clients waiting in the kernel backlog.
//
// The loop returns when l is closed. done is closed on return.
func (s *Server) acceptLoop(l net.Listener, done chan struct{}) {
	defer close(done)
	var delay time.Duration // how long to sleep on accept failure
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.log.Printf("closed listener: %q", l.Addr().String())
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			// EMFILE and friends: back off instead of spinning
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay *= 2
			}
			if delay > time.Second {
				delay = time.Second
			}
			s.log.Printf("error accepting connection: %v; retrying in %v", err, delay)
			time.Sleep(delay)
			continue
		}
		delay = 0
		s.pool.Submit(conn)
	}
}
