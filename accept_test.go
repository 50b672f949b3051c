package torero

import (
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// scriptedListener returns the queued results from Accept in order, then
// net.ErrClosed.
type scriptedListener struct {
	mu      sync.Mutex
	results []interface{} // net.Conn or error
	calls   []time.Time
}

func (l *scriptedListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, time.Now())
	if len(l.results) == 0 {
		return nil, net.ErrClosed
	}
	r := l.results[0]
	l.results = l.results[1:]
	if err, ok := r.(error); ok {
		return nil, err
	}
	return r.(net.Conn), nil
}

func (l *scriptedListener) Close() error   { return nil }
func (l *scriptedListener) Addr() net.Addr { return &net.TCPAddr{IP: net.IPv4zero} }

func TestAcceptLoopRetriesThenStops(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	emfile := errors.New("accept: too many open files")
	l := &scriptedListener{results: []interface{}{
		emfile,
		timeoutError{},
		emfile,
		emfile,
		server,
	}}
	s := &Server{log: log.New(io.Discard, "", 0)}
	s.pool = NewPool(NewQueue[net.Conn](1), ConnHandlerFunc(func(net.Conn) error { return nil }), 1, nil)
	s.pool.Start()

	done := make(chan struct{})
	go s.acceptLoop(l, done)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("accept loop did not return on a closed listener")
	}

	l.mu.Lock()
	calls := l.calls
	l.mu.Unlock()
	require.Len(t, calls, 6, "every scripted result plus the closing error")
	// three failures back off 5ms, 10ms, 20ms; the timeout does not
	assert.GreaterOrEqual(t, calls[5].Sub(calls[0]), 35*time.Millisecond)
	assert.Less(t, calls[2].Sub(calls[1]), 5*time.Millisecond, "timeouts are retried at once")

	require.True(t, s.pool.Drain(5*time.Second))
	assert.EqualValues(t, 1, s.pool.counters.Uint64(countTotal))
}
