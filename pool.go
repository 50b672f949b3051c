/*
* The MIT License (MIT)
*
* Copyright (c) 2016,2017,2020,2026  aerth <aerth@riseup.net>
*
* Permission is hereby granted, free of charge, to any person obtaining a copy
* of this software and associated documentation files (the "Software"), to deal
* in the Software without restriction, including without limitation the rights
* to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
* copies of the Software, and to permit persons to whom the Software is
* furnished to do so, subject to the following conditions:
*
* The above copyright notice and this permission notice shall be included in all
* copies or substantial portions of the Software.
*
* THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
* IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
* FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
* AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
* LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
* OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
* SOFTWARE.
 */

package torero

import (
	"fmt"
	"log"
	"net"
	"runtime/debug"
	"sync"
	"time"
)

// ConnHandler handles one accepted connection. It must not close conn,
// the worker that owns conn closes it after ServeConn returns.
type ConnHandler interface {
	ServeConn(conn net.Conn) error
}

// ConnHandlerFunc adapts a function to ConnHandler.
type ConnHandlerFunc func(conn net.Conn) error

// ServeConn calls f(conn).
func (f ConnHandlerFunc) ServeConn(conn net.Conn) error {
	return f(conn)
}

// Pool is a fixed set of long-lived workers pulling connections off a Queue.
//
// Workers are started once and run for the lifetime of the process. Each
// one takes a connection, hands it to the ConnHandler, closes it and goes
// back for the next. Workers share nothing but the queue.
type Pool struct {
	queue    *Queue[net.Conn]
	handler  ConnHandler
	size     int
	log      *log.Logger
	counters *mucount

	start sync.Once

	mu      sync.Mutex
	idle    chan struct{} // closed when pending drops to zero
	pending int           // submitted but not yet closed by a worker
}

// NewPool returns a pool of size workers serving connections from queue.
// Nothing runs until Start is called.
func NewPool(queue *Queue[net.Conn], handler ConnHandler, size int, logger *log.Logger) *Pool {
	p := &Pool{
		queue:    queue,
		handler:  handler,
		size:     size,
		log:      logger,
		counters: newCounters(),
	}
	p.idle = make(chan struct{})
	close(p.idle)
	return p
}

// Start launches the workers. Calling it again has no effect.
func (p *Pool) Start() {
	p.start.Do(func() {
		for id := 1; id <= p.size; id++ {
			go p.worker(id)
		}
	})
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Submit hands conn over to the pool, blocking while the queue is full.
// The caller must not touch conn afterwards.
func (p *Pool) Submit(conn net.Conn) {
	p.mu.Lock()
	if p.pending == 0 {
		p.idle = make(chan struct{})
	}
	p.pending++
	p.mu.Unlock()
	p.counters.Up(countTotal)
	p.queue.Put(conn)
}

// Pending returns the number of connections submitted and not yet finished.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

// Drain waits until every submitted connection has been handled and
// closed, or until timeout. It reports whether the pool went idle.
func (p *Pool) Drain(timeout time.Duration) bool {
	p.mu.Lock()
	idle := p.idle
	p.mu.Unlock()
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-idle:
		return true
	case <-t.C:
		return false
	}
}

func (p *Pool) worker(id int) {
	for {
		conn := p.queue.Get()
		p.serve(id, conn)
		p.finish()
	}
}

// serve runs the handler for one connection. Whatever happens in there
// stays with this connection.
func (p *Pool) serve(id int, conn net.Conn) {
	p.counters.Up(countActive)
	defer p.counters.Down(countActive)
	defer func() {
		if err := conn.Close(); err != nil {
			p.logf("worker %d: close %s: %v", id, remote(conn), err)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			p.counters.Up(countPanics)
			p.logf("worker %d: panic serving %s: %v\n%s", id, remote(conn), r, debug.Stack())
		}
	}()
	if err := p.handler.ServeConn(conn); err != nil {
		p.counters.Up(countAbandoned)
		p.logf("worker %d: abandoned %s: %v", id, remote(conn), err)
	}
}

func (p *Pool) finish() {
	p.mu.Lock()
	p.pending--
	if p.pending == 0 {
		close(p.idle)
	}
	p.mu.Unlock()
}

func (p *Pool) logf(format string, args ...interface{}) {
	if p.log != nil {
		p.log.Printf(format, args...)
	}
}

func remote(conn net.Conn) string {
	if conn == nil || conn.RemoteAddr() == nil {
		return "<nil>"
	}
	return fmt.Sprint(conn.RemoteAddr())
}
