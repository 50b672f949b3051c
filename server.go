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

// Package torero is a small file serving daemon built around a fixed pool
// of workers fed by a bounded queue of accepted connections.
//
//	0 is halt
//
//	1 is single user: only the admin socket is open
//
//	3 is multiuser: the TCP listener is open and connections are accepted
//
// Create a server, start it and wait:
//
//	s, err := torero.New(config)
//	...
//	if err := s.Start(); err != nil { ... }
//	s.Wait()
package torero

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

var version = "0.3"

const (
	// HALT stops accepting, drains the workers and closes the admin socket
	HALT = 0

	// SINGLEUSER mode where we listen only on the admin socket
	SINGLEUSER = 1

	// MULTIUSER mode where we listen on the network
	MULTIUSER = 3
)

// ErrBadLevel is returned for a runlevel other than 0, 1 or 3.
var ErrBadLevel = errors.New("torero: invalid level")

// Server owns the queue, the worker pool and the listeners.
type Server struct {
	Config Config

	// Done receives one message when runlevel 0 is reached.
	Done chan string

	queue    *Queue[net.Conn]
	pool     *Pool
	handler  *Handler
	counters *mucount
	log      *log.Logger
	since    time.Time

	rlock      sync.Mutex // guards shifting between runlevels and the fields below
	level      int
	listener   net.Listener  // TCP, nil below runlevel 3
	acceptDone chan struct{} // closed when the accept loop returns
	admin      *http.Server  // admin unix socket
}

// New returns a server for config. Nothing listens or runs until Start.
func New(config Config) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.GracePeriod <= 0 {
		config.GracePeriod = DefaultConfig().GracePeriod
	}
	w, err := config.openLog()
	if err != nil {
		return nil, err
	}
	s := &Server{
		Config:   config,
		Done:     make(chan string, 1),
		counters: newCounters(),
		log:      log.New(w, "[torero] ", config.logFlags()),
		since:    time.Now(),
	}
	s.queue = NewQueue[net.Conn](config.QueueSize)
	s.handler = NewHandler(config.Root, config.BufferSize, s.log)
	s.handler.Debug = config.Debug
	s.handler.counters = s.counters
	s.pool = NewPool(s.queue, s.handler, config.Workers, s.log)
	s.pool.counters = s.counters
	return s, nil
}

// Log exports our logger for customization
func (s *Server) Log() *log.Logger {
	return s.log
}

// Start launches the workers, opens the admin socket if one is
// configured and enters the configured runlevel.
func (s *Server) Start() error {
	s.log.Printf("%s %s: serving %q with %d workers, queue of %d", s.Config.Name, version,
		s.Config.Root, s.Config.Workers, s.Config.QueueSize)
	s.pool.Start()
	if s.Config.Socket != "" {
		if err := s.listenAdmin(s.Config.Socket); err != nil {
			return err
		}
	}
	s.rlock.Lock()
	s.level = SINGLEUSER
	s.rlock.Unlock()
	if err := s.Runlevel(s.Config.Level); err != nil {
		// nothing will halt us, don't leave the socket file behind
		if cerr := s.closeAdmin(); cerr != nil {
			s.log.Println(cerr)
		}
		return err
	}
	return nil
}

// Runlevel changes gears into the selected runlevel.
func (s *Server) Runlevel(level int) error {
	if level != HALT && level != SINGLEUSER && level != MULTIUSER {
		return fmt.Errorf("%w: %d, try 0, 1, 3", ErrBadLevel, level)
	}
	s.rlock.Lock()
	defer s.rlock.Unlock()

	cur := s.level
	if cur == HALT {
		return fmt.Errorf("torero: halted, can not enter runlevel %d", level)
	}
	if cur == level {
		s.log.Printf("warning: already in level %d, will continue...", level)
	}
	s.log.Printf("Entering runlevel %d from %d...", level, cur)

	switch level {
	case HALT:
		err := s.halt()
		s.level = HALT
		select {
		case s.Done <- "halted":
		default:
		}
		return err
	case SINGLEUSER:
		if err := s.stopAccepting(); err != nil {
			s.log.Println(err)
		}
	case MULTIUSER:
		if s.acceptDone != nil && s.listener == nil {
			select {
			case <-s.acceptDone:
				s.acceptDone = nil
			default:
				return fmt.Errorf("torero: previous accept loop still blocked on a full queue, try again later")
			}
		}
		if s.listener == nil {
			l, err := Listen(s.Config.Port, s.Config.Backlog)
			if err != nil {
				return err
			}
			s.listener = l
			s.acceptDone = make(chan struct{})
			go s.acceptLoop(l, s.acceptDone)
			s.log.Printf("Listening: %s", l.Addr().String())
		}
	}
	s.level = level
	return nil
}

// stopAccepting closes the TCP listener and waits for the accept loop to
// hand off whatever it already accepted. Called with rlock held.
func (s *Server) stopAccepting() error {
	if s.listener == nil {
		return nil
	}
	name := s.listener.Addr().String()
	err := s.listener.Close()
	s.listener = nil
	if err != nil {
		s.log.Printf("error closing listener %s: %v", name, err)
	}
	select {
	case <-s.acceptDone:
		s.acceptDone = nil
	case <-time.After(s.Config.GracePeriod):
		// stuck in Submit behind a full queue; the connection it holds
		// still reaches a worker once there is room. acceptDone is kept
		// so runlevel 3 waits for this loop to exit.
		return fmt.Errorf("torero: accept loop for %s still blocked after %v", name, s.Config.GracePeriod)
	}
	return nil
}

// halt stops the acceptor and drains the pool while the admin socket
// shuts down. Called with rlock held.
func (s *Server) halt() error {
	var g errgroup.Group
	g.Go(func() error {
		if err := s.stopAccepting(); err != nil {
			return err
		}
		if !s.pool.Drain(s.Config.GracePeriod) {
			return fmt.Errorf("torero: %d connections still pending after %v", s.pool.Pending(), s.Config.GracePeriod)
		}
		return nil
	})
	g.Go(s.closeAdmin)
	err := g.Wait()
	if err != nil {
		s.log.Printf("encountered an error during shift to runlevel 0: %v", err)
	}
	s.log.Printf("Goodbye!")
	return err
}

// Wait for SIGINT, SIGHUP, SIGTERM or runlevel 0.
// A signal shifts down to runlevel 0.
func (s *Server) Wait() error {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGHUP, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case msg := <-s.Done:
		s.log.Println(msg)
		return nil
	case sig := <-sigs:
		s.log.Printf("recv sig: %q, shifting down from runlevel %d", sig.String(), s.Level())
		err := s.Runlevel(HALT)
		select {
		case <-s.Done:
		default:
		}
		return err
	}
}

// Level returns the current runlevel.
func (s *Server) Level() int {
	s.rlock.Lock()
	defer s.rlock.Unlock()
	return s.level
}

// Addr returns the address of the TCP listener, or nil when not listening.
func (s *Server) Addr() net.Addr {
	s.rlock.Lock()
	defer s.rlock.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Uptime returns duration since New
func (s *Server) Uptime() time.Duration {
	return time.Since(s.since)
}

// Status returns a status report string
func (s *Server) Status() string {
	if s == nil {
		return ""
	}
	addr := "not listening"
	if a := s.Addr(); a != nil {
		addr = a.String()
	}
	out := fmt.Sprintf("Server Name: %s\nTorero Version: %s\nCurrent Runlevel: %d\n"+
		"Addr: %s\nDocument Root: %s\nWorkers: %d\nQueue: %d/%d\n"+
		"Active Connections: %d\nTotal Connections: %d\nAbandoned Connections: %d\n",
		s.Config.Name, version, s.Level(),
		addr, s.Config.Root, s.pool.Size(), s.queue.Len(), s.queue.Cap(),
		s.counters.Uint64(countActive), s.counters.Uint64(countTotal), s.counters.Uint64(countAbandoned))
	for _, name := range s.counters.Prefixed("status ") {
		out += fmt.Sprintf("Responses %s: %d\n", name[len("status "):], s.counters.Uint64(name))
	}
	if n := s.counters.Uint64(countPanics); n != 0 {
		out += fmt.Sprintf("Handler Panics: %d\n", n)
	}
	out += fmt.Sprintf("Uptime: %s", s.Uptime().Round(time.Second))
	return out
}
