package torero

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

// listenAdmin serves the admin routes over HTTP on a unix socket at path.
func (s *Server) listenAdmin(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("torero: could not create socket directory: %w", err)
	}
	l, err := net.Listen("unix", path)
	if err != nil {
		if strings.Contains(err.Error(), "address already in use") {
			return fmt.Errorf("torero: %v Did a torero server crash? You can delete the socket if you are sure that no other torero servers are running", err)
		}
		return fmt.Errorf("torero: could not listen on unix domain socket %q: %w", path, err)
	}
	s.admin = &http.Server{
		Handler:           s.adminRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          s.log,
	}
	go func(srv *http.Server) {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Printf("admin socket: %v", err)
		}
	}(s.admin)
	s.log.Printf("Admin socket: %s", path)
	return nil
}

// closeAdmin shuts the admin socket down and removes the socket file.
func (s *Server) closeAdmin() error {
	if s.admin == nil {
		return nil
	}
	s.log.Println("Removing admin socket...")
	ctx, cancel := context.WithTimeout(context.Background(), s.Config.GracePeriod)
	defer cancel()
	err := s.admin.Shutdown(ctx)
	if rmerr := os.Remove(s.Config.Socket); rmerr != nil && !os.IsNotExist(rmerr) {
		s.log.Println("error removing socket:", rmerr)
	}
	s.admin = nil
	if err != nil {
		return fmt.Errorf("torero: closing admin socket: %w", err)
	}
	return nil
}

func (s *Server) adminRoutes() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown command: "+r.URL.Path, http.StatusNotFound)
	})
	r.HandleFunc("/hello", s.adminHello).Methods(http.MethodGet)
	r.HandleFunc("/status", s.adminStatus).Methods(http.MethodGet)
	r.HandleFunc("/runlevel/{level:[0-9]+}", s.adminRunlevel).Methods(http.MethodPost)
	return r
}

func (s *Server) adminHello(w http.ResponseWriter, r *http.Request) {
	s.log.Printf("HELLO: %q", r.URL.Query().Get("from"))
	fmt.Fprintf(w, "HELLO from %s", s.Config.Name)
}

func (s *Server) adminStatus(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, s.Status())
}

func (s *Server) adminRunlevel(w http.ResponseWriter, r *http.Request) {
	level, err := strconv.Atoi(mux.Vars(r)["level"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.log.Printf("Request to shift runlevel: %d", level)
	if level == HALT {
		// answer first, halting closes this socket
		fmt.Fprint(w, "level 0")
		go func() {
			if err := s.Runlevel(HALT); err != nil {
				s.log.Println(err)
			}
		}()
		return
	}
	if err := s.Runlevel(level); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrBadLevel) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}
	fmt.Fprintf(w, "level %d", s.Level())
}
