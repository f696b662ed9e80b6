// Package websocket serves a localhost-only feed of automation events: send outcomes, scheduled
// task transitions and service state changes.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/websocket"
)

const (
	serverReadTimeout  = 60 * time.Second
	serverWriteTimeout = 60 * time.Second
	serverIdleTimeout  = 300 * time.Second
	shutdownTimeout    = 2 * time.Second
)

// ServiceState is shared between the service and connected feed clients. All fields are
// guarded by Mutex.
type ServiceState struct {
	State   string
	PID     int
	Clients map[*websocket.Conn]bool
	Mutex   sync.RWMutex
	Logger  *slog.Logger

	LastActivity  time.Time // last finished send attempt
	Sent          int
	Failed        int
	Pending       int // scheduled tasks not yet finished
	FailureStreak int
}

// RecordOutcome updates counters for one finished send attempt.
func (s *ServiceState) RecordOutcome(ok bool, at time.Time) {
	s.Mutex.Lock()
	defer s.Mutex.Unlock()
	s.LastActivity = at
	if ok {
		s.Sent++
		s.FailureStreak = 0
		return
	}
	s.Failed++
	s.FailureStreak++
}

// Server owns the HTTP listener behind the feed.
type Server struct {
	state *ServiceState

	mu       sync.Mutex
	listener net.Listener
	http     *http.Server
	done     chan struct{}
	running  atomic.Bool
}

func NewServer(state *ServiceState) *Server {
	return &Server{state: state}
}

// Start binds 127.0.0.1:port and serves in the background. Port 0 picks a free port.
func (s *Server) Start(port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return errors.New("websocket server is already running")
	}

	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", port, err)
	}

	s.listener = l
	s.http = &http.Server{
		Handler:      s.handler(),
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}
	s.done = make(chan struct{})
	s.running.Store(true)

	s.logger().Info("WebSocket server starting", slog.String("address", "ws://"+l.Addr().String()))

	srv, done := s.http, s.done
	go func() {
		defer close(done)
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger().Error("WebSocket server error", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Addr returns the bound address, or "" when stopped.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Running reports whether Start succeeded and Stop has not been called.
func (s *Server) Running() bool {
	return s.running.Load()
}

// Stop closes the listener and every client, then waits for the serve goroutine. It is safe
// to call more than once.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Swap(false) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Hijacked websocket connections are not tracked by Shutdown.
	s.closeClients()
	if err := s.http.Shutdown(ctx); err != nil {
		_ = s.http.Close()
	}
	<-s.done

	s.listener = nil
	s.http = nil
	s.logger().Info("WebSocket server stopped")
}

func (s *Server) closeClients() {
	s.state.Mutex.Lock()
	defer s.state.Mutex.Unlock()
	for conn := range s.state.Clients {
		_ = conn.Close()
		delete(s.state.Clients, conn)
	}
}

func (s *Server) logger() *slog.Logger {
	if s.state.Logger != nil {
		return s.state.Logger
	}
	return slog.Default()
}

func (s *Server) handler() http.Handler {
	return websocket.Server{
		Handshake: func(cfg *websocket.Config, r *http.Request) error {
			if err := validateRequest(r); err != nil {
				s.logger().Warn("Connection validation failed",
					slog.String("reason", err.Error()),
					slog.String("remote_addr", r.RemoteAddr))
				return err
			}
			origin, err := websocket.Origin(cfg, r)
			if err == nil {
				cfg.Origin = origin
			}
			return nil
		},
		Handler: func(ws *websocket.Conn) {
			HandleConnection(ws, s.state)
		},
	}
}

// validateRequest accepts loopback peers with no Origin or a localhost Origin.
func validateRequest(r *http.Request) error {
	if origin := r.Header.Get("Origin"); origin != "" && !isValidOrigin(origin) {
		return fmt.Errorf("invalid origin: %s", origin)
	}
	if !isLocalhost(r.RemoteAddr) {
		return fmt.Errorf("non-localhost connection: %s", r.RemoteAddr)
	}
	return nil
}

func isLocalhost(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return host == "localhost"
	}
	return ip.IsLoopback()
}

var localOrigins = []string{
	"ws://localhost:", "ws://127.0.0.1:",
	"wss://localhost:", "wss://127.0.0.1:",
	"http://localhost:", "http://127.0.0.1:",
	"https://localhost:", "https://127.0.0.1:",
}

// isValidOrigin blocks cross-site websocket hijacking from pages served elsewhere.
func isValidOrigin(origin string) bool {
	for _, prefix := range localOrigins {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}
