// Package server exposes the collaboration handlers over WebSocket and the
// document store over a small REST API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dyluth/deck/internal/collab"
	"github.com/dyluth/deck/pkg/deck"
	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// DefaultAddr is the listen address used when Options.Addr is empty.
const DefaultAddr = ":3001"

// Options configures a Server.
type Options struct {
	Addr           string
	InstanceName   string
	AllowedOrigins []string

	// MaxMessageBytes caps one inbound WebSocket frame. 0 means 1 MiB.
	MaxMessageBytes int64
}

// Server owns the HTTP listener, every live WebSocket connection and the
// goroutines handling their messages.
type Server struct {
	store    *deck.Store
	handlers *collab.Handlers
	opts     Options
	upgrader websocket.Upgrader
	router   *mux.Router

	// ctx outlives individual connections so handlers started before a
	// disconnect still complete and broadcast.
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	conns      map[*wsConn]struct{}
	closing    bool
	inflight   sync.WaitGroup
}

// New creates a server. Call Start to listen, or mount Handler yourself.
func New(store *deck.Store, handlers *collab.Handlers, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = defaultMaxMessageBytes
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		store:    store,
		handlers: handlers,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		conns:    make(map[*wsConn]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(s.opts.AllowedOrigins, r.Header.Get("Origin"))
		},
	}

	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.Methods(http.MethodGet).Path("/healthz").HandlerFunc(s.healthCheckHandler)
	r.Methods(http.MethodGet).Path("/ws").HandlerFunc(s.serveWS)
	r.Methods(http.MethodPost).Path("/api/presentations").HandlerFunc(s.createPresentation)
	r.Methods(http.MethodGet).Path("/api/presentations").HandlerFunc(s.listPresentations)
	r.Methods(http.MethodGet).Path("/api/presentations/{id}").HandlerFunc(s.getPresentation)
	s.router = r

	return s
}

// Handler returns the server's router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.listener = ln
	s.httpServer = srv
	s.mu.Unlock()

	log.Printf("[Server] Listening on %s", ln.Addr())

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[Server] HTTP server error: %v", err)
		}
	}()

	return nil
}

// Addr returns the bound listen address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.opts.Addr
}

// Shutdown stops accepting requests, closes every WebSocket connection and
// waits for in-flight messages to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	srv := s.httpServer
	conns := make([]*wsConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	log.Printf("[Server] Shutting down (%d open connections)", len(conns))

	var shutdownErr error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("failed to shut down HTTP server: %w", err)
		}
	}

	// Hijacked connections are not closed by http.Server.Shutdown
	for _, c := range conns {
		c.close()
	}

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
	case <-ctx.Done():
		s.cancel()
		if shutdownErr == nil {
			shutdownErr = fmt.Errorf("timed out waiting for in-flight messages: %w", ctx.Err())
		}
	}

	return shutdownErr
}

// isClosing reports whether shutdown has begun.
func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// register adds c to the open connections. Its dispatchPump counts as
// in-flight work until unregister.
func (s *Server) register(c *wsConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return false
	}
	s.conns[c] = struct{}{}
	s.inflight.Add(1)
	return true
}

func (s *Server) unregister(c *wsConn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.inflight.Done()
}

// ConnectionCount returns the number of open WebSocket connections.
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Upgraded connections are hijacked; their lifetime is logged by the pumps
		if websocket.IsWebSocketUpgrade(r) {
			next.ServeHTTP(w, r)
			return
		}

		m := httpsnoop.CaptureMetrics(next, w, r)
		s.logEvent("http_request", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      m.Code,
			"duration_ms": m.Duration.Milliseconds(),
			"bytes":       m.Written,
		})
	})
}

// logEvent logs a structured event in JSON format.
func (s *Server) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "server"
	data["event_type"] = eventType
	data["instance"] = s.opts.InstanceName

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Server] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
