// Package presentation streams pipeline output to connected viewers over
// WebSocket, keeping the display hardware decoupled from the capture host.
package presentation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/avrelja/sidecoach/core/bus"
	"github.com/avrelja/sidecoach/core/conversation"
	"github.com/avrelja/sidecoach/core/events"
)

const (
	DefaultAddr = ":8765"

	shutdownTimeout = 3 * time.Second
)

// SnapshotProvider supplies the current grounding state so late-joining
// viewers can catch up before live events arrive.
type SnapshotProvider interface {
	Snapshot() conversation.Snapshot
}

type Server struct {
	addr  string
	store SnapshotProvider

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(message any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(message)
}

type Option func(*Server)

func WithAddr(addr string) Option {
	return func(s *Server) {
		if addr != "" {
			s.addr = addr
		}
	}
}

// WithSnapshotProvider enables the catch-up snapshot for new connections.
func WithSnapshotProvider(store SnapshotProvider) Option {
	return func(s *Server) { s.store = store }
}

func NewServer(opts ...Option) *Server {
	s := &Server{
		addr:    DefaultAddr,
		clients: map[*client]struct{}{},
		upgrader: websocket.Upgrader{
			// Viewers connect from phones on the local network; there is
			// no meaningful origin to enforce.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Attach subscribes the server to the event kinds viewers care about. One
// shared subscription queue keeps the broadcast order identical to publish
// order, so viewers never see a done marker before its chunks.
func (s *Server) Attach(b *bus.Bus) {
	b.SubscribeKinds(func(_ context.Context, event events.Event) {
		switch event := event.(type) {
		case events.IntentQuestion:
			s.Broadcast(Message{Type: MessageTypeQuestion, Text: event.Text, Confidence: event.Confidence})
		case events.AnswerChunk:
			s.Broadcast(Message{Type: MessageTypeChunk, AnswerID: event.AnswerID, Text: event.Text})
		case events.AnswerDone:
			s.Broadcast(Message{Type: MessageTypeDone, AnswerID: event.AnswerID})
		case events.SystemStatus:
			s.Broadcast(Message{Type: MessageTypeStatus, Text: event.Message})
		}
	},
		events.KindIntentQuestion,
		events.KindAnswerChunk,
		events.KindAnswerDone,
		events.KindSystemStatus,
	)
}

// Handler builds the HTTP surface: the WebSocket endpoint, a health probe,
// and a minimal index page.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebsocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleIndex)
	return otelhttp.NewHandler(mux, "presentation")
}

// Run serves viewers until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{Addr: s.addr, Handler: s.Handler()}

	errs := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errs <- err
		}
	}()
	logger.Info("presentation server started", "addr", s.addr)

	select {
	case err := <-errs:
		return fmt.Errorf("presentation server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.closeClients()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("presentation server shutdown failed: %w", err)
	}
	return nil
}

// Broadcast sends one message to every connected viewer. Unwritable
// connections are dropped.
func (s *Server) Broadcast(message Message) {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		if err := c.send(message); err != nil {
			logger.Warn("Failed to write to viewer, dropping connection", "error", err)
			s.removeClient(c)
		}
	}
}

// Connections reports the number of connected viewers.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Failed to upgrade viewer connection", "error", err)
		return
	}

	c := &client{conn: conn}
	if s.store != nil {
		if err := c.send(newSnapshotMessage(s.store.Snapshot())); err != nil {
			logger.Warn("Failed to send snapshot to viewer", "error", err)
			conn.Close()
			return
		}
	}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	total := len(s.clients)
	s.mu.Unlock()
	logger.Info("viewer connected", "total", total)

	// Viewers do not send meaningful messages; the read loop only notices
	// disconnects.
	go func() {
		defer s.removeClient(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"connections": s.Connections(),
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<h1>sidecoach</h1><p>Connect a viewer to /ws.</p>")
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	_, present := s.clients[c]
	delete(s.clients, c)
	total := len(s.clients)
	s.mu.Unlock()

	if present {
		c.conn.Close()
		logger.Info("viewer disconnected", "total", total)
	}
}

func (s *Server) closeClients() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clients = map[*client]struct{}{}
	s.mu.Unlock()

	for _, c := range clients {
		c.conn.Close()
	}
}
