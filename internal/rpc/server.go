// Package rpc serves merchants JSON-RPC 2.0 over WebSocket: request
// dispatch, per-connection sessions, and server-initiated feed streams.
package rpc

import (
	"context"
	"net/http"
	"sync"
	"time"

	"lightning-gateway/pkg/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server accepts WebSocket connections and runs one Conn per client.
type Server struct {
	dispatcher *Dispatcher
	poolSize   int
	upgrader   websocket.Upgrader
	httpServer *http.Server

	mu    sync.Mutex
	conns map[*Conn]struct{}
}

// NewServer wires the method table to its collaborators.
func NewServer(opts Options) *Server {
	if opts.PoolSize <= 1 {
		opts.PoolSize = 4
	}
	return &Server{
		dispatcher: newDispatcher(opts),
		poolSize:   opts.PoolSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Merchants connect from their own backends, not browsers.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[*Conn]struct{}),
	}
}

// ServeHTTP upgrades the request and serves it until disconnect.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Upgrade failed", zap.Error(err))
		return
	}

	conn := newConn(&wsTransport{ws: ws}, s.dispatcher, s.poolSize)

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	conn.run(r.Context())

	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// ListenAndServe blocks serving addr until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  0, // connections are long-lived
		WriteTimeout: 0,
	}
	logger.Info("RPC server listening", zap.String("addr", addr))

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting and closes every live connection.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for conn := range s.conns {
		conn.close()
	}
	s.mu.Unlock()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// wsTransport adapts a gorilla connection to the Transport interface. The
// single writer goroutine on Conn satisfies gorilla's one-writer rule.
type wsTransport struct {
	ws *websocket.Conn
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.ws.ReadMessage()
	return data, err
}

func (t *wsTransport) WriteMessage(data []byte) error {
	_ = t.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return t.ws.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	return t.ws.Close()
}
