// Package agenttest provides an in-process stub agent for exercising the
// bridge and coordinator against a real websocket endpoint.
package agenttest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/odvcencio/tether/pkg/protocol"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// Server is a stub agent. It accepts bridge connections on /bridge, records
// every frame the client sends, and can push frames back.
type Server struct {
	httpSrv   *httptest.Server
	authToken string
	received  chan protocol.Frame

	mu    sync.Mutex
	conns []*websocket.Conn
}

// Option configures the stub server.
type Option func(*Server)

// WithAuthToken makes the server reject connections without the matching
// bearer token.
func WithAuthToken(token string) Option {
	return func(s *Server) { s.authToken = token }
}

// New starts a stub agent server.
func New(opts ...Option) *Server {
	s := &Server{
		received: make(chan protocol.Frame, 64),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Get("/bridge", s.handleBridge)
	s.httpSrv = httptest.NewServer(r)
	return s
}

// URL returns the websocket endpoint clients should dial.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.httpSrv.URL, "http") + "/bridge"
}

// Received yields frames sent by the client, in arrival order.
func (s *Server) Received() <-chan protocol.Frame {
	return s.received
}

// Push sends a frame to every connected client.
func (s *Server) Push(frame protocol.Frame) error {
	data, err := frame.Encode()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return err
		}
	}
	return nil
}

// PushRaw sends arbitrary bytes to every connected client, for exercising
// malformed-frame handling.
func (s *Server) PushRaw(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return err
		}
	}
	return nil
}

// ConnCount reports the number of live client connections.
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// DropClients closes every client connection cleanly, simulating an agent
// shutdown.
func (s *Server) DropClients() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	for _, conn := range conns {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "agent shutdown"))
		conn.Close()
	}
}

// Close shuts down the server and all connections.
func (s *Server) Close() {
	s.DropClients()
	s.httpSrv.Close()
}

func (s *Server) handleBridge(w http.ResponseWriter, r *http.Request) {
	if s.authToken != "" {
		if r.Header.Get("Authorization") != "Bearer "+s.authToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.mu.Unlock()

	go s.readLoop(conn)
}

func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.remove(conn)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frame, err := protocol.Parse(data)
		if err != nil {
			continue
		}
		select {
		case s.received <- frame:
		default:
		}
	}
}

func (s *Server) remove(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.conns {
		if c == conn {
			s.conns = append(s.conns[:i], s.conns[i+1:]...)
			break
		}
	}
	conn.Close()
}
