package main

import (
	"context"
	"crypto/tls"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Server holds the WebSocket listener and the session manager it feeds.
type Server struct {
	addr        string
	tlsConfig   *tls.Config
	sessions    *SessionManager
	idleTimeout time.Duration
}

// NewServer returns a Server bound to addr, terminating TLS with
// tlsConfig and routing every admitted connection through sessions.
func NewServer(addr string, tlsConfig *tls.Config, sessions *SessionManager, idleTimeout time.Duration) *Server {
	return &Server{
		addr:        addr,
		tlsConfig:   tlsConfig,
		sessions:    sessions,
		idleTimeout: idleTimeout,
	}
}

// Run starts the HTTPS + WebSocket server and blocks until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	upgrader := websocket.Upgrader{
		CheckOrigin: func(_ *http.Request) bool { return true },
	}

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		if name == "" || name == generalChatID {
			http.Error(w, "missing or reserved name", http.StatusBadRequest)
			return
		}

		wsConn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[server] websocket upgrade failed: %v", err)
			return
		}

		conn := newWSConn(wsConn)
		res := s.sessions.OnOpen(ctx, name, conn, r.RemoteAddr)
		if !res.Admitted() {
			_ = conn.closeWithReason(admitRejectReason(res.Reason))
			return
		}

		go s.readLoop(conn)
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("chat engine"))
	})

	httpSrv := &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		TLSConfig:         s.tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       s.idleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[server] shutdown: %v", err)
		}
	}()

	log.Printf("[server] listening on %s", s.addr)

	err := httpSrv.ListenAndServeTLS("", "")
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// readLoop pumps inbound frames from one connection until it closes. Text
// frames are logged and dropped per spec §4.E; everything else flows to
// the dispatcher via SessionManager.OnMessage.
func (s *Server) readLoop(conn *wsConn) {
	defer s.sessions.OnClose(conn)
	defer conn.raw.Close()

	for {
		msgType, data, err := conn.raw.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.BinaryMessage {
			log.Printf("[server] dropped non-binary frame from %s", conn.RemoteAddr())
			continue
		}
		s.sessions.OnMessage(conn, data)
	}
}

func admitRejectReason(reason AdmitReason) string {
	switch reason {
	case AdmitInvalidName:
		return "invalid name"
	case AdmitDuplicate:
		return "duplicate"
	default:
		return "rejected"
	}
}

// wsConn adapts *websocket.Conn to the Conn interface the core engine
// depends on, isolating it from the transport library.
type wsConn struct {
	raw *websocket.Conn
}

func newWSConn(raw *websocket.Conn) *wsConn {
	return &wsConn{raw: raw}
}

func (c *wsConn) SendBinary(payload []byte) error {
	return c.raw.WriteMessage(websocket.BinaryMessage, payload)
}

func (c *wsConn) Close(reason string) error {
	return c.closeWithReason(reason)
}

func (c *wsConn) closeWithReason(reason string) error {
	_ = c.raw.WriteMessage(websocket.TextMessage, []byte(reason))
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = c.raw.WriteMessage(websocket.CloseMessage, msg)
	return c.raw.Close()
}

func (c *wsConn) RemoteAddr() string {
	return c.raw.RemoteAddr().String()
}
