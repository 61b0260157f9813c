// SPDX-License-Identifier: MIT
package transport

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WebSocketServer accepts graph snapshot submissions over /graph and
// broadcasts engine data frames to every connected session.
type WebSocketServer struct {
	addr     string
	upgrader websocket.Upgrader
	handler  GraphHandler
	log      logrus.FieldLogger

	sessionsMu sync.Mutex
	sessions   map[uuid.UUID]*session

	server *http.Server
}

type session struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
}

// NewWebSocketServer creates the server and starts listening.
func NewWebSocketServer(addr string, handler GraphHandler, log logrus.FieldLogger) *WebSocketServer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &WebSocketServer{
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		handler:  handler,
		log:      log,
		sessions: make(map[uuid.UUID]*session),
	}
	s.start()
	return s
}

func (s *WebSocketServer) start() {
	mux := http.NewServeMux()
	mux.HandleFunc("/graph", s.handleGraph)

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: mux,
	}

	go func() {
		s.log.WithField("addr", s.addr).Info("graph transport listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("graph transport server stopped")
		}
	}()
}

func (s *WebSocketServer) handleGraph(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	sess := &session{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, 64),
	}

	s.sessionsMu.Lock()
	s.sessions[sess.id] = sess
	s.sessionsMu.Unlock()

	s.log.WithField("session", sess.id).Info("graph client connected")

	go s.writeLoop(sess)
	s.readLoop(sess)
}

// readLoop consumes graph submissions until the client disconnects.
// Binary messages are graph snapshots; everything else is ignored.
func (s *WebSocketServer) readLoop(sess *session) {
	defer s.drop(sess)

	for {
		msgType, payload, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		if s.handler == nil {
			continue
		}
		if err := s.handler(payload); err != nil {
			s.log.WithFields(logrus.Fields{
				"session": sess.id,
				"error":   err,
			}).Warn("graph snapshot rejected")
			sess.conn.WriteMessage(websocket.TextMessage, []byte("error: "+err.Error()))
			continue
		}
		sess.conn.WriteMessage(websocket.TextMessage, []byte("ok"))
	}
}

func (s *WebSocketServer) writeLoop(sess *session) {
	for payload := range sess.send {
		if err := sess.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
			return
		}
	}
}

func (s *WebSocketServer) drop(sess *session) {
	s.sessionsMu.Lock()
	if _, ok := s.sessions[sess.id]; ok {
		delete(s.sessions, sess.id)
		close(sess.send)
	}
	s.sessionsMu.Unlock()
	sess.conn.Close()
	s.log.WithField("session", sess.id).Info("graph client disconnected")
}

// Send broadcasts a binary frame to every session. Slow sessions drop
// frames rather than stalling the caller.
func (s *WebSocketServer) Send(payload []byte) error {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	for _, sess := range s.sessions {
		select {
		case sess.send <- payload:
		default:
		}
	}
	return nil
}

// Close shuts down the server and all sessions.
func (s *WebSocketServer) Close() error {
	s.sessionsMu.Lock()
	for id, sess := range s.sessions {
		delete(s.sessions, id)
		close(sess.send)
		sess.conn.Close()
	}
	s.sessionsMu.Unlock()

	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

var _ Transport = (*WebSocketServer)(nil)
