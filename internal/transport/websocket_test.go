// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirupsen/logrus"
)

func newTestGraphServer(handler GraphHandler) (*WebSocketServer, *httptest.Server) {
	s := &WebSocketServer{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		handler:  handler,
		log:      logrus.New(),
		sessions: make(map[uuid.UUID]*session),
	}
	return s, httptest.NewServer(http.HandlerFunc(s.handleGraph))
}

func TestGraphSubmissionAcks(t *testing.T) {
	var received []byte
	s, srv := newTestGraphServer(func(payload []byte) error {
		if len(payload) < 4 {
			return errors.New("too short")
		}
		received = append([]byte(nil), payload...)
		return nil
	})
	defer srv.Close()
	defer s.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3, 4, 5}))
	conn.SetReadDeadline(time.Now().Add(time.Second))
	msgType, reply, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, msgType)
	assert.Equal(t, "ok", string(reply))
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, received)
}

func TestGraphSubmissionRejection(t *testing.T) {
	s, srv := newTestGraphServer(func(payload []byte) error {
		return errors.New("bad snapshot")
	})
	defer srv.Close()
	defer s.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0}))
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, reply, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "error: bad snapshot", string(reply))
}

func TestBroadcastReachesSessions(t *testing.T) {
	s, srv := newTestGraphServer(nil)
	defer srv.Close()
	defer s.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	// The session registers during the upgrade handshake; wait for it.
	deadline := time.Now().Add(time.Second)
	for {
		s.sessionsMu.Lock()
		n := len(s.sessions)
		s.sessionsMu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("session never registered")
		}
		time.Sleep(time.Millisecond)
	}

	require.NoError(t, s.Send([]byte{9, 9, 9}))
	conn.SetReadDeadline(time.Now().Add(time.Second))
	msgType, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, msgType)
	assert.Equal(t, []byte{9, 9, 9}, payload)
}
