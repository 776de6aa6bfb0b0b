package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

// NewTestingEnv starts a server that serves the handlers returned by
// newHandler and returns a connected client.
func NewTestingEnv(t *testing.T, newHandler func() Handler) (*websocket.Conn, func()) {
	var mutex sync.Mutex
	logger := t.Log

	logs.Encoder = func(v any) ([]byte, error) {
		return json.MarshalIndent(v, "", "  ")
	}

	logs.SetLogger(func(e logs.Entry) {
		mutex.Lock()
		defer mutex.Unlock()

		if logger != nil {
			logger(e)
		}
	})

	errors.Encoder = json.Marshal

	server := httptest.NewServer(websocket.Server{
		Handshake: func(c *websocket.Config, r *http.Request) error {
			return nil
		},
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			handler := newHandler()
			defer handler.Close()

			Handle(context.Background(), conn, handler)
		},
	})

	config, err := websocket.NewConfig(
		strings.ReplaceAll(server.URL, "http://", "ws://"),
		"http://localhost",
	)
	if err != nil {
		t.Fatalf("error initializing web socket: %s", err)
	}
	config.Header.Set("User-Agent", "ted")
	config.Header.Set(HeaderClientID, uuid.NewString())

	conn, err := websocket.DialConfig(config)
	if err != nil {
		t.Fatalf("error connecting to web socket: %s", err)
	}

	return conn, func() {
		conn.Close()
		server.Close()

		mutex.Lock()
		defer mutex.Unlock()
		logger = nil
	}
}

// SendMsg sends a message from a testing client.
func SendMsg(t *testing.T, conn *websocket.Conn, msg Msg) {
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("error encoding message: %s", err)
	}

	if err := websocket.Message.Send(conn, string(b)); err != nil {
		t.Fatalf("error sending message: %s", err)
	}
}

// ReceiveMsg waits for a message of the given type on a testing client.
// Messages of other types are skipped.
func ReceiveMsg(t *testing.T, conn *websocket.Conn, msgType string) Msg {
	for {
		var b []byte
		if err := websocket.Message.Receive(conn, &b); err != nil {
			t.Fatalf("error receiving %s message: %s", msgType, err)
		}

		var msg Msg
		if err := json.Unmarshal(b, &msg); err != nil {
			t.Fatalf("error decoding message: %s", err)
		}

		if msg.Type == msgType {
			return msg
		}
	}
}
