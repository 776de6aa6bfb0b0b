package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/crowdnav/models"
	"github.com/aukilabs/crowdnav/simulation"
	"github.com/aukilabs/crowdnav/spatial"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const (
	MsgTypeFrame     = "frame"
	MsgTypePing      = "ping"
	MsgTypePong      = "pong"
	MsgTypeSelect    = "select"
	MsgTypeSelection = "selection"
	MsgTypeError     = "error"
)

const (
	// The header carrying the client id. A random id is used when it is
	// missing.
	HeaderClientID = "X-Crowdnav-Client-Id"

	messageMaxSize = 4096
)

// Msg is a message exchanged with a diagnostics stream client.
type Msg struct {
	Type      string    `json:"type"`
	RequestID uint32    `json:"request_id,omitempty"`
	Time      time.Time `json:"time,omitempty"`

	// Frame messages.
	Frame *simulation.Frame `json:"frame,omitempty"`

	// Select requests.
	From   *r3.Vector               `json:"from,omitempty"`
	To     *r3.Vector               `json:"to,omitempty"`
	Layers *models.NavigationLayers `json:"layers,omitempty"`

	// Selection responses. Nil when nothing was selected.
	Selection *spatial.Entry `json:"selection,omitempty"`

	Error string `json:"error,omitempty"`
}

// World is what a stream needs from a simulation world.
type World interface {
	HandleFrame(h func(simulation.Frame)) (cancel func())
	Select(from, to r3.Vector, layers models.NavigationLayers) (spatial.Entry, bool)
}

// StreamHandler streams the frames of a world to a client.
type StreamHandler struct {
	// The world whose frames are streamed.
	World World

	// The time a silent client stays connected. Zero means forever.
	ClientIdleTimeout time.Duration

	conn     *websocket.Conn
	clientID string
}

func (h *StreamHandler) HandleConnect(conn *websocket.Conn) {
	h.conn = conn

	h.clientID = conn.Request().Header.Get(HeaderClientID)
	if h.clientID == "" {
		h.clientID = uuid.NewString()
	}
}

func (h *StreamHandler) HandleFrames(handleFrame func(simulation.Frame)) func() {
	return h.World.HandleFrame(handleFrame)
}

func (h *StreamHandler) HandlePing(ctx context.Context, respond func(Msg), msg Msg) error {
	respond(Msg{
		Type:      MsgTypePong,
		RequestID: msg.RequestID,
		Time:      time.Now(),
	})
	return nil
}

func (h *StreamHandler) HandleSelect(ctx context.Context, respond func(Msg), msg Msg) error {
	if msg.From == nil || msg.To == nil {
		return errors.New("select request requires from and to").
			WithType(ErrTypeInvalidMsg).
			WithTag("request_id", msg.RequestID)
	}

	layers := models.Everything
	if msg.Layers != nil {
		layers = *msg.Layers
	}

	res := Msg{
		Type:      MsgTypeSelection,
		RequestID: msg.RequestID,
		Time:      time.Now(),
	}
	if e, ok := h.World.Select(*msg.From, *msg.To, layers); ok {
		res.Selection = &e
	}

	respond(res)
	return nil
}

func (h *StreamHandler) HandleFrameDrop(simulation.Frame) {
}

func (h *StreamHandler) HandleDisconnect(error) {
}

func (h *StreamHandler) Sender() Sender {
	return func(msg Msg) (int, error) {
		b, err := json.Marshal(msg)
		if err != nil {
			return 0, errors.New("encoding message failed").
				WithTag("msg_type", msg.Type).
				Wrap(err)
		}

		if err := websocket.Message.Send(h.conn, string(b)); err != nil {
			return 0, err
		}
		return len(b), nil
	}
}

func (h *StreamHandler) Receiver() Receiver {
	h.conn.MaxPayloadBytes = messageMaxSize

	return func() (Msg, int, error) {
		var b []byte
		if err := websocket.Message.Receive(h.conn, &b); err != nil {
			return Msg{}, 0, err
		}

		var msg Msg
		if err := json.Unmarshal(b, &msg); err != nil {
			return Msg{}, len(b), errors.New("decoding message failed").
				WithType(ErrTypeInvalidMsg).
				Wrap(err)
		}
		return msg, len(b), nil
	}
}

func (h *StreamHandler) IdleTimeout() time.Duration {
	return h.ClientIdleTimeout
}

func (h *StreamHandler) GetClientID() string {
	return h.clientID
}

func (h *StreamHandler) Close() {
}
