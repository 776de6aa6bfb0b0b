// Package websocket streams world diagnostics to WebSocket clients: a frame
// summary after every tick, plus answers to ping and select requests.
package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/crowdnav/simulation"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"golang.org/x/net/websocket"
)

const (
	sendChanSize  = 64
	frameChanSize = 8

	ErrTypeMsgSkip     = "msg_skip"
	ErrTypeInvalidMsg  = "invalid_msg"
	ErrTypeIdleTimeout = "idle_timeout"
)

// Sender sends a message to the client and returns the number of sent bytes.
type Sender func(Msg) (int, error)

// Receiver waits for a client message and returns it with its size in bytes.
type Receiver func() (Msg, int, error)

// Handler represents a diagnostics stream handler.
type Handler interface {
	// Handles a client connection.
	HandleConnect(conn *websocket.Conn)

	// Subscribes to world frames. The given function must not block.
	HandleFrames(handleFrame func(simulation.Frame)) (cancel func())

	// Handles a ping request.
	HandlePing(ctx context.Context, respond func(Msg), msg Msg) error

	// Handles a click to select request.
	HandleSelect(ctx context.Context, respond func(Msg), msg Msg) error

	// Handles a frame that could not be queued because the client is too
	// slow.
	HandleFrameDrop(simulation.Frame)

	// Handles a client's disconnection.
	HandleDisconnect(error)

	// Returns the function that sends messages to the client.
	Sender() Sender

	// Returns the function that receives messages from the client.
	Receiver() Receiver

	// Returns the time a client can stay silent before being disconnected.
	// Zero means never.
	IdleTimeout() time.Duration

	// Returns the client id.
	GetClientID() string

	// Releases the handler resources.
	Close()
}

// Handle serves a diagnostics stream connection until the client disconnects
// or the context is canceled.
func Handle(ctx context.Context, conn *websocket.Conn, h Handler) {
	handler := handler{
		Conn:    conn,
		Handler: h,
	}

	handler.Handle(ctx)
}

type handler struct {
	// The WebSocket connection.
	Conn *websocket.Conn

	// The stream handler.
	Handler Handler

	sendChan       chan Msg
	frameChan      chan simulation.Frame
	receiveChan    chan Msg
	sender         Sender
	receiver       Receiver
	disconnectChan chan error
}

func (h *handler) Handle(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.Handler.HandleConnect(h.Conn)

	h.disconnectChan = make(chan error, 8)
	defer func() {
		for len(h.disconnectChan) != 0 {
			<-h.disconnectChan
		}
	}()

	var wg sync.WaitGroup

	h.sendChan = make(chan Msg, sendChanSize)
	h.sender = h.Handler.Sender()

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startSending(ctx)
	}()

	h.receiveChan = make(chan Msg, sendChanSize)
	h.receiver = h.Handler.Receiver()

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startReceiving(ctx)
	}()

	h.frameChan = make(chan simulation.Frame, frameChanSize)
	stopFrames := h.Handler.HandleFrames(func(f simulation.Frame) {
		select {
		case h.frameChan <- f:
		default:
			h.Handler.HandleFrameDrop(f)
		}
	})
	defer stopFrames()

	var idleC <-chan time.Time
	resetIdle := func() {}
	idleTimeout := h.Handler.IdleTimeout()
	if idleTimeout > 0 {
		idleTimer := time.NewTimer(idleTimeout)
		defer idleTimer.Stop()

		idleC = idleTimer.C
		resetIdle = func() {
			idleTimer.Stop()
			idleTimer.Reset(idleTimeout)
		}
	}

	for ctx.Err() == nil {
		select {
		case <-ctx.Done():
			h.Handler.HandleDisconnect(ctx.Err())

		case <-idleC:
			h.disconnect(errors.New("idle connection").
				WithType(ErrTypeIdleTimeout).
				WithTag("duration", idleTimeout))

		case f := <-h.frameChan:
			h.send(Msg{Type: MsgTypeFrame, Time: f.Time, Frame: &f})

		case msg := <-h.receiveChan:
			resetIdle()

			if err := h.handleMessage(ctx, msg); err != nil {
				h.disconnect(errors.New("handling message failed").Wrap(err))
			}

		case err := <-h.disconnectChan:
			h.Handler.HandleDisconnect(err)
			// cancel context so go routines can cleanly exit
			cancel()
		}
	}

	// Unblocks the receiver.
	h.Conn.Close()
	wg.Wait()
}

func (h *handler) handleMessage(ctx context.Context, msg Msg) error {
	var err error

	switch msg.Type {
	case MsgTypePing:
		err = h.Handler.HandlePing(ctx, h.send, msg)

	case MsgTypeSelect:
		err = h.Handler.HandleSelect(ctx, h.send, msg)

	default:
		err = errors.New("unknown message type").
			WithType(ErrTypeMsgSkip).
			WithTag("msg_type", msg.Type)
	}

	if errors.IsType(err, ErrTypeMsgSkip) || errors.IsType(err, ErrTypeInvalidMsg) {
		h.send(Msg{
			Type:      MsgTypeError,
			RequestID: msg.RequestID,
			Time:      time.Now(),
			Error:     err.Error(),
		})
		return nil
	}
	return err
}

// send queues a message. Messages are dropped when the connection is closing.
func (h *handler) send(msg Msg) {
	select {
	case h.sendChan <- msg:
	default:
		h.disconnect(errors.New("send queue is full").WithTag("msg_type", msg.Type))
	}
}

func (h *handler) startSending(ctx context.Context) {
	defer func() {
		for len(h.sendChan) != 0 {
			<-h.sendChan
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-h.sendChan:
			if _, err := h.sender(msg); err != nil {
				h.disconnect(errors.New("sending message failed").Wrap(err))
				return
			}
		}
	}
}

func (h *handler) startReceiving(ctx context.Context) {
	for {
		msg, _, err := h.receiver()
		if err != nil {
			if errors.IsType(err, ErrTypeInvalidMsg) {
				h.send(Msg{Type: MsgTypeError, Time: time.Now(), Error: err.Error()})
				continue
			}

			h.disconnect(errors.New("receiving message failed").Wrap(err))
			return
		}

		select {
		case <-ctx.Done():
			return
		case h.receiveChan <- msg:
		}
	}
}

func (h *handler) disconnect(err error) {
	select {
	case h.disconnectChan <- err:
	default:
	}
}
