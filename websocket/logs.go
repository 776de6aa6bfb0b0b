package websocket

import (
	"context"
	goerrors "errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/aukilabs/crowdnav/simulation"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"golang.org/x/net/websocket"
)

const clientIDTag = "client_id"

// HandlerWithLogs returns a handler that logs connections and periodically
// logs a summary of the exchanged messages.
func HandlerWithLogs(h Handler, summaryInterval time.Duration) Handler {
	ctx, cancel := context.WithCancel(context.Background())

	handler := &handlerWithLogs{
		Handler:            h,
		summaryInterval:    summaryInterval,
		closeSummaryWorker: cancel,
		counter:            make(map[string]int),
	}

	if summaryInterval > 0 {
		go handler.startSummaryWorker(ctx)
	}
	return handler
}

type handlerWithLogs struct {
	Handler

	summaryInterval    time.Duration
	closeSummaryWorker func()
	counterMutex       sync.Mutex
	counter            map[string]int
}

func (h *handlerWithLogs) HandleConnect(conn *websocket.Conn) {
	h.Handler.HandleConnect(conn)

	req := conn.Request()
	logs.WithTag(clientIDTag, h.GetClientID()).
		WithTag("user_agent", req.UserAgent()).
		WithTag("remote_addr", req.RemoteAddr).
		Info("new client is connected")
}

func (h *handlerWithLogs) HandleFrameDrop(f simulation.Frame) {
	h.Handler.HandleFrameDrop(f)
	h.incCounter("dropped_frames")
}

func (h *handlerWithLogs) HandleDisconnect(err error) {
	h.Handler.HandleDisconnect(err)

	entry := logs.WithTag(clientIDTag, h.GetClientID())
	if err != nil && !isClosedConnErr(err) {
		entry = entry.WithTag("reason", err.Error())
	}
	entry.Info("client disconnected")
}

func (h *handlerWithLogs) Sender() Sender {
	send := h.Handler.Sender()

	return func(msg Msg) (int, error) {
		n, err := send(msg)
		if err != nil {
			if !isClosedConnErr(err) {
				logs.WithTag(clientIDTag, h.GetClientID()).
					WithTag("msg_type", msg.Type).
					Error(errors.New("sending message failed").Wrap(err))
			}
			return n, err
		}

		h.incCounter("sent_" + msg.Type)
		return n, nil
	}
}

func (h *handlerWithLogs) Receiver() Receiver {
	receive := h.Handler.Receiver()

	return func() (Msg, int, error) {
		msg, n, err := receive()
		if err != nil && !isClosedConnErr(err) {
			logs.WithTag(clientIDTag, h.GetClientID()).
				Error(errors.New("receiving message failed").Wrap(err))
		} else if err == nil {
			logs.WithTag(clientIDTag, h.GetClientID()).
				WithTag("msg_type", msg.Type).
				Debug("message received")
			h.incCounter("received_" + msg.Type)
		}
		return msg, n, err
	}
}

func (h *handlerWithLogs) Close() {
	h.Handler.Close()
	h.closeSummaryWorker()
	h.logSummary()
}

func (h *handlerWithLogs) startSummaryWorker(ctx context.Context) {
	ticker := time.NewTicker(h.summaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			h.logSummary()
		}
	}
}

func (h *handlerWithLogs) incCounter(key string) {
	h.counterMutex.Lock()
	defer h.counterMutex.Unlock()

	h.counter[key]++
}

func (h *handlerWithLogs) logSummary() {
	h.counterMutex.Lock()
	defer h.counterMutex.Unlock()

	if len(h.counter) == 0 {
		return
	}

	entry := logs.WithTag(clientIDTag, h.GetClientID()).
		WithTag("time_interval", h.summaryInterval)

	for k, v := range h.counter {
		entry = entry.WithTag(k, v)
		delete(h.counter, k)
	}

	entry.Info("stream summary")
}

func isClosedConnErr(err error) bool {
	return goerrors.Is(err, io.EOF) ||
		goerrors.Is(err, net.ErrClosed) ||
		goerrors.Is(err, context.Canceled)
}
