package websocket

import (
	"github.com/aukilabs/crowdnav/simulation"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/net/websocket"
)

const (
	errTypeLabel = "error_type"
	msgTypeLabel = "msg_type"
)

var (
	wsConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connected_clients",
		Help: "The number of connected diagnostics clients.",
	})

	wsReceivedMsgs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_received_msgs",
		Help: "The number of messages received from WebSocket connections.",
	}, []string{msgTypeLabel})

	wsReceiveErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_receive_errors",
		Help: "The errors that occured while receiving a websocket message.",
	}, []string{errTypeLabel})

	wsSentMsgs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_sent_msgs",
		Help: "The number of messages sent to WebSocket connections.",
	}, []string{msgTypeLabel})

	wsSentBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_sent_bytes",
		Help: "The number of bytes sent to WebSocket connections.",
	}, []string{msgTypeLabel})

	wsDroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_dropped_frames",
		Help: "The number of frames not sent because a client was too slow.",
	})
)

// HandlerWithMetrics returns a handler that reports stream activity to
// Prometheus.
func HandlerWithMetrics(h Handler) Handler {
	return &handlerWithMetrics{
		Handler: h,
	}
}

type handlerWithMetrics struct {
	Handler
}

func (h *handlerWithMetrics) HandleConnect(conn *websocket.Conn) {
	wsConnectedClients.Inc()
	h.Handler.HandleConnect(conn)
}

func (h *handlerWithMetrics) HandleDisconnect(err error) {
	wsConnectedClients.Dec()
	h.Handler.HandleDisconnect(err)
}

func (h *handlerWithMetrics) HandleFrameDrop(f simulation.Frame) {
	wsDroppedFrames.Inc()
	h.Handler.HandleFrameDrop(f)
}

func (h *handlerWithMetrics) Receiver() Receiver {
	receive := h.Handler.Receiver()

	return func() (Msg, int, error) {
		msg, n, err := receive()
		if err != nil {
			wsReceiveErrors.
				With(prometheus.Labels{errTypeLabel: errors.Type(err)}).
				Inc()
			return msg, n, err
		}

		wsReceivedMsgs.
			With(prometheus.Labels{msgTypeLabel: msg.Type}).
			Inc()
		return msg, n, nil
	}
}

func (h *handlerWithMetrics) Sender() Sender {
	send := h.Handler.Sender()

	return func(msg Msg) (int, error) {
		n, err := send(msg)
		if err != nil {
			return n, err
		}

		labels := prometheus.Labels{msgTypeLabel: msg.Type}
		wsSentMsgs.With(labels).Inc()
		wsSentBytes.With(labels).Add(float64(n))
		return n, nil
	}
}
