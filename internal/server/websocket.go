package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/kode4food/flownode/internal/events"
	"github.com/kode4food/flownode/pkg/api"
	"github.com/kode4food/flownode/pkg/log"
)

type (
	// Client represents a WebSocket client connection for event streaming
	Client struct {
		conn      *websocket.Conn
		consumer  events.Subscription
		filter    events.Filter
		describe  DescribeFunc
		closeOnce sync.Once
	}

	// DescribeFunc returns the current state of a process. A subscribing
	// client receives it before any event of that process
	DescribeFunc func(context.Context, api.ProcessID) (
		*api.ProcessResponse, error,
	)
)

const (
	writeWait          = 10 * time.Second
	pongWait           = 60 * time.Second
	pingPeriod         = (pongWait * 9) / 10
	maxMessageSize     = 512
	wsBufferSize       = 1024
	incomingBufferSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  wsBufferSize,
	WriteBufferSize: wsBufferSize,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWebSocket upgrades an HTTP connection to WebSocket and streams hub
// events matching the client's subscription. The process and type query
// parameters subscribe at connect time
func HandleWebSocket(
	hub *events.Hub, w http.ResponseWriter, r *http.Request, d DescribeFunc,
) *Client {
	consumer := hub.Subscribe()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		consumer.Close()
		slog.Error("WebSocket upgrade failed",
			log.Error(err))
		return nil
	}

	client := &Client{
		conn:     conn,
		consumer: consumer,
		filter:   func(*api.Event) bool { return false },
		describe: d,
	}

	q := r.URL.Query()
	if q.Has("process") || q.Has("type") {
		sub := &api.ClientSubscription{
			ProcessID: api.ProcessID(q.Get("process")),
		}
		for _, t := range q["type"] {
			sub.EventTypes = append(sub.EventTypes, api.EventType(t))
		}
		client.filter = BuildFilter(sub)
	}
	return client
}

func (s *Server) handleWebSocket(c *gin.Context) {
	client := HandleWebSocket(s.engine.Hub(), c.Writer, c.Request,
		s.engine.DescribeProcess,
	)
	if client == nil {
		return
	}
	s.registerWebSocket(client)
	go func() {
		defer s.unregisterWebSocket(client)
		client.run()
	}()
}

// Close ends the client's stream and closes its connection
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.consumer.Close()
		_ = c.conn.Close()
	})
}

func (c *Client) run() {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	incoming := make(chan []byte, incomingBufferSize)
	go c.readMessages(incoming)

	for {
		select {
		case message, ok := <-incoming:
			if !ok {
				return
			}
			c.handleSubscribe(message)

		case ev, ok := <-c.consumer.Receive():
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if !c.sendEventIfMatched(ev) {
				return
			}

		case <-ticker.C:
			if !c.sendPing() {
				return
			}
		}
	}
}

func (c *Client) readMessages(incoming chan []byte) {
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			close(incoming)
			return
		}
		incoming <- message
	}
}

func (c *Client) handleSubscribe(message []byte) {
	var sub api.SubscribeRequest
	if err := json.Unmarshal(message, &sub); err != nil {
		slog.Error("Failed to parse WebSocket message",
			log.Error(err))
		return
	}

	if sub.Type != "subscribe" {
		return
	}

	c.filter = BuildFilter(&sub.Data)
	c.sendSubscribed(sub.Data.ProcessID)
}

func (c *Client) sendSubscribed(pid api.ProcessID) {
	msg := api.SubscribedResult{Type: "subscribed"}
	if pid != "" && c.describe != nil {
		res, err := c.describe(context.Background(), pid)
		if err != nil {
			slog.Warn("Failed to describe subscribed process",
				log.ProcessID(pid),
				log.Error(err))
		}
		msg.Process = res
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		slog.Error("WebSocket write failed",
			slog.String("context", "subscribed"),
			log.Error(err))
	}
}

func (c *Client) sendEventIfMatched(ev *api.Event) bool {
	if ev == nil || !c.filter(ev) {
		return true
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(ev); err != nil {
		slog.Error("WebSocket write failed",
			log.Error(err))
		return false
	}
	return true
}

func (c *Client) sendPing() bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.conn.WriteMessage(websocket.PingMessage, nil)
	return err == nil
}

// BuildFilter creates an event filter from a client subscription. A
// subscription naming neither a process nor event types matches every
// event
func BuildFilter(sub *api.ClientSubscription) events.Filter {
	var filters []events.Filter
	if sub.ProcessID != "" {
		filters = append(filters, events.ForProcess(sub.ProcessID))
	}
	if len(sub.EventTypes) > 0 {
		filters = append(filters, events.ForTypes(sub.EventTypes...))
	}

	switch len(filters) {
	case 0:
		return events.All
	case 1:
		return filters[0]
	default:
		return events.And(filters...)
	}
}
