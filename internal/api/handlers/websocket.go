package handlers

import (
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/anstrom/netsweep/internal/api/middleware"
	"github.com/anstrom/netsweep/internal/logging"
	"github.com/anstrom/netsweep/internal/metrics"
	"github.com/anstrom/netsweep/internal/orchestrator"
)

const (
	writeWait       = 10 * time.Second                                   // Time allowed to write a message to the peer
	pongWait        = 60 * time.Second                                   // Time to read next pong message from peer
	pingPeriodRatio = 0.9                                                // Ratio of pongWait for pingPeriod
	pingPeriod      = time.Duration(float64(pongWait) * pingPeriodRatio) // Send pings to peer (must be < pongWait)
	maxMessageSize  = 512                                                // Maximum message size allowed from peer
	bufferSize      = 256                                                // Size of the broadcast channel buffer
	clientBuffer    = 64                                                 // Per-client queue before it is dropped
)

// EventHub fans sweep events out to websocket clients. It implements
// orchestrator.Notifier.
type EventHub struct {
	upgrader websocket.Upgrader
	logger   *logging.Logger
	metrics  *metrics.PrometheusMetrics

	clients    map[*eventClient]struct{}
	register   chan *eventClient
	unregister chan *eventClient
	broadcast  chan []byte
	done       chan struct{}
	stopped    chan struct{}
	closeOnce  sync.Once
	connected  atomic.Int64
}

type eventClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewEventHub creates a hub and starts its loop. allowedOrigins follows the
// CORS setting; "*" or an empty list accepts any origin.
func NewEventHub(allowedOrigins []string, logger *logging.Logger, m *metrics.PrometheusMetrics) *EventHub {
	h := &EventHub{
		logger:     logger.WithComponent("api.events"),
		metrics:    m,
		clients:    make(map[*eventClient]struct{}),
		register:   make(chan *eventClient),
		unregister: make(chan *eventClient),
		broadcast:  make(chan []byte, bufferSize),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}

	go h.run()
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

// Publish queues an event for every connected client. It never blocks; when
// the queue is full the event is dropped.
func (h *EventHub) Publish(event orchestrator.Event) {
	msg, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to encode event", "type", event.Type, "error", err)
		return
	}

	select {
	case <-h.done:
	case h.broadcast <- msg:
	default:
		h.logger.Warn("Event queue full, dropping event", "type", event.Type)
	}
}

// Clients returns the number of connected clients.
func (h *EventHub) Clients() int {
	return int(h.connected.Load())
}

// ServeWS upgrades the request and streams events until the client leaves.
//
//	@Summary		Event stream
//	@Description	Websocket stream of scan.started, scan.completed, scan.failed and device.updated events.
//	@Tags			system
//	@Success		101
//	@Router			/events [get]
func (h *EventHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r)

	select {
	case <-h.done:
		writeStatusError(w, r, http.StatusServiceUnavailable, "Event stream is shutting down")
		return
	default:
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		h.logger.Warn("Failed to upgrade websocket connection", "request_id", requestID, "error", err)
		return
	}

	client := &eventClient{conn: conn, send: make(chan []byte, clientBuffer)}
	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}
	h.logger.Debug("Event client connected", "request_id", requestID, "remote_addr", middleware.ClientIP(r))

	go h.writePump(client)
	h.readPump(client)

	select {
	case h.unregister <- client:
	case <-h.done:
	}
	h.logger.Debug("Event client disconnected", "request_id", requestID)
}

// Close disconnects every client and stops the hub.
func (h *EventHub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		<-h.stopped
	})
}

func (h *EventHub) run() {
	defer close(h.stopped)

	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.updateCount()

		case c := <-h.unregister:
			h.drop(c)

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.logger.Warn("Event client too slow, disconnecting")
					h.drop(c)
				}
			}

		case <-h.done:
			for c := range h.clients {
				h.drop(c)
			}
			return
		}
	}
}

// drop removes c; closing send makes its write pump say goodbye.
func (h *EventHub) drop(c *eventClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.updateCount()
}

func (h *EventHub) updateCount() {
	if h.metrics != nil {
		h.metrics.SetEventClients(len(h.clients))
	}
	h.connected.Store(int64(len(h.clients)))
}

// readPump discards client messages; it exists to process pongs and
// notice disconnects.
func (h *EventHub) readPump(c *eventClient) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("Event client read error", "error", err)
			}
			return
		}
	}
}

func (h *EventHub) writePump(c *eventClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
