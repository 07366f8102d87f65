package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"fleet-signage/internal/fleet"
)

const (
	GlobalRoom = "global"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 32
)

func BusRoom(busID string) string { return "bus:" + strings.TrimSpace(busID) }

type HubMetrics interface {
	WSClientsSet(n int)
	WSDroppedInc()
}

// Hub pushes landmark events to connected displays. A display joins the
// room of its bus, or the global room when it names no bus.
type Hub struct {
	log      *zap.Logger
	metrics  HubMetrics
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	rooms  map[string]map[*client]struct{}
	closed bool
}

type client struct {
	conn *websocket.Conn
	room string
	send chan []byte
	once sync.Once
}

func NewHub(logger *zap.Logger, m HubMetrics) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		log:     logger,
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// displays are served from arbitrary kiosk origins
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		rooms: make(map[string]map[*client]struct{}),
	}
}

// ServeWS upgrades the request. The optional "bus" query parameter selects
// the room.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	room := GlobalRoom
	if bus := strings.TrimSpace(r.URL.Query().Get("bus")); bus != "" {
		room = BusRoom(bus)
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn, room: room, send: make(chan []byte, sendBuffer)}
	if !h.add(c) {
		_ = conn.Close()
		return
	}
	h.log.Debug("display connected", zap.String("room", room), zap.String("remote", r.RemoteAddr))
	go h.writePump(c)
	go h.readPump(c)
}

// PublishLandmark queues the event for the bus room and the global room.
func (h *Hub) PublishLandmark(_ context.Context, ev fleet.LandmarkEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	h.broadcast(BusRoom(ev.BusID), b)
	h.broadcast(GlobalRoom, b)
	return nil
}

// Clients returns the number of connected displays.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.rooms {
		n += len(set)
	}
	return n
}

// Close disconnects every display and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*client
	for _, set := range h.rooms {
		for c := range set {
			all = append(all, c)
		}
	}
	h.rooms = make(map[string]map[*client]struct{})
	h.mu.Unlock()
	for _, c := range all {
		c.stop()
	}
	h.setGauge()
}

func (h *Hub) broadcast(room string, b []byte) {
	var slow []*client
	h.mu.RLock()
	for c := range h.rooms[room] {
		select {
		case c.send <- b:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range slow {
		h.log.Warn("dropping slow display", zap.String("room", c.room))
		if h.metrics != nil {
			h.metrics.WSDroppedInc()
		}
		h.remove(c)
	}
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	set, ok := h.rooms[c.room]
	if !ok {
		set = make(map[*client]struct{})
		h.rooms[c.room] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
	h.setGauge()
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if set, ok := h.rooms[c.room]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.rooms, c.room)
		}
	}
	h.mu.Unlock()
	c.stop()
	h.setGauge()
}

func (h *Hub) setGauge() {
	if h.metrics != nil {
		h.metrics.WSClientsSet(h.Clients())
	}
}

func (c *client) stop() {
	c.once.Do(func() { close(c.send) })
}

func (h *Hub) writePump(c *client) {
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
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// readPump only watches for close and pong frames; displays send nothing.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Debug("display read error", zap.Error(err))
			}
			return
		}
	}
}
