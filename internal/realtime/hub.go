package realtime

import (
	"sort"
	"sync"

	"github.com/jwalitptl/triage-api/pkg/logger"
	"github.com/jwalitptl/triage-api/pkg/metrics"
)

// Route selects the recipients of a broadcast.
type Route struct {
	// All targets every connection; otherwise only members of Rooms.
	All   bool     `json:"all,omitempty"`
	Rooms []string `json:"rooms,omitempty"`
	// ExceptStaff skips connections bound to this staff member.
	ExceptStaff string `json:"except_staff,omitempty"`
}

// Encoder renders an outbound frame stamped with seq.
type Encoder func(seq uint64) ([]byte, error)

// Hub tracks connections and their room memberships. Client.rooms and
// Client.staffID are owned by the hub and only touched under mu. seq is
// assigned under mu too, so every client's queue is in seq order.
type Hub struct {
	mu      sync.RWMutex
	seq     uint64
	rooms   map[string]map[*Client]struct{}
	all     map[*Client]struct{}
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewHub(log *logger.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		rooms:   make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  log.With("component", "realtime_hub"),
		metrics: m,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[c]; ok {
		return
	}
	h.all[c] = struct{}{}
	h.metrics.GatewayConnections.Inc()
}

// Unregister removes the client from every room and closes its send
// channel. Calling it twice is harmless.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(c)
}

// Join reports false when the client is no longer registered.
func (h *Hub) Join(c *Client, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[c]; !ok {
		return false
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][c] = struct{}{}
	c.rooms[room] = struct{}{}
	return true
}

// Leave reports whether the client was a member of room.
func (h *Hub) Leave(c *Client, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := c.rooms[room]; !ok {
		return false
	}
	h.leave(c, room)
	return true
}

// Bind associates the connection with a staff member.
func (h *Hub) Bind(c *Client, staffID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.staffID = staffID
}

func (h *Hub) StaffOf(c *Client) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return c.staffID
}

// Rooms returns the client's rooms in name order.
func (h *Hub) Rooms(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Broadcast stamps one frame and queues it for every connection selected by
// r, returning how many accepted it. A connection whose buffer is full is
// dropped. Nothing is stamped when no connection matches.
func (h *Hub) Broadcast(r Route, encode Encoder) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var targets map[*Client]struct{}
	if r.All {
		targets = h.all
	} else {
		targets = make(map[*Client]struct{})
		for _, room := range r.Rooms {
			for c := range h.rooms[room] {
				targets[c] = struct{}{}
			}
		}
	}

	// deliver may remove from h.all, so collect first
	recipients := make([]*Client, 0, len(targets))
	for c := range targets {
		if r.ExceptStaff != "" && c.staffID == r.ExceptStaff {
			continue
		}
		recipients = append(recipients, c)
	}
	if len(recipients) == 0 {
		return 0, nil
	}

	msg, err := h.stamp(encode)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, c := range recipients {
		if h.deliver(c, msg) {
			delivered++
		}
	}
	return delivered, nil
}

// Send stamps and queues a frame for one connection.
func (h *Hub) Send(c *Client, encode Encoder) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[c]; !ok {
		return false, nil
	}
	msg, err := h.stamp(encode)
	if err != nil {
		return false, err
	}
	return h.deliver(c, msg), nil
}

// stamp consumes a sequence number only when encoding succeeds; mu must be
// held for writing.
func (h *Hub) stamp(encode Encoder) ([]byte, error) {
	msg, err := encode(h.seq + 1)
	if err != nil {
		return nil, err
	}
	h.seq++
	return msg, nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) RoomCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Close drops every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.all {
		h.remove(c)
	}
}

// deliver never blocks; mu must be held for writing.
func (h *Hub) deliver(c *Client, msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		h.logger.Warn("dropping slow client", "client_id", c.id, "staff_id", c.staffID)
		h.metrics.GatewayDropped.Inc()
		h.remove(c)
		return false
	}
}

func (h *Hub) remove(c *Client) {
	if _, ok := h.all[c]; !ok {
		return
	}
	for room := range c.rooms {
		h.leave(c, room)
	}
	delete(h.all, c)
	close(c.send)
	h.metrics.GatewayConnections.Dec()
}

func (h *Hub) leave(c *Client, room string) {
	delete(c.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}
