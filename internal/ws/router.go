package ws

import (
	"log/slog"
	"sync"

	"groupchat-service/internal/observability"
)

// Relay forwards locally broadcast frames to other nodes. An empty room
// means a process-wide broadcast.
type Relay interface {
	Publish(room string, payload []byte)
}

// Router maps connections to rooms and fans events out to them.
// Local deliveries and relay publishes for one room happen under the router
// lock, so every member on every node observes room events in the order
// they were broadcast. Relay.Publish must not block.
type Router struct {
	mu        sync.Mutex
	clients   map[string]*Client
	rooms     map[string]map[string]*Client
	connRooms map[string]map[string]struct{}

	relay  Relay
	logger *slog.Logger
}

func NewRouter(logger *slog.Logger) *Router {
	return &Router{
		clients:   make(map[string]*Client),
		rooms:     make(map[string]map[string]*Client),
		connRooms: make(map[string]map[string]struct{}),
		logger:    logger,
	}
}

// SetRelay enables cross-node fan-out. Call before serving traffic.
func (r *Router) SetRelay(relay Relay) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.relay = relay
}

// Register adds a connection that is not yet in any room.
func (r *Router) Register(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ID()] = c
	if _, ok := r.connRooms[c.ID()]; !ok {
		r.connRooms[c.ID()] = make(map[string]struct{})
	}
}

// Unregister removes the connection from every room at once and returns
// the rooms it was in. ok is false when the connection was not registered,
// either because it never was or because it was already removed.
func (r *Router) Unregister(c *Client) (rooms []string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c.ID()]; !ok {
		return nil, false
	}
	return r.removeLocked(c.ID()), true
}

func (r *Router) removeLocked(connID string) []string {
	joined := r.connRooms[connID]
	rooms := make([]string, 0, len(joined))
	for room := range joined {
		rooms = append(rooms, room)
		r.leaveLocked(connID, room)
	}
	delete(r.connRooms, connID)
	delete(r.clients, connID)
	return rooms
}

// Join subscribes the connection to room. It reports false when the
// connection was already subscribed or is not registered.
func (r *Router) Join(c *Client, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.joinLocked(c, room)
}

func (r *Router) joinLocked(c *Client, room string) bool {
	joined, ok := r.connRooms[c.ID()]
	if !ok {
		return false
	}
	if _, ok := joined[room]; ok {
		return false
	}
	joined[room] = struct{}{}

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		r.rooms[room] = members
	}
	members[c.ID()] = c
	return true
}

// Leave unsubscribes the connection from room. It reports false when the
// connection was not subscribed.
func (r *Router) Leave(c *Client, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(c.ID(), room)
}

func (r *Router) leaveLocked(connID, room string) bool {
	joined, ok := r.connRooms[connID]
	if !ok {
		return false
	}
	if _, ok := joined[room]; !ok {
		return false
	}
	delete(joined, room)

	if members, ok := r.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	return true
}

// InRoom reports whether the connection is subscribed to room.
func (r *Router) InRoom(c *Client, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.connRooms[c.ID()][room]
	return ok
}

// RoomsOf lists the rooms the connection is subscribed to.
func (r *Router) RoomsOf(c *Client) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	rooms := make([]string, 0, len(r.connRooms[c.ID()]))
	for room := range r.connRooms[c.ID()] {
		rooms = append(rooms, room)
	}
	return rooms
}

func (r *Router) RoomSize(room string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[room])
}

func (r *Router) ConnectionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// EvictUser removes every connection of userID from room and returns how
// many were removed.
func (r *Router) EvictUser(userID int, room string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for connID, c := range r.rooms[room] {
		if c.UserID() == userID && r.leaveLocked(connID, room) {
			evicted++
		}
	}
	return evicted
}

// JoinUser subscribes every registered connection of userID to room and
// returns how many were added.
func (r *Router) JoinUser(userID int, room string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined := 0
	for _, c := range r.clients {
		if c.UserID() != userID {
			continue
		}
		if r.joinLocked(c, room) {
			joined++
		}
	}
	return joined
}

// CloseRoom unsubscribes every connection from room.
func (r *Router) CloseRoom(room string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	closed := 0
	for connID := range r.rooms[room] {
		if r.leaveLocked(connID, room) {
			closed++
		}
	}
	return closed
}

// Broadcast delivers event to every connection in room except the one with
// id exclude, and relays it to other nodes. It returns the number of local
// deliveries.
func (r *Router) Broadcast(room, event string, data interface{}, exclude string) int {
	payload, err := encodeEvent(event, data)
	if err != nil {
		r.logger.Error("encode event failed", "event", event, "error", err)
		return 0
	}

	r.mu.Lock()
	delivered := r.deliverLocked(r.rooms[room], payload, exclude)
	if r.relay != nil {
		r.relay.Publish(room, payload)
	}
	r.mu.Unlock()

	observability.IncWSEvent("out", event)
	return delivered
}

// BroadcastAll delivers event to every registered connection on this node
// and relays it to other nodes.
func (r *Router) BroadcastAll(event string, data interface{}) int {
	payload, err := encodeEvent(event, data)
	if err != nil {
		r.logger.Error("encode event failed", "event", event, "error", err)
		return 0
	}

	r.mu.Lock()
	delivered := r.deliverLocked(r.clients, payload, "")
	if r.relay != nil {
		r.relay.Publish("", payload)
	}
	r.mu.Unlock()

	observability.IncWSEvent("out", event)
	return delivered
}

// DeliverRemote hands a frame received from another node to local
// connections without relaying it again.
func (r *Router) DeliverRemote(room string, payload []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room == "" {
		return r.deliverLocked(r.clients, payload, "")
	}
	return r.deliverLocked(r.rooms[room], payload, "")
}

// Send delivers event to a single connection.
func (r *Router) Send(c *Client, event string, data interface{}) bool {
	payload, err := encodeEvent(event, data)
	if err != nil {
		r.logger.Error("encode event failed", "event", event, "error", err)
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c.Enqueue(payload) {
		observability.IncWSEvent("out", event)
		return true
	}
	r.dropLocked(c)
	return false
}

func (r *Router) deliverLocked(targets map[string]*Client, payload []byte, exclude string) int {
	delivered := 0
	for connID, c := range targets {
		if connID == exclude {
			continue
		}
		if c.Enqueue(payload) {
			delivered++
			continue
		}
		r.dropLocked(c)
	}
	return delivered
}

// dropLocked disconnects a connection that cannot keep up. Closing the
// socket ends its read pump, which runs the regular disconnect path.
func (r *Router) dropLocked(c *Client) {
	if !c.Closed() {
		observability.IncWSDropped()
		r.logger.Warn("dropping slow connection", "conn_id", c.ID(), "user_id", c.UserID())
		c.drop()
	}
	r.removeLocked(c.ID())
}
