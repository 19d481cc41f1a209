package wshub

import (
	"context"
	"errors"
	"sync"

	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/logger"
	wrap "github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/logger/wrapper"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/uuid"
)

var (
	ErrEmptyConn      = errors.New("connection is empty")
	ErrConnIsNotFound = errors.New("connection not found")
)

// RoomHub owns every active WebSocket connection and the named multicast
// rooms they join. Constructed per hub instance; membership sets live here
// and nowhere else, so hubs can be created and torn down independently.
type RoomHub struct {
	clients map[uuid.UUID]*Conn
	rooms   map[string]map[uuid.UUID]*Conn
	l       logger.Logger
	mu      sync.Mutex
}

func NewRoomHub(l logger.Logger) *RoomHub {
	return &RoomHub{
		clients: make(map[uuid.UUID]*Conn),
		rooms:   make(map[string]map[uuid.UUID]*Conn),
		l:       l,
	}
}

// Add registers a new connection.
// If a connection with the same entityID already exists it is closed
// and replaced; its room memberships are dropped.
func (h *RoomHub) Add(newConn *Conn) error {
	if newConn == nil {
		return ErrEmptyConn
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := wrap.WithAction(context.Background(), "add_ws_connection")

	if existing, ok := h.clients[newConn.entityID]; ok {
		h.l.Warn(ctx,
			"replacing existing connection",
			"entity_id", existing.entityID,
		)
		h.leaveAllLocked(existing.entityID)
		if err := existing.Close(); err != nil {
			h.l.Warn(ctx,
				"failed to close existing conn",
				"entity_id", existing.entityID,
				"err", err.Error(),
			)
		}
	}

	h.clients[newConn.entityID] = newConn

	return nil
}

// Join places a registered connection into the named room.
func (h *RoomHub) Join(room string, entityID uuid.UUID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.clients[entityID]
	if !ok {
		return ErrConnIsNotFound
	}

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[uuid.UUID]*Conn)
		h.rooms[room] = members
	}
	members[entityID] = conn

	return nil
}

// Leave removes the connection from one room. Empty rooms are deleted so
// membership maps do not grow unboundedly with churn.
func (h *RoomHub) Leave(room string, entityID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[room]; ok {
		delete(members, entityID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Remove closes the connection and removes it from every room it joined.
func (h *RoomHub) Remove(entityID uuid.UUID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := wrap.WithAction(context.Background(), "ws_connection_remove")

	conn, ok := h.clients[entityID]
	if !ok {
		h.l.Warn(ctx,
			"remove called for unknown entity",
			"entity_id", entityID,
		)
		return ErrConnIsNotFound
	}

	h.leaveAllLocked(entityID)

	if err := conn.Close(); err != nil {
		h.l.Warn(ctx,
			"failed to close conn",
			"entity_id", conn.entityID,
			"err", err.Error(),
		)
	}

	delete(h.clients, entityID)

	return nil
}

func (h *RoomHub) leaveAllLocked(entityID uuid.UUID) {
	for room, members := range h.rooms {
		delete(members, entityID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Broadcast sends msg to every member of the room and returns the number of
// successful deliveries. Failed sends are logged and skipped: a slow or dead
// consumer must never stall the caller's ingestion path.
func (h *RoomHub) Broadcast(room string, msg any) int {
	h.mu.Lock()
	members := make([]*Conn, 0, len(h.rooms[room]))
	for _, conn := range h.rooms[room] {
		members = append(members, conn)
	}
	h.mu.Unlock()

	delivered := 0
	for _, conn := range members {
		if err := conn.Send(msg); err != nil {
			ctx := wrap.WithAction(context.Background(), "room_broadcast")
			h.l.Debug(ctx,
				"failed to deliver to room member",
				"room", room,
				"entity_id", conn.entityID,
				"err", err.Error(),
			)
			continue
		}
		delivered++
	}
	return delivered
}

// SendTo sends a message to a single client by ID.
// Returns ErrConnIsNotFound if the connection does not exist.
func (h *RoomHub) SendTo(id uuid.UUID, msg any) error {
	h.mu.Lock()
	conn, ok := h.clients[id]
	h.mu.Unlock()

	if !ok {
		return ErrConnIsNotFound
	}
	return conn.Send(msg)
}

// GetConn returns the connection for the given ID.
func (h *RoomHub) GetConn(id uuid.UUID) (*Conn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.clients[id]
	if !ok {
		return nil, ErrConnIsNotFound
	}
	return conn, nil
}

// Rooms returns the names of all rooms that currently have members.
func (h *RoomHub) Rooms() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	names := make([]string, 0, len(h.rooms))
	for name := range h.rooms {
		names = append(names, name)
	}
	return names
}

// Len returns the number of active connections.
func (h *RoomHub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close closes every websocket connection.
func (h *RoomHub) Close() {
	ctx := wrap.WithAction(context.Background(), "hub_close")

	// copy clients under the lock
	h.mu.Lock()
	ids := make([]uuid.UUID, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	// close outside the lock
	for _, id := range ids {
		_ = h.Remove(id)
	}

	h.l.Info(ctx, "all websocket connections closed gracefully")
}
