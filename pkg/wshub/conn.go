package wshub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/uuid"
)

const (
	pingTimeout  = 3 * time.Second
	writeTimeout = 5 * time.Second
)

type Conn struct {
	conn     *websocket.Conn
	entityID uuid.UUID
	doneCtx  context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
}

func NewConn(ctx context.Context, entityID uuid.UUID, conn *websocket.Conn) *Conn {
	ctx, cancel := context.WithCancel(ctx)

	return &Conn{
		conn:     conn,
		entityID: entityID,
		doneCtx:  ctx,
		cancel:   cancel,
	}
}

func (c *Conn) EntityID() uuid.UUID {
	return c.entityID
}

func (c *Conn) Health() error {
	if c.conn == nil {
		return errors.New("connection is nil")
	}

	select {
	case <-c.doneCtx.Done():
		return errors.New("connection context cancelled")
	default:
	}

	if err := c.conn.WriteControl(
		websocket.PingMessage,
		[]byte("ping"),
		time.Now().Add(pingTimeout),
	); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	return nil
}

// Send writes msg as JSON. A write deadline is set so that one stalled
// consumer cannot hold the connection mutex indefinitely.
func (c *Conn) Send(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.Health(); err != nil {
		return fmt.Errorf("send failed: connection not healthy: %w", err)
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(msg)
}

// Listen reads messages until the connection is closed and passes the raw
// payload to the handler. A handler error stops the loop.
func (c *Conn) Listen(handler func(data []byte) error) error {
	for {
		select {
		case <-c.doneCtx.Done():
			return errors.New("listen stopped: context done")
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				return fmt.Errorf("read failed: %w", err)
			}
			if err := handler(data); err != nil {
				return fmt.Errorf("handler failed: %w", err)
			}
		}
	}
}

// CloseWithReason sends a close frame carrying a typed reason
// (e.g. "no-token", "invalid-token") before closing the connection.
func (c *Conn) CloseWithReason(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		deadline := time.Now().Add(writeTimeout)
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	}

	return c.closeLocked()
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closeLocked()
}

func (c *Conn) closeLocked() error {
	if c.cancel != nil {
		c.cancel()
	}

	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
