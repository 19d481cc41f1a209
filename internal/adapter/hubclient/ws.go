package hubclient

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/models"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/types"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/logger"
	wrap "github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/logger/wrapper"
)

// WSClient is the vehicle's persistent push channel to the hub. It dials
// lazily, re-dials after any write failure and holds exactly one socket.
type WSClient struct {
	url   string
	token string
	l     logger.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewWSClient(url, token string, l logger.Logger) *WSClient {
	return &WSClient{
		url:   url,
		token: token,
		l:     l,
	}
}

// PushLive sends one fix over the socket, dialing first if needed. Any
// failure drops the socket so the next call starts fresh; the caller's
// retry queue owns the fix from there.
func (c *WSClient) PushLive(ctx context.Context, fix models.PositionFix) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.dialLocked(ctx); err != nil {
			return fmt.Errorf("%w: %w", types.ErrHubUnreachable, err)
		}
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
	}

	if err := c.conn.WriteJSON(fix); err != nil {
		c.closeLocked()
		return fmt.Errorf("%w: %w", types.ErrHubUnreachable, err)
	}

	return nil
}

func (c *WSClient) dialLocked(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.conn = conn
	c.l.Info(wrap.WithAction(ctx, "hub_ws_connected"), "connected to hub", "url", c.url)

	return nil
}

func (c *WSClient) closeLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// Close tears down the socket.
func (c *WSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}
