package transport

import (
	"fmt"

	"github.com/The-Promised-Neverland/syncmonitor/internal/models"
	"github.com/The-Promised-Neverland/syncmonitor/pkg/logger"
)

func (c *Client) handleOpen(f frame) error {
	p := decodePayload(f, openedFrom)
	c.touch(p.ConnectionID, p.InstanceID, true)
	c.mu.RLock()
	fn := c.onOpen
	c.mu.RUnlock()
	if fn != nil {
		fn(p)
	}
	return nil
}

func (c *Client) handleClosed(f frame) error {
	p := decodePayload(f, closedFrom)
	c.forget(p.ConnectionID)
	c.mu.RLock()
	fn := c.onClosed
	c.mu.RUnlock()
	if fn != nil {
		fn(p)
	}
	return nil
}

func (c *Client) handleError(f frame) error {
	p := decodePayload(f, errorFrom)
	c.touch(p.ConnectionID, p.InstanceID, false)
	c.mu.RLock()
	fn := c.onError
	c.mu.RUnlock()
	if fn != nil {
		fn(p)
	}
	return nil
}

func (c *Client) handleProgress(f frame) error {
	p := decodePayload(f, progressFrom)
	c.touch(p.ConnectionID, p.InstanceID, false)
	c.mu.RLock()
	fn := c.onProgress
	c.mu.RUnlock()
	if fn != nil {
		fn(p)
	}
	return nil
}

func (c *Client) handleCompleted(f frame) error {
	p := decodePayload(f, completedFrom)
	c.touch(p.ConnectionID, p.InstanceID, false)
	c.mu.RLock()
	fn := c.onCompleted
	c.mu.RUnlock()
	if fn != nil {
		fn(p)
	}
	return nil
}

func (c *Client) handleReady(f frame) error {
	var p models.ReadyState
	if err := f.decode(&p); err != nil {
		return fmt.Errorf("decode %s: %w", f.Type, err)
	}
	if c.ready.Swap(p.Ready) != p.Ready {
		logger.Log.Info("Transport ready state changed", "ready", p.Ready)
	}
	return nil
}
