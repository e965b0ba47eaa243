// Package stun resolves the public address of the local node so it can be
// shown as the node instance's endpoint.
package stun

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/The-Promised-Neverland/syncmonitor/pkg/logger"
	"github.com/pion/stun/v2"
)

const (
	DefaultServer  = "stun.l.google.com:19302"
	refreshTimeout = 5 * time.Second
	retransmitRTO  = 500 * time.Millisecond
)

var errNoMappedAddress = errors.New("binding response carried no mapped address")

// Client keeps the node's most recently observed public endpoint.
type Client struct {
	server string

	mu          sync.RWMutex
	endpoint    string
	lastRefresh time.Time
}

// Discovery is the outcome of one refresh.
type Discovery struct {
	Endpoint string
	Changed  bool
}

func NewClient(server string) *Client {
	if server == "" {
		server = DefaultServer
	}
	return &Client{server: server}
}

// Endpoint returns the last discovered host:port, or "" before the first
// successful refresh.
func (c *Client) Endpoint() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endpoint
}

func (c *Client) LastRefresh() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastRefresh
}

// Refresh sends one binding request and records the mapped address.
func (c *Client) Refresh(ctx context.Context) (Discovery, error) {
	endpoint, err := c.mappedAddress(ctx)
	if err != nil {
		return Discovery{}, err
	}

	c.mu.Lock()
	changed := c.endpoint != endpoint
	c.endpoint = endpoint
	c.lastRefresh = time.Now()
	c.mu.Unlock()

	if changed {
		logger.Log.Info("🌐 Node public endpoint updated", "endpoint", endpoint, "server", c.server)
	}
	return Discovery{Endpoint: endpoint, Changed: changed}, nil
}

func (c *Client) mappedAddress(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", c.server)
	if err != nil {
		return "", fmt.Errorf("dial stun server %s: %w", c.server, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	agent, err := stun.NewClient(conn, stun.WithRTO(retransmitRTO))
	if err != nil {
		return "", fmt.Errorf("open stun session: %w", err)
	}
	defer agent.Close()

	var (
		mapped stun.XORMappedAddress
		resErr error
	)
	req := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	if err := agent.Do(req, func(ev stun.Event) {
		if ev.Error != nil {
			resErr = ev.Error
			return
		}
		if err := mapped.GetFrom(ev.Message); err != nil {
			resErr = fmt.Errorf("%w: %v", errNoMappedAddress, err)
		}
	}); err != nil {
		return "", fmt.Errorf("binding request: %w", err)
	}
	if resErr != nil {
		return "", resErr
	}
	return net.JoinHostPort(mapped.IP.String(), strconv.Itoa(mapped.Port)), nil
}

// Watch refreshes now and then every interval until ctx is done. onChange
// receives each endpoint that differs from the previous one.
func (c *Client) Watch(ctx context.Context, interval time.Duration, onChange func(endpoint string)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		d, err := c.Refresh(ctx)
		switch {
		case err != nil:
			logger.Log.Warn("Public endpoint refresh failed", "server", c.server, "err", err)
		case d.Changed && onChange != nil:
			onChange(d.Endpoint)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
