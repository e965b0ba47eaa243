package transport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/The-Promised-Neverland/syncmonitor/internal/models"
	"github.com/The-Promised-Neverland/syncmonitor/pkg/logger"
	"github.com/The-Promised-Neverland/syncmonitor/pkg/utils"
	"github.com/gorilla/websocket"
)

var (
	ErrNotConnected   = errors.New("transport not connected")
	ErrSendBufferFull = errors.New("send buffer full")
)

// Close code reported for connections aged out locally.
const CloseAbnormal = websocket.CloseAbnormalClosure

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type Options struct {
	URL            string
	InstanceID     string
	StaleTimeout   time.Duration
	ReconnectDelay time.Duration
	// Binary sends control frames as msgpack instead of JSON.
	Binary bool
	Clock  Clock
}

type trackedConn struct {
	instanceID string
	opened     time.Time
	lastSeen   time.Time
}

// Client subscribes to the peer transport's event socket, tracks the
// connections it reports and hands typed notifications to the registered
// callbacks.
type Client struct {
	opts       Options
	handlers   map[string]func(frame) error
	sendCh     chan models.Message
	incomingCh chan frame

	mu      sync.RWMutex
	session *session

	onOpen      func(models.ConnectionOpened)
	onClosed    func(models.ConnectionClosed)
	onError     func(models.ConnectionError)
	onProgress  func(models.ProgressSnapshot)
	onCompleted func(models.SyncCompleted)

	connsMu sync.Mutex
	conns   map[string]*trackedConn

	ready        atomic.Bool
	dispatchOnce sync.Once
}

func NewClient(opts Options) *Client {
	if opts.StaleTimeout <= 0 {
		opts.StaleTimeout = time.Minute
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	c := &Client{
		opts:       opts,
		sendCh:     make(chan models.Message, 256),
		incomingCh: make(chan frame, 256),
		conns:      make(map[string]*trackedConn),
	}
	c.handlers = map[string]func(frame) error{
		models.TransportConnectionOpen:   c.handleOpen,
		models.TransportConnectionClosed: c.handleClosed,
		models.TransportConnectionError:  c.handleError,
		models.TransportSyncProgress:     c.handleProgress,
		models.TransportSyncCompleted:    c.handleCompleted,
		models.TransportReady:            c.handleReady,
	}
	return c
}

func (c *Client) OnConnectionOpen(fn func(models.ConnectionOpened)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onOpen = fn
}

func (c *Client) OnConnectionClosed(fn func(models.ConnectionClosed)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClosed = fn
}

func (c *Client) OnConnectionError(fn func(models.ConnectionError)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

func (c *Client) OnSyncProgress(fn func(models.ProgressSnapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onProgress = fn
}

func (c *Client) OnSyncCompleted(fn func(models.SyncCompleted)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCompleted = fn
}

// Run keeps a session to the transport open until ctx is cancelled,
// reconnecting after ReconnectDelay whenever the session drops.
func (c *Client) Run(ctx context.Context) {
	c.dispatchOnce.Do(func() { go c.dispatchPump(ctx) })
	for {
		if ctx.Err() != nil {
			return
		}
		s, err := c.connect(ctx)
		if err != nil {
			logger.Log.Error("Failed to connect to transport", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.opts.ReconnectDelay):
			}
			continue
		}
		s.runPumps()
		select {
		case <-s.done():
			c.detach(s)
			logger.Log.Warn("Transport session dropped, reconnecting", "delay", c.opts.ReconnectDelay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.opts.ReconnectDelay):
			}
		case <-ctx.Done():
			c.detach(s)
			s.close()
			return
		}
	}
}

func (c *Client) connect(ctx context.Context) (*session, error) {
	wsURL, err := utils.BuildWebSocketURL(c.opts.URL, c.opts.InstanceID)
	if err != nil {
		return nil, err
	}
	logger.Log.Info("Attempting transport connection", "url", wsURL)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	s := newSession(ctx, c, conn)
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	logger.Log.Info("Connected to transport", "url", wsURL)
	return s, nil
}

func (c *Client) detach(s *session) {
	c.mu.Lock()
	if c.session == s {
		c.session = nil
	}
	c.mu.Unlock()
	c.ready.Store(false)
}

// Connected reports whether a transport session is currently open.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session != nil
}

// Ready reports the last transport:ready state seen on the current session.
func (c *Client) Ready() bool {
	return c.ready.Load()
}

func (c *Client) Send(msg models.Message) error {
	c.mu.RLock()
	s := c.session
	c.mu.RUnlock()
	if s == nil {
		return ErrNotConnected
	}
	select {
	case <-s.done():
		return ErrNotConnected
	case c.sendCh <- msg:
		return nil
	default:
		logger.Log.Warn("Send buffer full, dropping message", "type", msg.Type)
		return ErrSendBufferFull
	}
}

// ActiveConnections returns the ids of connections the transport has
// reported open and not yet closed, sorted.
func (c *Client) ActiveConnections() []string {
	c.connsMu.Lock()
	defer c.connsMu.Unlock()
	ids := make([]string, 0, len(c.conns))
	for id := range c.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PruneStale asks the transport to sweep its own connections and ages out
// any tracked connection idle for longer than StaleTimeout. Aged-out
// connections are reported through the closed callback with CloseAbnormal.
func (c *Client) PruneStale(ctx context.Context) error {
	if err := c.Send(models.Message{Type: models.TransportSweep}); err != nil && !errors.Is(err, ErrNotConnected) {
		logger.Log.Warn("Failed to request transport sweep", "err", err)
	}

	now := c.opts.Clock.Now()
	cutoff := now.Add(-c.opts.StaleTimeout)
	var expired []models.ConnectionClosed
	c.connsMu.Lock()
	for id, tc := range c.conns {
		if tc.lastSeen.Before(cutoff) {
			expired = append(expired, models.ConnectionClosed{
				ConnectionID: id,
				InstanceID:   tc.instanceID,
				Code:         CloseAbnormal,
				Duration:     now.Sub(tc.opened).Milliseconds(),
			})
			delete(c.conns, id)
		}
	}
	c.connsMu.Unlock()

	for _, p := range expired {
		logger.Log.Info("Aging out stale connection", "connection_id", p.ConnectionID, "idle_limit", c.opts.StaleTimeout)
		select {
		case c.incomingCh <- syntheticClosed(p):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close drops the current session. Run reconnects unless its context is done.
func (c *Client) Close() error {
	c.mu.Lock()
	s := c.session
	c.session = nil
	c.mu.Unlock()
	c.ready.Store(false)
	if s == nil {
		return nil
	}
	return s.close()
}

func (c *Client) touch(connectionID, instanceID string, opened bool) {
	if connectionID == "" {
		return
	}
	now := c.opts.Clock.Now()
	c.connsMu.Lock()
	defer c.connsMu.Unlock()
	tc, ok := c.conns[connectionID]
	if !ok || opened {
		tc = &trackedConn{opened: now}
		c.conns[connectionID] = tc
	}
	if instanceID != "" {
		tc.instanceID = instanceID
	}
	tc.lastSeen = now
}

func (c *Client) forget(connectionID string) {
	c.connsMu.Lock()
	defer c.connsMu.Unlock()
	delete(c.conns, connectionID)
}
