package transport

import (
	"context"
	"sync"
	"time"

	"github.com/The-Promised-Neverland/syncmonitor/internal/models"
	"github.com/The-Promised-Neverland/syncmonitor/pkg/logger"
	"github.com/gorilla/websocket"
)

const (
	readDeadline = 70 * time.Second
	pingPeriod   = 30 * time.Second
	writeWait    = 10 * time.Second
)

// session is one websocket connection to the transport. The client owns the
// dispatch pump; read and write pumps live for the session.
type session struct {
	client    *Client
	conn      *websocket.Conn
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

func newSession(parent context.Context, c *Client, conn *websocket.Conn) *session {
	ctx, cancel := context.WithCancel(parent)
	return &session{client: c, conn: conn, ctx: ctx, cancel: cancel}
}

func (s *session) done() <-chan struct{} {
	return s.ctx.Done()
}

func (s *session) close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// connectionMonitor keeps the read deadline fresh while pings or pongs arrive.
func (s *session) connectionMonitor() {
	_ = s.conn.SetReadDeadline(time.Now().Add(readDeadline))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(readDeadline))
	})
	s.conn.SetPingHandler(func(data string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(readDeadline))
		err := s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})
}

func (s *session) readPump() {
	defer func() {
		s.close()
		logger.Log.Info("🔴 Transport read pump stopped")
	}()
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Log.Warn("Transport read failed", "err", err)
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(readDeadline))
		f, err := decodeFrame(messageType, data)
		if err != nil {
			logger.Log.Warn("⚠️ Failed to parse transport frame", "err", err)
			continue
		}
		select {
		case s.client.incomingCh <- f:
		case <-s.done():
			return
		default:
			logger.Log.Warn("⚠️ Incoming buffer full, dropping frame", "type", f.Type)
		}
	}
}

func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
		logger.Log.Info("🔴 Transport write pump stopped")
	}()
	for {
		select {
		case msg := <-s.client.sendCh:
			if err := s.write(msg); err != nil {
				logger.Log.Warn("Transport write failed", "type", msg.Type, "err", err)
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-s.done():
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

func (s *session) write(msg models.Message) error {
	messageType, data, err := encodeFrame(msg, s.client.opts.Binary)
	if err != nil {
		return err
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(messageType, data)
}

func (s *session) runPumps() {
	s.connectionMonitor()
	go s.readPump()
	go s.writePump()
	logger.Log.Info("✅ Transport pumps started")
}

// dispatchPump hands incoming frames to their handlers for the lifetime of
// the client, so frames queued by PruneStale are delivered between sessions.
func (c *Client) dispatchPump(ctx context.Context) {
	defer logger.Log.Info("🔴 Transport dispatch pump stopped")
	for {
		select {
		case f := <-c.incomingCh:
			handler, ok := c.handlers[f.Type]
			if !ok {
				logger.Log.Debug("No handler for transport frame", "type", f.Type)
				continue
			}
			if err := handler(f); err != nil {
				logger.Log.Error("❌ Transport handler error", "type", f.Type, "err", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
