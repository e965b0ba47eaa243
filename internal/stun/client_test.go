package stun

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/pion/stun/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startResponder runs a minimal STUN server that answers binding requests
// with the sender's address.
func startResponder(t *testing.T) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })

	go func() {
		buf := make([]byte, 1500)
		for {
			n, addr, err := pc.ReadFrom(buf)
			if err != nil {
				return
			}
			req := &stun.Message{Raw: append([]byte(nil), buf[:n]...)}
			if err := req.Decode(); err != nil {
				continue
			}
			udpAddr := addr.(*net.UDPAddr)
			resp, err := stun.Build(
				stun.NewTransactionIDSetter(req.TransactionID),
				stun.BindingSuccess,
				&stun.XORMappedAddress{IP: udpAddr.IP, Port: udpAddr.Port},
				stun.Fingerprint,
			)
			if err != nil {
				continue
			}
			_, _ = pc.WriteTo(resp.Raw, addr)
		}
	}()
	return pc.LocalAddr().String()
}

func TestRefresh(t *testing.T) {
	c := NewClient(startResponder(t))
	assert.True(t, c.LastRefresh().IsZero())

	d, err := c.Refresh(context.Background())

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(d.Endpoint, "127.0.0.1:"))
	assert.True(t, d.Changed)
	assert.Equal(t, d.Endpoint, c.Endpoint())
	assert.False(t, c.LastRefresh().IsZero())

	again, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, again.Changed)
}

func TestRefresh_NoServer(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := pc.LocalAddr().String()
	pc.Close()

	c := NewClient(addr)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = c.Refresh(ctx)
	assert.Error(t, err)
	assert.Empty(t, c.Endpoint())
}

func TestWatch_ReportsChange(t *testing.T) {
	c := NewClient(startResponder(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan string, 4)
	go c.Watch(ctx, time.Hour, func(endpoint string) { changes <- endpoint })

	select {
	case ep := <-changes:
		assert.True(t, strings.HasPrefix(ep, "127.0.0.1:"))
	case <-time.After(3 * time.Second):
		t.Fatal("initial query did not report an endpoint")
	}
}

func TestNewClient_DefaultServer(t *testing.T) {
	assert.Equal(t, DefaultServer, NewClient("").server)
}
