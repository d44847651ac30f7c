package propagate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/agorachain/agora/foundation/blockchain/database"
	"github.com/gorilla/websocket"
	"github.com/sony/gobreaker"
)

// Reconnect backoff bounds for the replica side of the channel.
const (
	backoffMin = time.Second
	backoffMax = 30 * time.Second
)

// ErrNotConnected is returned when a frame is sent while the channel to the
// proposer is down. The caller's transaction stays in the local mempool.
var ErrNotConnected = errors.New("propagation channel not connected")

// ClientConfig represents the dependencies of the client.
type ClientConfig struct {
	PeerURL   string // ws:// endpoint of the proposer's propagation channel.
	EvHandler func(v string, args ...any)

	// OnTransaction is called for every transaction frame the proposer
	// broadcasts down the channel.
	OnTransaction func(tx database.BlockTx)
}

// Client maintains the replica end of the propagation channel: it dials the
// proposer, delivers block frames to the worker, acks them, hands shared
// transaction frames to the configured callback, and carries locally
// submitted transactions up to the proposer. Outbound operations
// run through a circuit breaker so a dead peer fails fast.
type Client struct {
	peerURL string
	ev      func(v string, args ...any)
	onTx    func(tx database.BlockTx)
	breaker *gobreaker.CircuitBreaker
	blocks  chan database.BlockData

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewClient constructs a client for the specified proposer peer.
func NewClient(cfg ClientConfig) *Client {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "propagation",
		Timeout: backoffMax,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			ev("propagate: client: breaker %s -> %s", from, to)
		},
	})

	return &Client{
		peerURL: cfg.PeerURL,
		ev:      ev,
		onTx:    cfg.OnTransaction,
		breaker: breaker,
		blocks:  make(chan database.BlockData, 16),
	}
}

// Blocks returns the channel block frames are delivered on, in arrival
// order.
func (c *Client) Blocks() <-chan database.BlockData {
	return c.blocks
}

// Run dials the proposer and services the connection until the context is
// cancelled, reconnecting with exponential backoff on any failure.
func (c *Client) Run(ctx context.Context) {
	defer close(c.blocks)

	backoff := backoffMin
	for {
		if ctx.Err() != nil {
			return
		}

		if err := c.connect(ctx); err != nil {
			c.ev("propagate: client: connect %s: %s", c.peerURL, err)

			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, backoffMax)
			continue
		}

		backoff = backoffMin
		c.readFrames(ctx)
	}
}

// SendTransaction forwards a locally submitted transaction to the proposer.
func (c *Client) SendTransaction(tx database.BlockTx) error {
	msg, err := newTxMessage(tx)
	if err != nil {
		return err
	}

	_, err = c.breaker.Execute(func() (any, error) {
		return nil, c.write(msg)
	})
	return err
}

// =============================================================================

func (c *Client) connect(ctx context.Context) error {
	_, err := c.breaker.Execute(func() (any, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.peerURL, nil)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		c.ev("propagate: client: connected to %s", c.peerURL)
		return nil, nil
	})
	return err
}

// readFrames consumes frames until the connection breaks or the context is
// cancelled. Every block frame is acked before delivery so the proposer
// keeps the subscription alive.
func (c *Client) readFrames(ctx context.Context) {
	conn := c.current()
	if conn == nil {
		return
	}

	defer func() {
		conn.Close()
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	// Unblock the read loop on cancellation.
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil {
				c.ev("propagate: client: read: %s", err)
			}
			return
		}

		switch msg.Type {
		case TypeBlock:
			var blockData database.BlockData
			if err := json.Unmarshal(msg.Data, &blockData); err != nil {
				c.ev("propagate: client: bad block frame: %s", err)
				continue
			}

			if err := c.write(Message{Type: TypeAck}); err != nil {
				c.ev("propagate: client: ack: %s", err)
				return
			}

			select {
			case c.blocks <- blockData:
			case <-ctx.Done():
				return
			}

		case TypeTransaction:
			if c.onTx == nil {
				continue
			}
			var tx database.BlockTx
			if err := json.Unmarshal(msg.Data, &tx); err != nil {
				c.ev("propagate: client: bad tx frame: %s", err)
				continue
			}
			c.onTx(tx)
		}
	}
}

func (c *Client) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Client) write(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}
