package propagate

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/agorachain/agora/foundation/blockchain/database"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Timeouts on the proposer side of the channel.
const (
	writeWait = 5 * time.Second  // Deadline on any single frame write.
	ackWait   = 10 * time.Second // A replica must ack a block within this or is dropped.
)

// subscriber send buffer. A replica that falls further behind than this is
// dropped rather than allowed to stall block production.
const sendBuffer = 32

// HubConfig represents the dependencies of the hub.
type HubConfig struct {
	EvHandler func(v string, args ...any)

	// OnTransaction is called for every transaction frame a replica sends
	// up the channel.
	OnTransaction func(tx database.BlockTx)
}

// Hub maintains the active set of replica subscriptions on the proposer and
// broadcasts frames to them without ever blocking the caller.
type Hub struct {
	ev   func(v string, args ...any)
	onTx func(tx database.BlockTx)
	ws   websocket.Upgrader

	mu   sync.Mutex
	subs map[uuid.UUID]*subscriber
}

// NewHub constructs a hub for replica subscriptions.
func NewHub(cfg HubConfig) *Hub {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	return &Hub{
		ev:   ev,
		onTx: cfg.OnTransaction,
		subs: make(map[uuid.UUID]*subscriber),
	}
}

// Subscribe upgrades the request to a websocket and registers the replica
// into the active set. It returns once the upgrade is done; the connection
// is serviced by its own goroutines.
func (h *Hub) Subscribe(w http.ResponseWriter, r *http.Request) error {
	h.ws.CheckOrigin = func(r *http.Request) bool { return true }

	conn, err := h.ws.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	sub := &subscriber{
		id:   uuid.New(),
		conn: conn,
		send: make(chan Message, sendBuffer),
		ack:  make(chan struct{}, 1),
	}

	h.mu.Lock()
	h.subs[sub.id] = sub
	h.mu.Unlock()

	h.ev("propagate: hub: subscriber[%s] joined from %s", sub.id, r.RemoteAddr)

	go h.writeLoop(sub)
	go h.readLoop(sub)

	return nil
}

// PublishBlock broadcasts the block to every active replica. Slow replicas
// are dropped, not waited on.
func (h *Hub) PublishBlock(blockData database.BlockData) {
	msg, err := newBlockMessage(blockData)
	if err != nil {
		h.ev("propagate: hub: ERROR: %s", err)
		return
	}

	h.broadcast(msg)
}

// ShareTx broadcasts a transaction so replica mempools stay warm.
func (h *Hub) ShareTx(tx database.BlockTx) {
	msg, err := newTxMessage(tx)
	if err != nil {
		h.ev("propagate: hub: ERROR: %s", err)
		return
	}

	h.broadcast(msg)
}

// Subscribers returns how many replicas are in the active set.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Shutdown closes every subscription.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.subs {
		close(sub.send)
		delete(h.subs, id)
	}
}

// =============================================================================

type subscriber struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan Message
	ack  chan struct{}
}

func (h *Hub) broadcast(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.subs {
		select {
		case sub.send <- msg:
		default:
			h.ev("propagate: hub: subscriber[%s] send buffer full, dropping", id)
			close(sub.send)
			delete(h.subs, id)
		}
	}
}

func (h *Hub) drop(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.subs[sub.id]; exists {
		close(sub.send)
		delete(h.subs, sub.id)
	}
}

// writeLoop services one subscription. A block frame must be acknowledged
// within the ack window; a replica that fails to do so is dropped from the
// active set and left to reconnect.
func (h *Hub) writeLoop(sub *subscriber) {
	defer sub.conn.Close()

	for msg := range sub.send {
		sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := sub.conn.WriteJSON(msg); err != nil {
			h.ev("propagate: hub: subscriber[%s] write: %s", sub.id, err)
			h.drop(sub)
			return
		}

		if msg.Type != TypeBlock {
			continue
		}

		select {
		case <-sub.ack:
		case <-time.After(ackWait):
			h.ev("propagate: hub: subscriber[%s] no ack, dropping", sub.id)
			h.drop(sub)
			return
		}
	}
}

// readLoop consumes frames from the replica: block acks and transactions
// submitted on the replica's public API being forwarded for inclusion.
func (h *Hub) readLoop(sub *subscriber) {
	for {
		var msg Message
		if err := sub.conn.ReadJSON(&msg); err != nil {
			h.drop(sub)
			return
		}

		switch msg.Type {
		case TypeAck:
			select {
			case sub.ack <- struct{}{}:
			default:
			}

		case TypeTransaction:
			if h.onTx == nil {
				continue
			}
			var tx database.BlockTx
			if err := json.Unmarshal(msg.Data, &tx); err != nil {
				h.ev("propagate: hub: subscriber[%s] bad tx frame: %s", sub.id, err)
				continue
			}
			h.onTx(tx)
		}
	}
}
