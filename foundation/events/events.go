// Package events allows goroutines serving websocket clients to register
// for and receive the typed frames the node publishes.
package events

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Set of frame types delivered to subscribers.
const (
	TypeBlock       = "block"
	TypeTransaction = "transaction"
	TypeEvent       = "event"
)

// Frame is what every subscriber receives, serialized to JSON before
// delivery.
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Events maintains a mapping of unique id and channels so goroutines can
// register and receive frames.
type Events struct {
	m  map[string]chan string
	mu sync.RWMutex
}

// New constructs an events value for registering and receiving frames.
func New() *Events {
	return &Events{
		m: make(map[string]chan string),
	}
}

// Shutdown closes and removes all channels that were provided by the call
// to Acquire.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, ch := range evt.m {
		delete(evt.m, id)
		close(ch)
	}
}

// Acquire takes a unique id and returns a channel that can be used to
// receive frames.
func (evt *Events) Acquire(id string) chan string {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.m[id]
	if exists {
		return ch
	}

	// Since a frame will be dropped if the websocket receiver is not ready
	// to receive, this arbitrary buffer should give the receiver enough
	// time to not lose a message.
	const messageBuffer = 100

	evt.m[id] = make(chan string, messageBuffer)
	return evt.m[id]
}

// Release closes and removes the channel that was provided by the call to
// Acquire.
func (evt *Events) Release(id string) error {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.m[id]
	if !exists {
		return fmt.Errorf("id %q does not exist", id)
	}

	delete(evt.m, id)
	close(ch)
	return nil
}

// Publish delivers a typed frame to every registered channel. Publish will
// not block waiting for a receiver on any given channel.
func (evt *Events) Publish(frameType string, data any) {
	raw, err := json.Marshal(Frame{Type: frameType, Data: data})
	if err != nil {
		return
	}

	evt.send(string(raw))
}

// SendEvent delivers a raw processing message wrapped in an event frame.
// This is how the node's event handler output reaches subscribers.
func (evt *Events) SendEvent(s string) {
	evt.Publish(TypeEvent, s)
}

func (evt *Events) send(s string) {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	for _, ch := range evt.m {
		select {
		case ch <- s:
		default:
		}
	}
}
