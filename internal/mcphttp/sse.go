package mcphttp

import (
	"strconv"
	"sync"
	"time"
)

// sseMailboxSize bounds each subscriber's pending-message queue (spec
// §4.5.5). A slow or vanished client cannot grow memory unbounded; once
// full, further publishes to that subscriber are dropped.
const sseMailboxSize = 100

// sseHeartbeat is the idle-keepalive interval (spec §4.5.5).
const sseHeartbeat = 15 * time.Second

// subscriber is one open SSE connection's mailbox. namespace is "" for
// a connection opened against the global /mcp endpoint; such
// subscribers also receive messages published to any specific
// namespace (spec §4.5.5: "Messages published to a namespace fan out
// to global subscribers as well").
type subscriber struct {
	id        string
	namespace string
	mailbox   chan []byte
}

// sseHub fans server-initiated messages out to connected SSE clients.
// The plumbing exists per §4.5.5 even though nothing in ToolDock
// currently originates server-initiated messages.
type sseHub struct {
	mu   sync.Mutex
	subs map[string]*subscriber
	next uint64
}

func newSSEHub() *sseHub {
	return &sseHub{subs: make(map[string]*subscriber)}
}

// subscribe registers a new mailbox for namespace ("" for global) and
// returns it plus a cancel func the caller must invoke once the
// connection closes.
func (h *sseHub) subscribe(namespace string) (*subscriber, func()) {
	h.mu.Lock()
	h.next++
	id := namespace + "#" + strconv.FormatUint(h.next, 10)
	sub := &subscriber{id: id, namespace: namespace, mailbox: make(chan []byte, sseMailboxSize)}
	h.subs[id] = sub
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
	return sub, cancel
}

// publish fans data out to every subscriber of namespace plus every
// global ("") subscriber. A full mailbox is skipped rather than
// blocked on, per the bounded-mailbox contract.
func (h *sseHub) publish(namespace string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		if sub.namespace != "" && sub.namespace != namespace {
			continue
		}
		select {
		case sub.mailbox <- data:
		default:
		}
	}
}
