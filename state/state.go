// Package state holds the process-wide shared state: the latest now-playing
// snapshot, a bounded ring of recent chat messages, per-platform auth tokens,
// the chat configuration and the live subscriber set. Every component talks to
// the rest of the system through this hub; no component reaches into another's
// fields. All operations are serialized on a single mutex so that two
// ingestion loops cannot interleave a history append with a history read.
package state

import (
	"log/slog"
	"sync"

	"github.com/onnwee/stream-widgets/backend/model"
	"github.com/onnwee/stream-widgets/backend/telemetry"
)

// HistoryCapacity is the fixed size of the chat message ring. The oldest
// entry is evicted on overflow.
const HistoryCapacity = 100

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls this far behind is treated as dead and pruned on the next broadcast.
const subscriberBuffer = 64

// Event is the wire shape pushed to every subscriber.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Subscriber is one push-channel consumer. The transport layer drains C and
// must call Hub.Unsubscribe when the connection goes away.
type Subscriber struct {
	C chan Event
}

// Hub is the shared state store. The zero value is not usable; call New.
type Hub struct {
	mu sync.Mutex

	nowPlaying model.NowPlaying
	subs       map[*Subscriber]struct{}

	ring  []model.ChatMessage
	start int
	count int

	tokens map[model.Platform]model.AuthTokens
	config model.ChatConfig
}

// New returns an empty hub with the default chat configuration.
func New() *Hub {
	return &Hub{
		subs:   make(map[*Subscriber]struct{}),
		ring:   make([]model.ChatMessage, HistoryCapacity),
		tokens: make(map[model.Platform]model.AuthTokens),
		config: model.DefaultChatConfig(),
	}
}

// SetNowPlaying replaces the current snapshot.
func (h *Hub) SetNowPlaying(np model.NowPlaying) {
	h.mu.Lock()
	h.nowPlaying = np
	h.mu.Unlock()
}

// NowPlaying returns the current snapshot.
func (h *Hub) NowPlaying() model.NowPlaying {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nowPlaying
}

// Subscribe registers a new push-channel consumer and returns it.
func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{C: make(chan Event, subscriberBuffer)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	telemetry.SetSubscribers(n)
	return s
}

// Unsubscribe removes a consumer. Safe to call more than once.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	n := len(h.subs)
	h.mu.Unlock()
	telemetry.SetSubscribers(n)
}

// Broadcast pushes an event to every subscriber. Delivery is best-effort: a
// subscriber whose buffer is full is marked during the fan-out pass and
// removed after it completes, without affecting the remaining subscribers.
// Broadcast never returns an error to the caller.
func (h *Hub) Broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastLocked(ev)
}

func (h *Hub) broadcastLocked(ev Event) {
	var dead []*Subscriber
	for s := range h.subs {
		select {
		case s.C <- ev:
		default:
			dead = append(dead, s)
		}
	}
	for _, s := range dead {
		delete(h.subs, s)
	}
	if len(dead) > 0 {
		telemetry.CountDropped(len(dead))
		telemetry.SetSubscribers(len(h.subs))
		slog.Debug("pruned dead subscribers", slog.Int("count", len(dead)))
	}
	telemetry.CountBroadcast()
}

// AddChatMessage appends a message to the history ring and broadcasts it as a
// single atomic step. Messages rejected by the configured content filters are
// dropped silently.
func (h *Hub) AddChatMessage(m model.ChatMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.config.Allows(m) {
		telemetry.CountFiltered()
		return
	}
	h.appendLocked(m)
	h.broadcastLocked(Event{Type: "chat_message", Data: m})
}

func (h *Hub) appendLocked(m model.ChatMessage) {
	idx := (h.start + h.count) % len(h.ring)
	h.ring[idx] = m
	if h.count < len(h.ring) {
		h.count++
	} else {
		h.start = (h.start + 1) % len(h.ring)
	}
}

// RecentMessages returns the most recent limit messages in arrival order, or
// the full history when limit is zero or negative.
func (h *Hub) RecentMessages(limit int) []model.ChatMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := h.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.ChatMessage, 0, n)
	for i := h.count - n; i < h.count; i++ {
		out = append(out, h.ring[(h.start+i)%len(h.ring)])
	}
	return out
}

// SetTokens stores the token set for a platform, replacing any prior one.
func (h *Hub) SetTokens(p model.Platform, t model.AuthTokens) {
	h.mu.Lock()
	h.tokens[p] = t
	h.mu.Unlock()
}

// ClearTokens removes the token set for a platform. No-op when none stored.
func (h *Hub) ClearTokens(p model.Platform) {
	h.mu.Lock()
	delete(h.tokens, p)
	h.mu.Unlock()
}

// Tokens returns the stored token set for a platform. The second return is
// false when the platform never authenticated.
func (h *Hub) Tokens(p model.Platform) (model.AuthTokens, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.tokens[p]
	return t, ok
}

// Authenticated reports whether a live (present and unexpired) token exists
// for the platform.
func (h *Hub) Authenticated(p model.Platform) bool {
	t, ok := h.Tokens(p)
	return ok && !t.Expired()
}

// SetChatConfig replaces the active configuration.
func (h *Hub) SetChatConfig(c model.ChatConfig) {
	h.mu.Lock()
	h.config = c
	h.mu.Unlock()
}

// ChatConfig returns the active configuration.
func (h *Hub) ChatConfig() model.ChatConfig {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.config
}
