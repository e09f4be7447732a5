package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/onnwee/stream-widgets/backend/model"
	"github.com/onnwee/stream-widgets/backend/state"
)

// Status is the coarse lifecycle state a client reports.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusStarting  Status = "starting"
	StatusStreaming Status = "streaming"
	StatusError     Status = "error"
	StatusStopped   Status = "stopped"
)

// Client is the capability contract every platform client implements.
// Run blocks until the connection/poll loop exits; the manager drives it in
// its own goroutine. Stop must be idempotent and must make Run return.
type Client interface {
	// Run connects and pumps messages into the hub until ctx is cancelled,
	// Stop is called, or the transport fails.
	Run(ctx context.Context) error
	// Stop signals the loop to exit and closes the underlying transport.
	Stop()
	// Send delivers text to the platform without echoing it locally.
	Send(ctx context.Context, text string) error
	// Echo inserts one local copy of a sent message into the hub. Required
	// after Send on platforms whose inbound stream does not reflect our own
	// messages; a no-op where it does.
	Echo(text string)
	// Authenticated reports whether the client can send on behalf of a user.
	Authenticated() bool
	// Status reports the current lifecycle state.
	Status() Status
}

// SendResult is the structured outcome of a send request. Sends never panic
// or bubble transport errors; the caller renders Error inline.
type SendResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// running pairs a client with the handles needed to await its termination.
type running struct {
	client Client
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager owns zero or one client per platform.
type Manager struct {
	hub *state.Hub

	// factories; swapped out in tests
	newTwitch  func(channel string) Client
	newYouTube func(videoID string) Client

	mu      sync.Mutex
	baseCtx context.Context
	twitch  *running
	youtube *running

	// serialize stop+launch per platform so two concurrent starts can never
	// leave an unsupervised client behind
	twitchOp  sync.Mutex
	youtubeOp sync.Mutex
}

// NewManager wires a manager to the hub. baseCtx bounds the lifetime of every
// client the manager starts; cancelling it stops them all.
func NewManager(baseCtx context.Context, hub *state.Hub, newTwitch func(channel string) Client, newYouTube func(videoID string) Client) *Manager {
	return &Manager{
		hub:        hub,
		baseCtx:    baseCtx,
		newTwitch:  newTwitch,
		newYouTube: newYouTube,
	}
}

// Start launches clients for every platform the current configuration
// enables. Twitch runs even without tokens (anonymous read-only connection);
// YouTube requires stored tokens.
func (m *Manager) Start() {
	cfg := m.hub.ChatConfig()
	if cfg.TwitchChannel != "" {
		m.StartTwitch(cfg.TwitchChannel)
	}
	if m.hub.Authenticated(model.PlatformYouTube) {
		m.StartYouTube(cfg.YouTubeVideoID)
	}
}

// Stop stops every running client and awaits full termination.
func (m *Manager) Stop() {
	m.StopTwitch()
	m.StopYouTube()
}

// Restart applies the current configuration from scratch.
func (m *Manager) Restart() {
	m.Stop()
	m.Start()
}

// StartTwitch replaces any running Twitch client with a fresh one for the
// given channel. The prior client is stopped and awaited first; concurrent
// starts for the same platform run one at a time.
func (m *Manager) StartTwitch(channel string) {
	m.twitchOp.Lock()
	defer m.twitchOp.Unlock()
	m.stopPlatform(&m.twitch)
	m.mu.Lock()
	m.twitch = m.launch(model.PlatformTwitch, m.newTwitch(channel))
	m.mu.Unlock()
	slog.Info("started twitch chat client", slog.String("channel", channel))
}

// StopTwitch stops the Twitch client if one is running. Idempotent.
func (m *Manager) StopTwitch() {
	m.twitchOp.Lock()
	defer m.twitchOp.Unlock()
	m.stopPlatform(&m.twitch)
}

// StartYouTube replaces any running YouTube client. An empty videoID lets the
// client auto-detect the user's active broadcast.
func (m *Manager) StartYouTube(videoID string) {
	m.youtubeOp.Lock()
	defer m.youtubeOp.Unlock()
	m.stopPlatform(&m.youtube)
	m.mu.Lock()
	m.youtube = m.launch(model.PlatformYouTube, m.newYouTube(videoID))
	m.mu.Unlock()
	if videoID != "" {
		slog.Info("started youtube chat client", slog.String("video_id", videoID))
	} else {
		slog.Info("started youtube chat client (auto-detecting active broadcast)")
	}
}

// StopYouTube stops the YouTube client if one is running. Idempotent.
func (m *Manager) StopYouTube() {
	m.youtubeOp.Lock()
	defer m.youtubeOp.Unlock()
	m.stopPlatform(&m.youtube)
}

func (m *Manager) launch(p model.Platform, c Client) *running {
	ctx, cancel := context.WithCancel(m.baseCtx)
	r := &running{client: c, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(r.done)
		if err := r.client.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("chat client exited", slog.String("platform", string(p)), slog.Any("err", err))
		}
	}()
	return r
}

func (m *Manager) stopPlatform(slot **running) {
	m.mu.Lock()
	r := *slot
	*slot = nil
	m.mu.Unlock()
	if r == nil {
		return
	}
	r.client.Stop()
	r.cancel()
	<-r.done
}

// TwitchStatus reports the Twitch client state, or idle when none runs.
func (m *Manager) TwitchStatus() Status { return m.statusOf(&m.twitch) }

// YouTubeStatus reports the YouTube client state, or idle when none runs.
func (m *Manager) YouTubeStatus() Status { return m.statusOf(&m.youtube) }

func (m *Manager) statusOf(slot **running) Status {
	m.mu.Lock()
	r := *slot
	m.mu.Unlock()
	if r == nil {
		return StatusIdle
	}
	return r.client.Status()
}

// SendMessage routes an outbound message. target is "twitch", "youtube" or
// "all". Single-platform sends echo locally (the inbound stream does not
// reflect our own messages under read-only connections); "all" sends
// without-echo to Twitch first and, only on success, inserts exactly one
// local echo before sending to YouTube independently, so a dual-platform
// broadcast never shows up twice. Partial failures are aggregated; the
// result is OK when at least one platform accepted the message.
func (m *Manager) SendMessage(ctx context.Context, target, text string) SendResult {
	switch target {
	case string(model.PlatformTwitch):
		return m.sendSingle(ctx, &m.twitch, model.PlatformTwitch, text)
	case string(model.PlatformYouTube):
		return m.sendSingle(ctx, &m.youtube, model.PlatformYouTube, text)
	case "all":
		return m.sendAll(ctx, text)
	default:
		return SendResult{Error: fmt.Sprintf("unknown platform %q", target)}
	}
}

func (m *Manager) sendSingle(ctx context.Context, slot **running, p model.Platform, text string) SendResult {
	m.mu.Lock()
	r := *slot
	m.mu.Unlock()
	if r == nil {
		return SendResult{Error: fmt.Sprintf("%s chat is not connected", p)}
	}
	if !r.client.Authenticated() {
		return SendResult{Error: fmt.Sprintf("%s chat is not authenticated", p)}
	}
	if err := r.client.Send(ctx, text); err != nil {
		return SendResult{Error: err.Error()}
	}
	r.client.Echo(text)
	return SendResult{OK: true}
}

func (m *Manager) sendAll(ctx context.Context, text string) SendResult {
	m.mu.Lock()
	tw, yt := m.twitch, m.youtube
	m.mu.Unlock()

	var errs []string
	sent := false

	// Twitch first: it carries the richer self-user metadata, so it owns the
	// single local echo for a dual-platform broadcast.
	if tw != nil && tw.client.Authenticated() {
		if err := tw.client.Send(ctx, text); err != nil {
			errs = append(errs, "twitch: "+err.Error())
		} else {
			sent = true
			tw.client.Echo(text)
		}
	}

	if yt != nil && yt.client.Authenticated() {
		if err := yt.client.Send(ctx, text); err != nil {
			errs = append(errs, "youtube: "+err.Error())
		} else {
			sent = true
		}
	}

	if !sent && len(errs) == 0 {
		return SendResult{Error: "no authenticated chat clients"}
	}
	return SendResult{OK: sent, Error: strings.Join(errs, "; ")}
}
