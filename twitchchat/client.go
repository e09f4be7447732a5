package twitchchat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
	"golang.org/x/time/rate"

	"github.com/onnwee/stream-widgets/backend/chat"
	"github.com/onnwee/stream-widgets/backend/config"
	"github.com/onnwee/stream-widgets/backend/model"
	"github.com/onnwee/stream-widgets/backend/state"
	"github.com/onnwee/stream-widgets/backend/telemetry"
)

// Twitch allows regular users roughly 20 messages per 30 seconds.
var sendLimit = rate.Every(1500 * time.Millisecond)

// Client reads a Twitch channel's chat over IRC and pushes normalized
// messages into the hub. Without stored tokens it connects anonymously
// (read-only); with tokens it connects as the token's owner and can send.
type Client struct {
	hub     *state.Hub
	cfg     *config.Config
	channel string

	limiter *rate.Limiter

	mu            sync.Mutex
	irc           *twitch.Client
	status        chat.Status
	self          UserInfo
	authenticated bool
	badges        *badgeSet
	emotes        *emoteSet

	stopOnce sync.Once
	stopped  chan struct{}
}

// New builds a client for one channel. Run does the actual connect.
func New(hub *state.Hub, cfg *config.Config, channel string) *Client {
	return &Client{
		hub:     hub,
		cfg:     cfg,
		channel: strings.ToLower(strings.TrimPrefix(strings.TrimSpace(channel), "#")),
		limiter: rate.NewLimiter(sendLimit, 1),
		status:  chat.StatusIdle,
		stopped: make(chan struct{}),
	}
}

func (c *Client) setStatus(s chat.Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// Status implements chat.Client.
func (c *Client) Status() chat.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Authenticated implements chat.Client.
func (c *Client) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

// Stop implements chat.Client. Safe to call any number of times.
func (c *Client) Stop() {
	c.stopOnce.Do(func() { close(c.stopped) })
}

// disconnectRetryDelay paces Disconnect attempts while the dial is still in
// flight.
const disconnectRetryDelay = 50 * time.Millisecond

// disconnectOnSignal tears down the IRC connection once ctx is cancelled or
// stopped closes. A stop can land while the dial is still in flight, before
// the connection is open; Disconnect is a no-op error then, so it is retried
// until it lands or the connect loop exits on its own (runDone).
func disconnectOnSignal(ctx context.Context, stopped, runDone <-chan struct{}, disconnect func() error) {
	select {
	case <-ctx.Done():
	case <-stopped:
	case <-runDone:
		return
	}
	for {
		if err := disconnect(); err == nil {
			return
		}
		select {
		case <-runDone:
			return
		case <-time.After(disconnectRetryDelay):
		}
	}
}

// Run loads badges and emotes, connects to IRC and pumps messages until the
// context is cancelled or Stop is called.
func (c *Client) Run(ctx context.Context) error {
	if c.channel == "" {
		c.setStatus(chat.StatusError)
		return fmt.Errorf("twitch channel not configured")
	}
	c.setStatus(chat.StatusStarting)

	accessToken := ""
	if tokens, ok := c.hub.Tokens(model.PlatformTwitch); ok && !tokens.Expired() {
		accessToken = tokens.AccessToken
	}
	helix := &Helix{ClientID: c.cfg.TwitchClientID, Token: accessToken}

	authed := false
	var self UserInfo
	if accessToken != "" {
		var err error
		self, err = helix.AuthenticatedUser(ctx)
		if err != nil {
			slog.Warn("twitch token did not resolve a user, connecting anonymously", slog.Any("err", err))
		} else {
			authed = true
		}
	}

	channelID := ""
	if c.cfg.TwitchClientID != "" && accessToken != "" {
		id, err := helix.GetUserID(ctx, c.channel)
		if err != nil {
			slog.Warn("twitch channel id lookup failed", slog.String("channel", c.channel), slog.Any("err", err))
		} else {
			channelID = id
		}
	}

	badges := loadBadges(ctx, helix, channelID)
	loader := &emoteLoader{DataDir: c.cfg.DataDir, Channel: c.channel, ChannelID: channelID}
	emotes := loader.load(ctx, c.hub.ChatConfig())

	var irc *twitch.Client
	if authed {
		irc = twitch.NewClient(self.Login, "oauth:"+accessToken)
	} else {
		irc = twitch.NewAnonymousClient()
	}

	c.mu.Lock()
	select {
	case <-c.stopped:
		c.mu.Unlock()
		c.status = chat.StatusStopped
		return nil
	default:
	}
	c.irc = irc
	c.self = self
	c.authenticated = authed
	c.badges = badges
	c.emotes = emotes
	c.mu.Unlock()

	irc.OnConnect(func() {
		c.setStatus(chat.StatusStreaming)
		telemetry.SetClientUp(string(model.PlatformTwitch), true)
		slog.Info("twitch chat connected",
			slog.String("channel", c.channel),
			slog.Bool("authenticated", authed))
	})
	irc.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		c.hub.AddChatMessage(normalize(msg, badges, emotes))
		telemetry.CountIngested(string(model.PlatformTwitch))
	})

	runDone := make(chan struct{})
	go disconnectOnSignal(ctx, c.stopped, runDone, irc.Disconnect)

	irc.Join(c.channel)
	err := irc.Connect()
	close(runDone)
	telemetry.SetClientUp(string(model.PlatformTwitch), false)

	if errors.Is(err, twitch.ErrClientDisconnected) || ctx.Err() != nil {
		c.setStatus(chat.StatusStopped)
		return nil
	}
	c.setStatus(chat.StatusError)
	return fmt.Errorf("twitch chat connection: %w", err)
}

// Send delivers a message to the joined channel, respecting the platform
// send rate. The IRC stream does not echo our own messages back.
func (c *Client) Send(ctx context.Context, text string) error {
	c.mu.Lock()
	irc := c.irc
	authed := c.authenticated
	status := c.status
	c.mu.Unlock()
	if !authed {
		telemetry.CountSent(string(model.PlatformTwitch), false)
		return fmt.Errorf("twitch chat is not authenticated")
	}
	if irc == nil || status != chat.StatusStreaming {
		telemetry.CountSent(string(model.PlatformTwitch), false)
		return fmt.Errorf("twitch chat is not connected")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		telemetry.CountSent(string(model.PlatformTwitch), false)
		return err
	}
	irc.Say(c.channel, text)
	telemetry.CountSent(string(model.PlatformTwitch), true)
	return nil
}

// Echo inserts a local copy of a message we just sent, attributed to the
// authenticated user, so it shows in the overlay without waiting on IRC.
func (c *Client) Echo(text string) {
	c.mu.Lock()
	self := c.self
	emotes := c.emotes
	c.mu.Unlock()
	if self.Login == "" {
		return
	}
	var roles []model.UserRole
	if self.Login == c.channel {
		roles = append(roles, model.RoleBroadcaster)
	}
	now := time.Now()
	c.hub.AddChatMessage(model.ChatMessage{
		ID:        model.SynthesizeMessageID(self.Login, now),
		Platform:  model.PlatformTwitch,
		User:      model.NewChatUser(self.ID, self.Login, self.DisplayName, model.PlatformTwitch, roles...),
		Message:   text,
		Timestamp: now,
		Emotes:    thirdPartyEmotes(text, emotes),
	})
}
