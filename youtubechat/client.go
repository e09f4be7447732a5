// Package youtubechat polls the YouTube Live Chat API and pushes normalized
// messages into the hub. YouTube has no push transport for live chat; the API
// dictates the poll cadence through pollingIntervalMillis.
package youtubechat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/stream-widgets/backend/chat"
	"github.com/onnwee/stream-widgets/backend/model"
	"github.com/onnwee/stream-widgets/backend/state"
	"github.com/onnwee/stream-widgets/backend/telemetry"
)

const (
	defaultPollInterval = 2 * time.Second
	errorBackoff        = 5 * time.Second
)

// page is one response from the live chat messages endpoint.
type page struct {
	NextPageToken string
	PollInterval  time.Duration
	Items         []*yt.LiveChatMessage
}

// chatAPI is the slice of the YouTube Data API the client needs. The real
// implementation wraps *yt.Service; tests substitute a fake.
type chatAPI interface {
	// ActiveBroadcast finds the authenticated user's currently live
	// broadcast. Empty videoID means none is live.
	ActiveBroadcast(ctx context.Context) (videoID, title string, err error)
	// LiveChatID resolves a video to its active live chat. Empty chatID
	// means the video has no open chat.
	LiveChatID(ctx context.Context, videoID string) (chatID, title string, err error)
	// Messages fetches one page of chat messages.
	Messages(ctx context.Context, chatID, pageToken string) (*page, error)
	// Insert posts a text message to the chat.
	Insert(ctx context.Context, chatID, text string) error
}

// Client reads one broadcast's live chat. An empty videoID auto-detects the
// user's active broadcast at startup.
type Client struct {
	hub     *state.Hub
	videoID string

	// newAPI builds the API binding once tokens are known; swapped in tests.
	newAPI func(ctx context.Context, accessToken string) (chatAPI, error)
	// sleep is swapped in tests to observe poll cadence.
	sleep func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	status chat.Status
	chatID string
	api    chatAPI

	stopOnce sync.Once
	stopped  chan struct{}
}

// New builds a client. Run does the broadcast discovery and polling.
func New(hub *state.Hub, videoID string) *Client {
	return &Client{
		hub:     hub,
		videoID: videoID,
		newAPI:  newAPIService,
		sleep:   sleepCtx,
		status:  chat.StatusIdle,
		stopped: make(chan struct{}),
	}
}

func newAPIService(ctx context.Context, accessToken string) (chatAPI, error) {
	svc, err := yt.NewService(ctx, option.WithTokenSource(
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})))
	if err != nil {
		return nil, err
	}
	return &apiService{svc: svc}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
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

// Authenticated implements chat.Client. YouTube chat cannot even be read
// anonymously, so this tracks stored tokens.
func (c *Client) Authenticated() bool {
	return c.hub.Authenticated(model.PlatformYouTube)
}

// Stop implements chat.Client. Safe to call any number of times.
func (c *Client) Stop() {
	c.stopOnce.Do(func() { close(c.stopped) })
}

// Echo implements chat.Client as a no-op: the poll loop returns our own
// messages, so a local copy would duplicate them.
func (c *Client) Echo(string) {}

// Run resolves the broadcast and live chat id, then polls until the context
// is cancelled or Stop is called. A missing broadcast or closed chat is a
// clean stop, not an error.
func (c *Client) Run(ctx context.Context) error {
	c.setStatus(chat.StatusStarting)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
		case <-c.stopped:
			cancel()
		}
	}()

	tokens, ok := c.hub.Tokens(model.PlatformYouTube)
	if !ok || tokens.AccessToken == "" || tokens.Expired() {
		c.setStatus(chat.StatusError)
		return fmt.Errorf("youtube tokens missing or expired")
	}
	api, err := c.newAPI(ctx, tokens.AccessToken)
	if err != nil {
		c.setStatus(chat.StatusError)
		return fmt.Errorf("youtube service: %w", err)
	}

	videoID := c.videoID
	title := ""
	if videoID == "" {
		videoID, title, err = api.ActiveBroadcast(ctx)
		if err != nil {
			c.setStatus(chat.StatusError)
			return fmt.Errorf("find active broadcast: %w", err)
		}
		if videoID == "" {
			slog.Info("youtube: no active broadcast")
			c.setStatus(chat.StatusStopped)
			return nil
		}
	}

	chatID, chatTitle, err := api.LiveChatID(ctx, videoID)
	if err != nil {
		c.setStatus(chat.StatusError)
		return fmt.Errorf("resolve live chat id: %w", err)
	}
	if chatID == "" {
		slog.Info("youtube: video has no open live chat", slog.String("video_id", videoID))
		c.setStatus(chat.StatusStopped)
		return nil
	}
	if title == "" {
		title = chatTitle
	}

	c.mu.Lock()
	c.chatID = chatID
	c.api = api
	c.status = chat.StatusStreaming
	c.mu.Unlock()
	telemetry.SetClientUp(string(model.PlatformYouTube), true)
	defer telemetry.SetClientUp(string(model.PlatformYouTube), false)
	slog.Info("youtube chat connected", slog.String("video_id", videoID), slog.String("title", title))

	err = c.pollLoop(ctx, api, chatID)
	if ctx.Err() != nil {
		c.setStatus(chat.StatusStopped)
		return nil
	}
	c.setStatus(chat.StatusError)
	return err
}

// pollLoop fetches pages forever, carrying the nextPageToken between calls
// and sleeping for whatever interval the API asked for.
func (c *Client) pollLoop(ctx context.Context, api chatAPI, chatID string) error {
	pageToken := ""
	interval := defaultPollInterval
	for {
		p, err := api.Messages(ctx, chatID, pageToken)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			telemetry.CountPollError(string(model.PlatformYouTube))
			slog.Warn("youtube poll error", slog.Any("err", err))
			if err := c.sleep(ctx, errorBackoff); err != nil {
				return err
			}
			continue
		}
		pageToken = p.NextPageToken
		interval = p.PollInterval
		if interval <= 0 {
			interval = defaultPollInterval
		}
		for _, item := range p.Items {
			msg, ok := normalize(item)
			if !ok {
				continue
			}
			c.hub.AddChatMessage(msg)
			telemetry.CountIngested(string(model.PlatformYouTube))
		}
		if err := c.sleep(ctx, interval); err != nil {
			return err
		}
	}
}

// Send posts a message to the connected live chat.
func (c *Client) Send(ctx context.Context, text string) error {
	c.mu.Lock()
	chatID := c.chatID
	api := c.api
	c.mu.Unlock()
	if chatID == "" || api == nil {
		telemetry.CountSent(string(model.PlatformYouTube), false)
		return fmt.Errorf("youtube chat is not connected")
	}
	if err := api.Insert(ctx, chatID, text); err != nil {
		telemetry.CountSent(string(model.PlatformYouTube), false)
		return fmt.Errorf("youtube send: %w", err)
	}
	telemetry.CountSent(string(model.PlatformYouTube), true)
	return nil
}
