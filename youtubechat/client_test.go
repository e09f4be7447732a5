package youtubechat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/stream-widgets/backend/chat"
	"github.com/onnwee/stream-widgets/backend/model"
	"github.com/onnwee/stream-widgets/backend/state"
)

type fakeAPI struct {
	mu        sync.Mutex
	broadcast string
	chatID    string
	pages     []func() (*page, error)
	call      int
	tokens    []string
	inserted  []string
}

func (f *fakeAPI) ActiveBroadcast(ctx context.Context) (string, string, error) {
	return f.broadcast, "Test Stream", nil
}

func (f *fakeAPI) LiveChatID(ctx context.Context, videoID string) (string, string, error) {
	return f.chatID, "Test Stream", nil
}

func (f *fakeAPI) Messages(ctx context.Context, chatID, pageToken string) (*page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, pageToken)
	if f.call >= len(f.pages) {
		return &page{PollInterval: time.Second}, nil
	}
	fn := f.pages[f.call]
	f.call++
	return fn()
}

func (f *fakeAPI) Insert(ctx context.Context, chatID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, text)
	return nil
}

func (f *fakeAPI) seenTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tokens...)
}

func textItem(id, channelID, name, text string) *yt.LiveChatMessage {
	return &yt.LiveChatMessage{
		Id: id,
		Snippet: &yt.LiveChatMessageSnippet{
			Type:        "textMessageEvent",
			PublishedAt: "2026-03-01T12:00:00Z",
			TextMessageDetails: &yt.LiveChatTextMessageDetails{
				MessageText: text,
			},
		},
		AuthorDetails: &yt.LiveChatMessageAuthorDetails{
			ChannelId:   channelID,
			DisplayName: name,
		},
	}
}

// newTestClient wires a client against the fake API and records every sleep.
// cancel stops the run loop.
func newTestClient(t *testing.T, api *fakeAPI, videoID string) (*Client, *state.Hub, *[]time.Duration, context.Context, context.CancelFunc) {
	t.Helper()
	hub := state.New()
	hub.SetTokens(model.PlatformYouTube, model.AuthTokens{AccessToken: "tok"})

	c := New(hub, videoID)
	c.newAPI = func(ctx context.Context, accessToken string) (chatAPI, error) {
		if accessToken != "tok" {
			t.Errorf("api built with token %q", accessToken)
		}
		return api, nil
	}
	sleeps := &[]time.Duration{}
	ctx, cancel := context.WithCancel(context.Background())
	c.sleep = func(ctx context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return nil
	}
	return c, hub, sleeps, ctx, cancel
}

func TestRun_PollsWithContinuationAndServerInterval(t *testing.T) {
	api := &fakeAPI{chatID: "chat-1"}
	var cancel context.CancelFunc
	api.pages = []func() (*page, error){
		func() (*page, error) {
			return &page{
				NextPageToken: "T2",
				PollInterval:  1500 * time.Millisecond,
				Items: []*yt.LiveChatMessage{
					textItem("m1", "UC1", "Viewer", "first"),
				},
			}, nil
		},
		func() (*page, error) {
			cancel()
			return &page{NextPageToken: "T3", PollInterval: 2 * time.Second}, nil
		},
	}

	c, hub, sleeps, ctx, cancelFn := newTestClient(t, api, "vid-1")
	cancel = cancelFn
	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	tokens := api.seenTokens()
	if len(tokens) < 2 || tokens[0] != "" || tokens[1] != "T2" {
		t.Fatalf("page tokens = %v, want continuation with T2", tokens)
	}
	if len(*sleeps) == 0 || (*sleeps)[0] != 1500*time.Millisecond {
		t.Fatalf("sleeps = %v, want first poll gap of 1.5s", *sleeps)
	}
	msgs := hub.RecentMessages(0)
	if len(msgs) != 1 || msgs[0].Message != "first" {
		t.Fatalf("hub messages = %+v", msgs)
	}
}

func TestRun_ErrorBacksOffAndRetries(t *testing.T) {
	api := &fakeAPI{chatID: "chat-1"}
	var cancel context.CancelFunc
	api.pages = []func() (*page, error){
		func() (*page, error) { return nil, errors.New("quota exceeded") },
		func() (*page, error) {
			cancel()
			return &page{PollInterval: time.Second}, nil
		},
	}

	c, _, sleeps, ctx, cancelFn := newTestClient(t, api, "vid-1")
	cancel = cancelFn
	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(*sleeps) == 0 || (*sleeps)[0] != errorBackoff {
		t.Fatalf("sleeps = %v, want 5s backoff first", *sleeps)
	}
	if api.call != 2 {
		t.Fatalf("made %d fetches, want retry after error", api.call)
	}
}

func TestRun_NoActiveBroadcastStopsCleanly(t *testing.T) {
	api := &fakeAPI{broadcast: ""}
	c, _, _, ctx, cancel := newTestClient(t, api, "")
	defer cancel()

	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run should stop cleanly, got %v", err)
	}
	if c.Status() != chat.StatusStopped {
		t.Fatalf("status = %s, want stopped", c.Status())
	}
}

func TestRun_NoLiveChatStopsCleanly(t *testing.T) {
	api := &fakeAPI{broadcast: "vid-1", chatID: ""}
	c, _, _, ctx, cancel := newTestClient(t, api, "")
	defer cancel()

	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run should stop cleanly, got %v", err)
	}
	if c.Status() != chat.StatusStopped {
		t.Fatalf("status = %s, want stopped", c.Status())
	}
}

func TestRun_MissingTokens(t *testing.T) {
	hub := state.New()
	c := New(hub, "vid-1")
	if err := c.Run(context.Background()); err == nil {
		t.Fatal("expected error without tokens")
	}
	if c.Status() != chat.StatusError {
		t.Fatalf("status = %s, want error", c.Status())
	}
}

func TestSend_BeforeConnect(t *testing.T) {
	c := New(state.New(), "vid-1")
	if err := c.Send(context.Background(), "hello"); err == nil {
		t.Fatal("expected error before connect")
	}
}

func TestNormalize_SkipsNonTextEvents(t *testing.T) {
	item := textItem("m1", "UC1", "Someone", "hi")
	item.Snippet.Type = "superChatEvent"
	if _, ok := normalize(item); ok {
		t.Fatal("super chat passed as text message")
	}
}

func TestBuildUser_RoleMapping(t *testing.T) {
	u := buildUser(&yt.LiveChatMessageAuthorDetails{
		ChannelId:       "UC9",
		ChannelUrl:      "https://www.youtube.com/channel/UC9",
		DisplayName:     "Streamer",
		IsChatOwner:     true,
		IsChatModerator: true,
		IsChatSponsor:   true,
	})
	for _, role := range []model.UserRole{model.RoleBroadcaster, model.RoleModerator, model.RoleSubscriber, model.RoleViewer} {
		if !u.HasRole(role) {
			t.Errorf("missing role %s", role)
		}
	}
	if len(u.Badges) != 3 {
		t.Errorf("badges = %+v, want owner/moderator/member", u.Badges)
	}
	if u.Username != "UC9" {
		t.Errorf("username = %q", u.Username)
	}
	if u.Color != "" {
		t.Errorf("youtube users have no color, got %q", u.Color)
	}
}
