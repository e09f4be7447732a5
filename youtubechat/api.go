package youtubechat

import (
	"context"
	"time"

	yt "google.golang.org/api/youtube/v3"
)

// apiService binds chatAPI to the real YouTube Data API.
type apiService struct {
	svc *yt.Service
}

func (s *apiService) ActiveBroadcast(ctx context.Context) (string, string, error) {
	resp, err := s.svc.LiveBroadcasts.List([]string{"id", "snippet", "status"}).
		Mine(true).
		BroadcastStatus("active").
		Context(ctx).Do()
	if err != nil {
		return "", "", err
	}
	if len(resp.Items) == 0 {
		return "", "", nil
	}
	b := resp.Items[0]
	title := ""
	if b.Snippet != nil {
		title = b.Snippet.Title
	}
	return b.Id, title, nil
}

func (s *apiService) LiveChatID(ctx context.Context, videoID string) (string, string, error) {
	resp, err := s.svc.Videos.List([]string{"liveStreamingDetails", "snippet"}).
		Id(videoID).
		Context(ctx).Do()
	if err != nil {
		return "", "", err
	}
	if len(resp.Items) == 0 {
		return "", "", nil
	}
	v := resp.Items[0]
	chatID := ""
	if v.LiveStreamingDetails != nil {
		chatID = v.LiveStreamingDetails.ActiveLiveChatId
	}
	title := ""
	if v.Snippet != nil {
		title = v.Snippet.Title
	}
	return chatID, title, nil
}

func (s *apiService) Messages(ctx context.Context, chatID, pageToken string) (*page, error) {
	call := s.svc.LiveChatMessages.List(chatID, []string{"snippet", "authorDetails"}).Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Do()
	if err != nil {
		return nil, err
	}
	return &page{
		NextPageToken: resp.NextPageToken,
		PollInterval:  time.Duration(resp.PollingIntervalMillis) * time.Millisecond,
		Items:         resp.Items,
	}, nil
}

func (s *apiService) Insert(ctx context.Context, chatID, text string) error {
	msg := &yt.LiveChatMessage{
		Snippet: &yt.LiveChatMessageSnippet{
			LiveChatId: chatID,
			Type:       "textMessageEvent",
			TextMessageDetails: &yt.LiveChatTextMessageDetails{
				MessageText: text,
			},
		},
	}
	_, err := s.svc.LiveChatMessages.Insert([]string{"snippet"}, msg).Context(ctx).Do()
	return err
}
