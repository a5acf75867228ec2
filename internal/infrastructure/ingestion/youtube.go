package ingestion

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"avatarcast/internal/core/domain"
	"avatarcast/internal/core/ports"
	"avatarcast/pkg/validation"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// YouTubeSource reads the active live chat of a broadcast through the Data API.
type YouTubeSource struct {
	grace        time.Duration
	minPollDelay time.Duration
	opts         []option.ClientOption
	logger       *zap.SugaredLogger
}

var _ ports.ChatSource = (*YouTubeSource)(nil)

func NewYouTubeSource(apiKey string, grace, minPollDelay time.Duration, logger *zap.SugaredLogger, opts ...option.ClientOption) *YouTubeSource {
	if grace <= 0 {
		grace = 2 * time.Second
	}
	if minPollDelay <= 0 {
		minPollDelay = time.Second
	}
	if apiKey != "" {
		opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	}
	return &YouTubeSource{
		grace:        grace,
		minPollDelay: minPollDelay,
		opts:         opts,
		logger:       logger,
	}
}

func (s *YouTubeSource) Platform() domain.Platform  { return domain.PlatformYouTube }
func (s *YouTubeSource) GracePeriod() time.Duration { return s.grace }

// Normalize accepts a bare video id or a watch/live/youtu.be URL.
func (s *YouTubeSource) Normalize(identifier string) (string, error) {
	id := strings.TrimSpace(identifier)
	if u, err := url.Parse(id); err == nil && u.Host != "" {
		switch {
		case u.Query().Get("v") != "":
			id = u.Query().Get("v")
		case strings.HasSuffix(u.Host, "youtu.be"):
			id = strings.Trim(u.Path, "/")
		case strings.HasPrefix(u.Path, "/live/"):
			id = strings.TrimPrefix(u.Path, "/live/")
		}
	}
	if err := validation.ValidateYouTubeVideoID(id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *YouTubeSource) Open(ctx context.Context, videoID string) (ports.ChatStream, error) {
	svc, err := youtube.NewService(ctx, s.opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create youtube client: %w", err)
	}

	resp, err := svc.Videos.List([]string{"liveStreamingDetails"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to look up video %s: %w", videoID, err)
	}
	if len(resp.Items) == 0 || resp.Items[0].LiveStreamingDetails == nil ||
		resp.Items[0].LiveStreamingDetails.ActiveLiveChatId == "" {
		return nil, fmt.Errorf("video %s: %w", videoID, domain.ErrNotLive)
	}

	chatID := resp.Items[0].LiveStreamingDetails.ActiveLiveChatId
	s.logger.Debugw("resolved live chat", "video_id", videoID, "chat_id", chatID)
	return &youtubeStream{
		svc:          svc,
		chatID:       chatID,
		minPollDelay: s.minPollDelay,
	}, nil
}

type youtubeStream struct {
	svc          *youtube.Service
	chatID       string
	pageToken    string
	wait         time.Duration
	minPollDelay time.Duration
}

// Next honours the polling interval returned by the previous page before
// fetching the following one.
func (s *youtubeStream) Next(ctx context.Context) ([]domain.ChatMessage, error) {
	if s.wait > 0 {
		t := time.NewTimer(s.wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	call := s.svc.LiveChatMessages.List(s.chatID, []string{"snippet", "authorDetails"}).Context(ctx)
	if s.pageToken != "" {
		call = call.PageToken(s.pageToken)
	}
	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("failed to poll live chat: %w", err)
	}

	s.pageToken = resp.NextPageToken
	s.wait = max(time.Duration(resp.PollingIntervalMillis)*time.Millisecond, s.minPollDelay)

	msgs := make([]domain.ChatMessage, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Snippet == nil || item.Snippet.DisplayMessage == "" {
			continue
		}
		author := ""
		if item.AuthorDetails != nil {
			author = item.AuthorDetails.DisplayName
		}
		at := time.Now()
		if ts, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
			at = ts
		}
		msgs = append(msgs, domain.NewChatMessage(domain.PlatformYouTube, author, item.Snippet.DisplayMessage, at))
	}
	return msgs, nil
}

func (s *youtubeStream) Close() error { return nil }
