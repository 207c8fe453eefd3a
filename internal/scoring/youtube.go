package scoring

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"tubematch/internal/models"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// YouTube reads video snippets and comment threads from the YouTube Data API.
type YouTube struct {
	svc *youtube.Service
}

// NewYouTube builds a Data API client authenticated with apiKey. opts are
// appended after the key, so tests can redirect the endpoint.
func NewYouTube(ctx context.Context, apiKey string, opts ...option.ClientOption) (*YouTube, error) {
	const op = "scoring.NewYouTube"
	if apiKey == "" && len(opts) == 0 {
		return nil, fmt.Errorf("%s: api key not configured", op)
	}
	all := append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := youtube.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &YouTube{svc: svc}, nil
}

// VideoDetails returns the snippet title and description, or ErrVideoNotFound.
func (y *YouTube) VideoDetails(ctx context.Context, videoID string) (models.VideoDetails, error) {
	const op = "scoring.YouTube.VideoDetails"
	resp, err := y.svc.Videos.List([]string{"snippet"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return models.VideoDetails{}, fmt.Errorf("%w: %s", ErrVideoNotFound, videoID)
		}
		return models.VideoDetails{}, fmt.Errorf("%s: %s: %w", op, videoID, err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Snippet == nil {
		return models.VideoDetails{}, fmt.Errorf("%w: %s", ErrVideoNotFound, videoID)
	}
	snippet := resp.Items[0].Snippet
	return models.VideoDetails{
		VideoID:     videoID,
		Title:       snippet.Title,
		Description: snippet.Description,
	}, nil
}

// TopComments returns up to limit top-level comments ordered by relevance.
func (y *YouTube) TopComments(ctx context.Context, videoID string, limit int) ([]string, error) {
	const op = "scoring.YouTube.TopComments"
	resp, err := y.svc.CommentThreads.List([]string{"snippet"}).
		VideoId(videoID).
		MaxResults(int64(limit)).
		Order("relevance").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, videoID, err)
	}
	comments := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Snippet == nil || item.Snippet.TopLevelComment == nil || item.Snippet.TopLevelComment.Snippet == nil {
			continue
		}
		comments = append(comments, item.Snippet.TopLevelComment.Snippet.TextDisplay)
	}
	return comments, nil
}
