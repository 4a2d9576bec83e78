package youtube

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"videocorpus/internal/core/domain"
	"videocorpus/internal/logger"
)

// maxPageSize is the largest maxResults the search endpoint accepts.
const maxPageSize = 50

// Client implements ports.Searcher over the YouTube Data API v3.
type Client struct {
	service *yt.Service
	limiter *rate.Limiter
	logger  *logger.Logger
}

// NewClient creates a client authenticated with apiKey. Successive search page
// requests are separated by at least interval. Extra options are appended after
// the key, which lets tests point the client at a local server.
func NewClient(ctx context.Context, apiKey string, interval time.Duration, log *logger.Logger, opts ...option.ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("missing YouTube API key")
	}
	if log == nil {
		log = logger.Nop()
	}

	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	service, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}

	return &Client{
		service: service,
		limiter: newLimiter(interval),
		logger:  log,
	}, nil
}

func newLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Search pages through video results for query until maxResults items have been
// collected or no continuation token is returned.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]domain.SearchItem, error) {
	items := make([]domain.SearchItem, 0, maxResults)
	pageToken := ""

	for page := 1; len(items) < maxResults; page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return items, fmt.Errorf("search %q: %w", query, err)
		}

		call := c.service.Search.List([]string{"snippet"}).
			Q(query).
			Type("video").
			MaxResults(int64(min(maxPageSize, maxResults-len(items)))).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return items, fmt.Errorf("search %q page %d: %w", query, page, err)
		}

		for _, it := range resp.Items {
			if it.Id == nil || it.Id.VideoId == "" || it.Snippet == nil {
				continue
			}
			items = append(items, domain.SearchItem{
				VideoID:      it.Id.VideoId,
				Title:        it.Snippet.Title,
				Description:  it.Snippet.Description,
				PublishedAt:  it.Snippet.PublishedAt,
				ChannelID:    it.Snippet.ChannelId,
				ChannelTitle: it.Snippet.ChannelTitle,
			})
			if len(items) >= maxResults {
				break
			}
		}
		c.logger.Debug().Str("query", query).Int("page", page).Int("items", len(items)).Msg("search page fetched")

		if resp.NextPageToken == "" || len(resp.Items) == 0 {
			break
		}
		pageToken = resp.NextPageToken
	}

	return items, nil
}

// FetchDetails returns the statistics and duration of a single video.
func (c *Client) FetchDetails(ctx context.Context, videoID string) (domain.VideoDetails, error) {
	resp, err := c.service.Videos.List([]string{"statistics", "contentDetails"}).
		Id(videoID).
		Context(ctx).
		Do()
	if err != nil {
		return domain.VideoDetails{}, fmt.Errorf("video details %s: %w", videoID, err)
	}
	if len(resp.Items) == 0 {
		return domain.VideoDetails{}, fmt.Errorf("video details %s: %w", videoID, domain.ErrVideoNotFound)
	}

	v := resp.Items[0]
	var d domain.VideoDetails
	if v.Statistics != nil {
		d.ViewCount = v.Statistics.ViewCount
		d.LikeCount = v.Statistics.LikeCount
		d.CommentCount = v.Statistics.CommentCount
	}
	if v.ContentDetails != nil {
		d.Duration = v.ContentDetails.Duration
	}
	return d, nil
}
