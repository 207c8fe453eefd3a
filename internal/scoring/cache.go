package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"tubematch/internal/lib/sl"
	"tubematch/internal/models"

	"github.com/redis/go-redis/v9"
)

const videoKeyPrefix = "video:details:"

// CachedVideoSource keeps video details in redis. Comments are always read
// through. Cache errors degrade to a direct read.
type CachedVideoSource struct {
	next VideoSource
	rdb  *redis.Client
	ttl  time.Duration
	log  *slog.Logger
}

// NewCachedVideoSource wraps next with a Redis cache of video details.
func NewCachedVideoSource(next VideoSource, rdb *redis.Client, ttl time.Duration, log *slog.Logger) *CachedVideoSource {
	return &CachedVideoSource{next: next, rdb: rdb, ttl: ttl, log: log}
}

func (c *CachedVideoSource) VideoDetails(ctx context.Context, videoID string) (models.VideoDetails, error) {
	key := videoKeyPrefix + videoID
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var d models.VideoDetails
		if err := json.Unmarshal(raw, &d); err == nil {
			return d, nil
		}
		c.log.Warn("dropping unreadable cached video", slog.String("video_id", videoID))
	case !errors.Is(err, redis.Nil):
		c.log.Warn("video cache read failed", slog.String("video_id", videoID), sl.Err(err))
	}

	d, err := c.next.VideoDetails(ctx, videoID)
	if err != nil {
		return models.VideoDetails{}, err
	}
	if data, err := json.Marshal(d); err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.log.Warn("video cache write failed", slog.String("video_id", videoID), sl.Err(err))
		}
	}
	return d, nil
}

// TopComments is not cached.
func (c *CachedVideoSource) TopComments(ctx context.Context, videoID string, limit int) ([]string, error) {
	return c.next.TopComments(ctx, videoID, limit)
}
