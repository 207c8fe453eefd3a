// Package scoring rates how well videos match a search term. Video metadata,
// comments and a transcript sample are gathered from the video platform and
// handed to a language model that returns a match rate and comment summaries.
package scoring

import (
	"context"
	"errors"

	"tubematch/internal/models"
)

var (
	ErrVideoNotFound  = errors.New("video not found")
	ErrMalformedScore = errors.New("malformed score")
	ErrNoTranscript   = errors.New("no transcript available")
)

const (
	// CommentLimit is how many relevance-ordered comments feed the prompt.
	CommentLimit = 12
	// TranscriptUnavailable stands in for a transcript that could not be fetched.
	TranscriptUnavailable = "Not available"
)

type VideoSource interface {
	VideoDetails(ctx context.Context, videoID string) (models.VideoDetails, error)
	TopComments(ctx context.Context, videoID string, limit int) ([]string, error)
}

type TranscriptSource interface {
	Sample(ctx context.Context, videoID string) (string, error)
}

type Scorer interface {
	Score(ctx context.Context, in ScoreInput) (Score, error)
}

type ScoreInput struct {
	SearchTerm  string
	Title       string
	Description string
	Transcript  string
	Comments    []string
}

type Score struct {
	MatchRate        float64  `json:"match_rate"`
	CommentSummaries []string `json:"comment_summaries"`
}
