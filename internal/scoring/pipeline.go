package scoring

import (
	"context"
	"fmt"
	"log/slog"

	"tubematch/internal/lib/sl"
	"tubematch/internal/models"

	"golang.org/x/sync/errgroup"
)

// Pipeline gathers video context and scores it against a search term.
type Pipeline struct {
	videos      VideoSource
	transcripts TranscriptSource
	scorer      Scorer
	log         *slog.Logger
}

// NewPipeline builds a Pipeline from its sources and scorer.
func NewPipeline(videos VideoSource, transcripts TranscriptSource, scorer Scorer, log *slog.Logger) *Pipeline {
	return &Pipeline{videos: videos, transcripts: transcripts, scorer: scorer, log: log}
}

// Analyze scores every video in request order. The first failing video
// aborts the batch and no partial results are returned.
func (p *Pipeline) Analyze(ctx context.Context, req models.AnalysisRequest) ([]models.VideoAnalysis, error) {
	results := make([]models.VideoAnalysis, 0, len(req.VideoIDs))
	for _, id := range req.VideoIDs {
		res, err := p.analyzeOne(ctx, id, req.SearchTerm)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (p *Pipeline) analyzeOne(ctx context.Context, videoID, searchTerm string) (models.VideoAnalysis, error) {
	log := p.log.With(slog.String("video_id", videoID))

	var (
		details    models.VideoDetails
		comments   []string
		transcript string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		details, err = p.videos.VideoDetails(gctx, videoID)
		return err
	})
	g.Go(func() error {
		c, err := p.videos.TopComments(gctx, videoID, CommentLimit)
		if err != nil {
			log.Warn("comments unavailable", sl.Err(err))
			c = []string{}
		}
		comments = c
		return nil
	})
	g.Go(func() error {
		t, err := p.transcripts.Sample(gctx, videoID)
		if err != nil {
			log.Debug("transcript unavailable", sl.Err(err))
			t = TranscriptUnavailable
		}
		transcript = t
		return nil
	})
	if err := g.Wait(); err != nil {
		return models.VideoAnalysis{}, err
	}

	score, err := p.scorer.Score(ctx, ScoreInput{
		SearchTerm:  searchTerm,
		Title:       details.Title,
		Description: details.Description,
		Transcript:  transcript,
		Comments:    comments,
	})
	if err != nil {
		return models.VideoAnalysis{}, fmt.Errorf("content analysis for title '%s': %w", details.Title, err)
	}
	log.Debug("video scored", slog.Float64("match_rate", score.MatchRate))

	return models.VideoAnalysis{
		VideoID:          videoID,
		MatchRate:        score.MatchRate,
		CommentSummaries: score.CommentSummaries,
		Title:            details.Title,
		Description:      details.Description,
	}, nil
}
