package scoring

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"tubematch/internal/models"
)

type fakeVideos struct {
	mu          sync.Mutex
	details     map[string]models.VideoDetails
	comments    map[string][]string
	commentErr  error
	detailCalls int
}

func (f *fakeVideos) VideoDetails(_ context.Context, videoID string) (models.VideoDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls++
	d, ok := f.details[videoID]
	if !ok {
		return models.VideoDetails{}, ErrVideoNotFound
	}
	return d, nil
}

func (f *fakeVideos) TopComments(_ context.Context, videoID string, _ int) ([]string, error) {
	if f.commentErr != nil {
		return nil, f.commentErr
	}
	return f.comments[videoID], nil
}

type fakeTranscripts struct {
	samples map[string]string
}

func (f *fakeTranscripts) Sample(_ context.Context, videoID string) (string, error) {
	s, ok := f.samples[videoID]
	if !ok {
		return "", ErrNoTranscript
	}
	return s, nil
}

type recordingScorer struct {
	mu     sync.Mutex
	inputs []ScoreInput
	scores map[string]Score
	err    error
}

func (r *recordingScorer) Score(_ context.Context, in ScoreInput) (Score, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputs = append(r.inputs, in)
	if r.err != nil {
		return Score{}, r.err
	}
	return r.scores[in.Title], nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
