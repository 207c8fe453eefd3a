package scoring

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	timedTextURL = "https://www.youtube.com/api/timedtext"

	sampleDuration = 40 * time.Second
	sampleMaxRunes = 500
)

type timedText struct {
	Lines []timedTextLine `xml:"text"`
}

type timedTextLine struct {
	Start    float64 `xml:"start,attr"`
	Duration float64 `xml:"dur,attr"`
	Text     string  `xml:",chardata"`
}

// TimedText samples the opening of a video's English captions from the
// timedtext endpoint.
type TimedText struct {
	client  *http.Client
	baseURL string
	lang    string
}

// TimedTextOption configures a TimedText.
type TimedTextOption func(*TimedText)

func WithTimedTextURL(u string) TimedTextOption {
	return func(t *TimedText) { t.baseURL = u }
}

// NewTimedText uses client for every transcript request.
func NewTimedText(client *http.Client, opts ...TimedTextOption) *TimedText {
	if client == nil {
		client = http.DefaultClient
	}
	t := &TimedText{client: client, baseURL: timedTextURL, lang: "en"}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Sample returns caption text covering roughly the first 40 seconds,
// capped at 500 characters.
func (t *TimedText) Sample(ctx context.Context, videoID string) (string, error) {
	const op = "scoring.TimedText.Sample"
	q := url.Values{}
	q.Set("lang", t.lang)
	q.Set("v", videoID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: status %d", op, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return "", fmt.Errorf("%s: %w: %s", op, ErrNoTranscript, videoID)
	}
	var tt timedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return "", fmt.Errorf("%s: parse timedtext: %w", op, err)
	}

	text := sampleLines(tt.Lines)
	if text == "" {
		return "", fmt.Errorf("%s: %w: %s", op, ErrNoTranscript, videoID)
	}
	return text, nil
}

func sampleLines(lines []timedTextLine) string {
	var (
		parts []string
		total float64
	)
	for _, line := range lines {
		text := strings.TrimSpace(html.UnescapeString(line.Text))
		if text != "" {
			parts = append(parts, text)
		}
		total += line.Duration
		if total >= sampleDuration.Seconds() {
			break
		}
	}
	return truncateRunes(strings.Join(parts, " "), sampleMaxRunes)
}
