package scoring

import (
	"encoding/json"
	"fmt"
	"strings"
)

const maxDescriptionRunes = 3500

const systemPrompt = "You are a video content analyzer - Use exact matching criteria provided - " +
	"Provide analysis as JSON with keys 'match_rate' (number) and 'comment_summaries' (array of 3 strings)."

const scoringCriteria = `1. Video Analysis - Match Rate (0-100%)

Evaluate how well the video matches the search term based on:
Title, description, and transcript (first minute only)
How the introduction sets up the topic
Whether the title/description promise relevant content

Scoring Criteria:
0% : Completely unrelated (e.g., cooking video for a programming search).
1-30% : Brief keyword mention but mostly unrelated OR only a minor part of the topic.
31-60% : Covers one/few key aspect well or is a broad foundational topic.
61-90% : Covers most search terms directly and in the right context.
91-100% : Near-perfect match, covers all, and 95%+ positive comments

2. Three main points from comments negative/positive (3-4 words each)`

func buildPrompt(in ScoreInput) string {
	transcript := in.Transcript
	if transcript == "" {
		transcript = TranscriptUnavailable
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", in.Title)
	fmt.Fprintf(&b, "Description: %s\n", truncateRunes(in.Description, maxDescriptionRunes))
	fmt.Fprintf(&b, "Transcript Sample: %s\n", transcript)
	fmt.Fprintf(&b, "Comments: %s\n", strings.Join(in.Comments, " | "))
	fmt.Fprintf(&b, "Search Term: %s\n\n", in.SearchTerm)
	b.WriteString(scoringCriteria)
	return b.String()
}

// parseScore decodes model output, tolerating a markdown code fence around
// the JSON object.
func parseScore(raw string) (Score, error) {
	cleaned := cleanJSONMarkdown(raw)
	if cleaned == "" {
		return Score{}, fmt.Errorf("%w: empty model output", ErrMalformedScore)
	}
	var s Score
	if err := json.Unmarshal([]byte(cleaned), &s); err != nil {
		return Score{}, fmt.Errorf("%w: %v", ErrMalformedScore, err)
	}
	if s.MatchRate < 0 || s.MatchRate > 100 {
		return Score{}, fmt.Errorf("%w: match rate %v out of range", ErrMalformedScore, s.MatchRate)
	}
	if s.CommentSummaries == nil {
		s.CommentSummaries = []string{}
	}
	return s, nil
}

func cleanJSONMarkdown(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
