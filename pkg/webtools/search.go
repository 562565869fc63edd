package webtools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/haruo/kaigi/internal/tracing"
)

// instantAnswer is the slice of the DuckDuckGo response the search
// renders.
type instantAnswer struct {
	AbstractText  string         `json:"AbstractText"`
	RelatedTopics []relatedTopic `json:"RelatedTopics"`
}

// relatedTopic is one entry of RelatedTopics. Category buckets nest
// their entries under a Topics key instead of carrying Text; they
// decode to an empty Text here and render nothing, but keep their
// numbered slot.
type relatedTopic struct {
	Text     string `json:"Text"`
	FirstURL string `json:"FirstURL"`
}

// Search queries the DuckDuckGo instant-answer API and renders a
// summary plus up to five related results.
func (c *Client) Search(ctx context.Context, query string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "kaigi.webtools", "webtools.search",
		attribute.String("query", query))
	defer span.End()

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.SearchURL, nil)
	if err != nil {
		return "", fmt.Errorf("Web search failed: %w", err)
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	req.URL.RawQuery = params.Encode()
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("Web search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("Web search failed: unexpected status %s", resp.Status)
	}

	var answer instantAnswer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return "", fmt.Errorf("Web search failed: %w", err)
	}

	log.Debug().
		Str("query", query).
		Int("topics", len(answer.RelatedTopics)).
		Dur("duration", time.Since(start)).
		Msg("Web search completed")

	return formatSearch(query, answer), nil
}

// formatSearch renders the instant answer: a Summary line from the
// abstract (followed by a blank line), then a numbered Related Results
// list with an indented URL line per topic. Nothing to show renders
// the fixed no-results line instead.
func formatSearch(query string, answer instantAnswer) string {
	var lines []string

	if answer.AbstractText != "" {
		lines = append(lines, fmt.Sprintf("Summary: %s\n", answer.AbstractText))
	}

	topics := answer.RelatedTopics
	if len(topics) > maxRelated {
		topics = topics[:maxRelated]
	}
	if len(topics) > 0 {
		lines = append(lines, "Related Results:")
		for i, topic := range topics {
			if topic.Text == "" {
				continue
			}
			lines = append(lines, fmt.Sprintf("%d. %s", i+1, truncateRunes(topic.Text, maxTopicText)))
			if topic.FirstURL != "" {
				lines = append(lines, "   URL: "+topic.FirstURL)
			}
		}
	}

	if len(lines) == 0 {
		return fmt.Sprintf("No results found for query: %s", query)
	}
	return strings.Join(lines, "\n")
}

// truncateRunes caps s at n characters, not bytes, so multibyte text
// is never split mid-rune.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
