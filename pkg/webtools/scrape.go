package webtools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/haruo/kaigi/internal/tracing"
)

// maxBody caps how many bytes of a page are read before extraction.
const maxBody = 2 << 20

// Scrape fetches a page and returns its visible text, capped at 2000
// characters. With a renderer attached the page loads in headless
// Chrome first, so content built by scripts is present in the DOM.
func (c *Client) Scrape(ctx context.Context, pageURL string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "kaigi.webtools", "webtools.scrape",
		attribute.String("url", pageURL))
	defer span.End()

	start := time.Now()

	html, err := c.fetch(ctx, pageURL)
	if err != nil {
		return "", fmt.Errorf("Failed to scrape webpage: %w", err)
	}

	text, err := extractText(html)
	if err != nil {
		return "", fmt.Errorf("Failed to scrape webpage: %w", err)
	}

	log.Debug().
		Str("url", pageURL).
		Int("chars", utf8.RuneCountInString(text)).
		Bool("rendered", c.renderer != nil).
		Dur("duration", time.Since(start)).
		Msg("Webpage scraped")

	return text, nil
}

func (c *Client) fetch(ctx context.Context, pageURL string) (string, error) {
	if c.renderer != nil {
		return c.renderer.HTML(ctx, pageURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// extractText renders HTML down to the plain text an agent can read:
// script, style, nav, and footer subtrees dropped, entities decoded,
// whitespace collapsed to single spaces, capped at maxExcerpt
// characters with an ellipsis marker.
func extractText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script,style,nav,footer").Remove()

	text := strings.Join(strings.Fields(doc.Text()), " ")
	if utf8.RuneCountInString(text) > maxExcerpt {
		text = truncateRunes(text, maxExcerpt) + "..."
	}
	return text, nil
}
