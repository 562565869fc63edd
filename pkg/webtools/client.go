// Package webtools serves the research-facing web tools: a DuckDuckGo
// instant-answer search and a webpage text scraper, with an optional
// headless-Chrome renderer for pages that only take shape once their
// scripts have run.
package webtools

import (
	"net/http"
	"time"
)

const (
	defaultSearchURL = "https://api.duckduckgo.com/"
	defaultUserAgent = "Mozilla/5.0 (compatible; KaigiBot/1.0)"
	defaultTimeout   = 10 * time.Second

	// maxExcerpt caps scraped page text, in characters.
	maxExcerpt = 2000
	// maxRelated caps how many related topics a search renders.
	maxRelated = 5
	// maxTopicText caps each related topic's text, in characters.
	maxTopicText = 100
)

// Config holds the web client settings.
type Config struct {
	SearchURL string        `json:"search_url"`
	UserAgent string        `json:"user_agent"`
	Timeout   time.Duration `json:"timeout"`
}

// DefaultConfig returns the stock settings: the DuckDuckGo
// instant-answer endpoint and a 10 second request timeout.
func DefaultConfig() Config {
	return Config{
		SearchURL: defaultSearchURL,
		UserAgent: defaultUserAgent,
		Timeout:   defaultTimeout,
	}
}

// Client performs web searches and page scrapes for agents.
type Client struct {
	config   Config
	http     *http.Client
	renderer *Renderer
}

// Option configures a Client.
type Option func(*Client)

// WithRenderer routes scrapes through a headless browser instead of a
// plain GET.
func WithRenderer(r *Renderer) Option {
	return func(c *Client) { c.renderer = r }
}

// New creates a web client. Zero config fields fall back to defaults.
func New(config Config, opts ...Option) *Client {
	if config.SearchURL == "" {
		config.SearchURL = defaultSearchURL
	}
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}

	c := &Client{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
