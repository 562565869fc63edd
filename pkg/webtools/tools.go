package webtools

import (
	"context"

	"github.com/haruo/kaigi/pkg/toolexecutor"
)

// Definitions returns the web tool definitions backed by this client.
func (c *Client) Definitions() []toolexecutor.Definition {
	return []toolexecutor.Definition{
		{
			Name:        "web_search",
			Description: "Search the web using DuckDuckGo. Returns a summary and related results for the query.",
			Parameters: []toolexecutor.Parameter{
				{
					Name:        "query",
					Type:        "string",
					Description: "Search query string",
					Required:    true,
				},
			},
			Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				query, _ := args["query"].(string)
				return c.Search(ctx, query)
			},
		},
		{
			Name:        "scrape_webpage",
			Description: "Scrape text content from a webpage (first 2000 characters).",
			Parameters: []toolexecutor.Parameter{
				{
					Name:        "url",
					Type:        "string",
					Description: "URL of the webpage to scrape",
					Required:    true,
				},
			},
			Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				pageURL, _ := args["url"].(string)
				return c.Scrape(ctx, pageURL)
			},
		},
	}
}
