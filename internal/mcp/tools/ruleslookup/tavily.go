package ruleslookup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultTavilyEndpoint = "https://api.tavily.com/search"

	// ArchivesOfNethys is the only domain searched.
	ArchivesOfNethys = "https://2e.aonprd.com"
)

// ErrNoAPIKey is returned by [Client.Search] when no Tavily key is configured.
var ErrNoAPIKey = errors.New("Tavily API key not configured")

// SearchResult is one hit returned by Tavily.
type SearchResult struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	URL     string  `json:"url"`
	Score   float64 `json:"score"`
}

type searchResponse struct {
	Results []SearchResult `json:"results"`
}

// Client queries the Tavily search API, restricted to the Archives of Nethys.
type Client struct {
	http     *resty.Client
	apiKey   string
	endpoint string
}

// ClientOption configures a [Client].
type ClientOption func(*Client)

// WithEndpoint overrides the Tavily search URL.
func WithEndpoint(url string) ClientOption {
	return func(c *Client) { c.endpoint = url }
}

// NewClient returns a Tavily client. An empty apiKey yields a client whose
// Search always fails with [ErrNoAPIKey].
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		http: resty.New().
			SetHeader("User-Agent", "Frinny-Backend/1.0").
			SetTimeout(15 * time.Second),
		apiKey:   apiKey,
		endpoint: defaultTavilyEndpoint,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

// Search runs query, suffixed with "pathfinder 2e", against Tavily.
func (c *Client) Search(ctx context.Context, query string) ([]SearchResult, error) {
	if !c.Configured() {
		return nil, ErrNoAPIKey
	}

	body := map[string]any{
		"query":           query + " pathfinder 2e",
		"include_domains": []string{ArchivesOfNethys},
		"search_depth":    "advanced",
		"max_results":     5,
	}

	var result searchResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&result).
		Post(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("ruleslookup: tavily search: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("ruleslookup: tavily search: status %d: %s", resp.StatusCode(), resp.String())
	}

	for i := range result.Results {
		if result.Results[i].Title == "" {
			result.Results[i].Title = "Untitled"
		}
		if result.Results[i].Content == "" {
			result.Results[i].Content = "No content available"
		}
	}
	return result.Results, nil
}
