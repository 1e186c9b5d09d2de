package appsearch

import (
	"context"
	"net/http"
)

// Crawler is the crawler configuration attached to an engine.
type Crawler struct {
	Domains []CrawlerDomain `json:"domains"`
}

// CrawlerDomain is one crawled domain with its sub-resources.
type CrawlerDomain struct {
	ID          string       `json:"id,omitempty"`
	Name        string       `json:"name"`
	EntryPoints []EntryPoint `json:"entry_points,omitempty"`
	CrawlRules  []CrawlRule  `json:"crawl_rules,omitempty"`
	Sitemaps    []Sitemap    `json:"sitemaps,omitempty"`
}

// EntryPoint is a path the crawler starts from.
type EntryPoint struct {
	ID    string `json:"id,omitempty"`
	Value string `json:"value"`
}

// CrawlRule allows or denies paths.
type CrawlRule struct {
	ID      string `json:"id,omitempty"`
	Policy  string `json:"policy"`
	Rule    string `json:"rule"`
	Pattern string `json:"pattern"`
	Order   int    `json:"order,omitempty"`
}

// Sitemap is a sitemap URL registered on a domain.
type Sitemap struct {
	ID  string `json:"id,omitempty"`
	URL string `json:"url"`
}

// GetCrawler returns the crawler configuration, or nil when the engine has
// no crawler.
func (c *Client) GetCrawler(ctx context.Context, engine string) (*Crawler, error) {
	var cr Crawler
	if err := c.do(ctx, "GetCrawler", http.MethodGet, enginePath(engine, "crawler"), nil, nil, &cr); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &cr, nil
}

// CreateCrawlerDomain registers a domain and returns it with its new ID.
func (c *Client) CreateCrawlerDomain(ctx context.Context, engine, name string) (*CrawlerDomain, error) {
	var d CrawlerDomain
	payload := map[string]any{"name": name}
	if err := c.do(ctx, "CreateCrawlerDomain", http.MethodPost, enginePath(engine, "crawler", "domains"), nil, payload, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateEntryPoint adds an entry point to a domain.
func (c *Client) CreateEntryPoint(ctx context.Context, engine, domainID, value string) error {
	payload := map[string]any{"value": value}
	return c.do(ctx, "CreateEntryPoint", http.MethodPost, enginePath(engine, "crawler", "domains", domainID, "entry_points"), nil, payload, nil)
}

// CreateCrawlRule adds a crawl rule to a domain.
func (c *Client) CreateCrawlRule(ctx context.Context, engine, domainID string, rule CrawlRule) error {
	rule.ID = ""
	return c.do(ctx, "CreateCrawlRule", http.MethodPost, enginePath(engine, "crawler", "domains", domainID, "crawl_rules"), nil, rule, nil)
}

// CreateSitemap adds a sitemap to a domain.
func (c *Client) CreateSitemap(ctx context.Context, engine, domainID, sitemapURL string) error {
	payload := map[string]any{"url": sitemapURL}
	return c.do(ctx, "CreateSitemap", http.MethodPost, enginePath(engine, "crawler", "domains", domainID, "sitemaps"), nil, payload, nil)
}
