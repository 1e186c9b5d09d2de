package appsearch_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/engineshift/pkg/appsearch"
	"github.com/3leaps/engineshift/test/fakeappsearch"
)

const testKey = "private-test-key"

func newClient(t *testing.T, srv *fakeappsearch.Server, pageSize int) *appsearch.Client {
	t.Helper()
	c, err := appsearch.New(appsearch.Config{Endpoint: srv.URL, APIKey: testKey, PageSize: pageSize})
	require.NoError(t, err)
	return c
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     appsearch.Config
		wantErr string
	}{
		{"missing endpoint", appsearch.Config{APIKey: "k"}, "endpoint is required"},
		{"relative endpoint", appsearch.Config{Endpoint: "search.local", APIKey: "k"}, "invalid endpoint"},
		{"missing key", appsearch.Config{Endpoint: "https://search.local"}, "api key is required"},
		{"valid", appsearch.Config{Endpoint: "https://search.local", APIKey: "k"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNew_ClampsPageSize(t *testing.T) {
	c, err := appsearch.New(appsearch.Config{Endpoint: "https://search.local/", APIKey: "k", PageSize: 5000})
	require.NoError(t, err)
	assert.Equal(t, appsearch.MaxPageSize, c.PageSize())
	assert.Equal(t, "https://search.local", c.Endpoint())

	c, err = appsearch.New(appsearch.Config{Endpoint: "https://search.local", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, appsearch.DefaultPageSize, c.PageSize())
}

func TestClient_ListEngines_Pages(t *testing.T) {
	srv := fakeappsearch.New(t, testKey)
	for i := 1; i <= 5; i++ {
		srv.AddEngine(fakeappsearch.Engine{Name: fmt.Sprintf("engine-%d", i), Language: "en"})
	}
	c := newClient(t, srv, 2)
	ctx := context.Background()

	page, err := c.ListEngines(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Current)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 5, page.TotalResults)
	require.Len(t, page.Engines, 2)
	assert.Equal(t, "engine-1", page.Engines[0].Name)
	assert.Equal(t, "en", page.Engines[0].Language)
	assert.True(t, page.HasMore())

	page, err = c.ListEngines(ctx, 3, 2)
	require.NoError(t, err)
	require.Len(t, page.Engines, 1)
	assert.Equal(t, "engine-5", page.Engines[0].Name)
	assert.False(t, page.HasMore())
}

func TestClient_Unauthorized(t *testing.T) {
	srv := fakeappsearch.New(t, testKey)
	c, err := appsearch.New(appsearch.Config{Endpoint: srv.URL, APIKey: "wrong"})
	require.NoError(t, err)

	_, err = c.ListEngines(context.Background(), 1, 10)
	require.Error(t, err)
	assert.True(t, appsearch.IsUnauthorized(err))

	var apiErr *appsearch.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "ListEngines", apiErr.Op)
	assert.Contains(t, apiErr.Body, "Invalid credentials")
}

func TestClient_EngineLifecycle(t *testing.T) {
	srv := fakeappsearch.New(t, testKey)
	c := newClient(t, srv, 0)
	ctx := context.Background()

	_, err := c.GetEngine(ctx, "parks")
	assert.True(t, appsearch.IsNotFound(err))

	e, err := c.CreateEngine(ctx, "parks", "en")
	require.NoError(t, err)
	assert.Equal(t, "parks", e.Name)

	_, err = c.CreateEngine(ctx, "parks", "en")
	assert.True(t, appsearch.IsAlreadyExists(err), "duplicate create should map to already exists: %v", err)

	got, err := c.GetEngine(ctx, "parks")
	require.NoError(t, err)
	assert.Equal(t, "en", got.Language)

	require.NoError(t, c.DeleteEngine(ctx, "parks"))
	_, ok := srv.Engine("parks")
	assert.False(t, ok)
}

func TestClient_SchemaAndSettings(t *testing.T) {
	srv := fakeappsearch.New(t, testKey)
	srv.AddEngine(fakeappsearch.Engine{Name: "parks", Schema: map[string]string{"title": "text"}})
	c := newClient(t, srv, 0)
	ctx := context.Background()

	require.NoError(t, c.UpdateSchema(ctx, "parks", appsearch.Schema{"visitors": "number"}))
	schema, err := c.GetSchema(ctx, "parks")
	require.NoError(t, err)
	assert.Equal(t, appsearch.Schema{"title": "text", "visitors": "number"}, schema)

	settings := appsearch.SearchSettings{
		"search_fields": map[string]any{"title": map[string]any{"weight": float64(2)}},
	}
	require.NoError(t, c.UpdateSearchSettings(ctx, "parks", settings))
	got, err := c.GetSearchSettings(ctx, "parks")
	require.NoError(t, err)
	assert.Equal(t, settings["search_fields"], got["search_fields"])

	err = c.UpdateSearchSettings(ctx, "parks", appsearch.SearchSettings{
		"search_fields": map[string]any{"missing": map[string]any{}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, appsearch.ErrBadRequest)
}

func TestClient_ListSynonymsAndCurations_DrainsAllPages(t *testing.T) {
	srv := fakeappsearch.New(t, testKey)
	e := fakeappsearch.Engine{Name: "parks"}
	for i := 0; i < 7; i++ {
		e.Synonyms = append(e.Synonyms, []string{fmt.Sprintf("a%d", i), fmt.Sprintf("b%d", i)})
		e.Curations = append(e.Curations, fakeappsearch.Curation{Queries: []string{fmt.Sprintf("q%d", i)}, Promoted: []string{"doc"}})
	}
	srv.AddEngine(e)
	c := newClient(t, srv, 3)
	ctx := context.Background()

	syns, err := c.ListSynonymSets(ctx, "parks")
	require.NoError(t, err)
	require.Len(t, syns, 7)
	assert.Equal(t, []string{"a6", "b6"}, syns[6].Synonyms)
	assert.Equal(t, 3, srv.Requests(http.MethodGet, "/api/as/v1/engines/parks/synonyms"))

	curs, err := c.ListCurations(ctx, "parks")
	require.NoError(t, err)
	require.Len(t, curs, 7)
	assert.Equal(t, []string{"q0"}, curs[0].Queries)
	assert.Equal(t, []string{"doc"}, curs[0].Promoted)

	require.NoError(t, c.CreateSynonymSet(ctx, "parks", []string{"x", "y"}))
	require.NoError(t, c.CreateCuration(ctx, "parks", appsearch.Curation{ID: "ignored", Queries: []string{"z"}}))
	stored, _ := srv.Engine("parks")
	assert.Len(t, stored.Synonyms, 8)
	assert.Len(t, stored.Curations, 8)
}

func TestClient_Crawler(t *testing.T) {
	srv := fakeappsearch.New(t, testKey)
	srv.AddEngine(fakeappsearch.Engine{Name: "plain"})
	srv.AddEngine(fakeappsearch.Engine{
		Name: "site",
		Type: "crawler",
		Crawler: []fakeappsearch.Domain{{
			Name:        "https://example.com",
			EntryPoints: []string{"/", "/docs"},
			CrawlRules:  []fakeappsearch.CrawlRule{{Policy: "deny", Rule: "begins", Pattern: "/admin", Order: 0}},
			Sitemaps:    []string{"https://example.com/sitemap.xml"},
		}},
	})
	c := newClient(t, srv, 0)
	ctx := context.Background()

	cr, err := c.GetCrawler(ctx, "plain")
	require.NoError(t, err)
	assert.Nil(t, cr)

	cr, err = c.GetCrawler(ctx, "site")
	require.NoError(t, err)
	require.NotNil(t, cr)
	require.Len(t, cr.Domains, 1)
	d := cr.Domains[0]
	assert.Equal(t, "https://example.com", d.Name)
	require.Len(t, d.EntryPoints, 2)
	assert.Equal(t, "/docs", d.EntryPoints[1].Value)
	require.Len(t, d.CrawlRules, 1)
	assert.Equal(t, "/admin", d.CrawlRules[0].Pattern)
	require.Len(t, d.Sitemaps, 1)

	nd, err := c.CreateCrawlerDomain(ctx, "plain", "https://other.example")
	require.NoError(t, err)
	require.NotEmpty(t, nd.ID)
	require.NoError(t, c.CreateEntryPoint(ctx, "plain", nd.ID, "/start"))
	require.NoError(t, c.CreateCrawlRule(ctx, "plain", nd.ID, appsearch.CrawlRule{Policy: "allow", Rule: "regex", Pattern: ".*"}))
	require.NoError(t, c.CreateSitemap(ctx, "plain", nd.ID, "https://other.example/sitemap.xml"))

	stored, _ := srv.Engine("plain")
	require.Len(t, stored.Crawler, 1)
	assert.Equal(t, []string{"/start"}, stored.Crawler[0].EntryPoints)
	assert.Len(t, stored.Crawler[0].CrawlRules, 1)
	assert.Equal(t, []string{"https://other.example/sitemap.xml"}, stored.Crawler[0].Sitemaps)
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		check  func(error) bool
	}{
		{http.StatusTooManyRequests, appsearch.IsThrottled},
		{http.StatusServiceUnavailable, appsearch.IsUnavailable},
		{http.StatusBadGateway, appsearch.IsRetriable},
		{http.StatusConflict, appsearch.IsAlreadyExists},
		{http.StatusNotFound, appsearch.IsNotFound},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := fakeappsearch.New(t, testKey)
			srv.AddEngine(fakeappsearch.Engine{Name: "parks"})
			srv.Fail(http.MethodGet, "/schema", tt.status, 1)
			c := newClient(t, srv, 0)

			_, err := c.GetSchema(context.Background(), "parks")
			require.Error(t, err)
			assert.True(t, tt.check(err), "status %d classified as %v", tt.status, err)

			_, err = c.GetSchema(context.Background(), "parks")
			assert.NoError(t, err, "fault should fire once")
		})
	}
}
