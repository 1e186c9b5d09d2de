package importer_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/engineshift/pkg/appsearch"
	"github.com/3leaps/engineshift/pkg/bundle"
	"github.com/3leaps/engineshift/pkg/importer"
	"github.com/3leaps/engineshift/test/fakeappsearch"
)

const key = "dst-key"

func setup(t *testing.T) (*fakeappsearch.Server, *appsearch.Client) {
	t.Helper()
	srv := fakeappsearch.New(t, key)
	c, err := appsearch.New(appsearch.Config{Endpoint: srv.URL, APIKey: key})
	require.NoError(t, err)
	return srv, c
}

func fastOptions() importer.Options {
	return importer.Options{
		SchemaBatchSize:    2,
		CreateAttempts:     3,
		CreateDelay:        time.Millisecond,
		DeleteWaitAttempts: 3,
		DeleteWaitDelay:    time.Millisecond,
	}
}

func parksBundle() *bundle.Bundle {
	b := bundle.New("parks")
	b.Engine.Language = "en"
	b.Schema = map[string]string{"title": "text", "states": "text", "visitors": "number", "opened": "date", "location": "geolocation"}
	b.Synonyms = [][]string{{"park", "reserve"}, {"lake", "pond"}}
	b.Curations = []bundle.Curation{{Queries: []string{"yosemite"}, Promoted: []string{"doc-1"}}}
	b.SearchSettings = map[string]any{
		"search_fields": map[string]any{"title": map[string]any{"weight": float64(2)}, "gone": map[string]any{}},
		"precision":     float64(2),
		"facets":        map[string]any{},
	}
	return b
}

func TestImport_Fresh(t *testing.T) {
	srv, c := setup(t)

	res, err := importer.Import(context.Background(), c, parksBundle(), fastOptions())
	require.NoError(t, err)
	assert.Equal(t, "parks", res.Engine)
	assert.False(t, res.Replaced)
	assert.Equal(t, 1, res.CreateAttempts)
	assert.Equal(t, 5, res.SchemaFields)
	assert.Equal(t, 3, res.SchemaBatches)
	assert.Equal(t, 2, res.Synonyms)
	assert.Equal(t, 1, res.Curations)
	assert.True(t, res.SearchSettings)
	assert.Empty(t, res.Warnings)

	e, ok := srv.Engine("parks")
	require.True(t, ok)
	assert.Equal(t, "en", e.Language)
	assert.Len(t, e.Schema, 5)
	assert.Len(t, e.Synonyms, 2)
	fields := e.SearchSettings["search_fields"].(map[string]any)
	assert.Contains(t, fields, "title")
	assert.NotContains(t, fields, "gone")
	assert.NotContains(t, e.SearchSettings, "facets")
}

func TestImport_DestinationName(t *testing.T) {
	srv, c := setup(t)
	opts := fastOptions()
	opts.Name = "import-parks"

	_, err := importer.Import(context.Background(), c, parksBundle(), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"import-parks"}, srv.EngineNames())
}

func TestImport_ExistsWithoutForce(t *testing.T) {
	srv, c := setup(t)
	srv.AddEngine(fakeappsearch.Engine{Name: "parks"})

	_, err := importer.Import(context.Background(), c, parksBundle(), fastOptions())
	require.Error(t, err)
	assert.True(t, importer.IsAlreadyExists(err))
	assert.Equal(t, 0, srv.Requests(http.MethodDelete, "/api/as/v1/engines/parks"))
}

func TestImport_ForceWaitsForNameRelease(t *testing.T) {
	srv, c := setup(t)
	srv.AddEngine(fakeappsearch.Engine{Name: "parks", Schema: map[string]string{"old": "text"}})
	srv.HoldNameAfterDelete(2)

	opts := fastOptions()
	opts.Force = true
	res, err := importer.Import(context.Background(), c, parksBundle(), opts)
	require.NoError(t, err)
	assert.True(t, res.Replaced)
	assert.Equal(t, 3, res.CreateAttempts)

	e, _ := srv.Engine("parks")
	assert.NotContains(t, e.Schema, "old")
}

func TestImport_CreateExhaustedIsRetriable(t *testing.T) {
	srv, c := setup(t)
	srv.AddEngine(fakeappsearch.Engine{Name: "parks"})
	srv.HoldNameAfterDelete(10)

	opts := fastOptions()
	opts.Force = true
	_, err := importer.Import(context.Background(), c, parksBundle(), opts)
	require.Error(t, err)
	assert.True(t, importer.IsRetriable(err))

	var ie *importer.ImportError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, importer.StageCreate, ie.Stage)
	assert.Contains(t, ie.Error(), "after 3 attempts")
}

func TestImport_DeleteWaitExhausted(t *testing.T) {
	srv, c := setup(t)
	srv.AddEngine(fakeappsearch.Engine{Name: "parks"})
	srv.Fail(http.MethodDelete, "/engines/parks", http.StatusOK, -1)

	opts := fastOptions()
	opts.Force = true
	_, err := importer.Import(context.Background(), c, parksBundle(), opts)
	require.Error(t, err)

	var ie *importer.ImportError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, importer.StageDelete, ie.Stage)
	assert.Equal(t, importer.KindRetriable, ie.Kind)
}

func TestImport_StageFailuresAreClassified(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		status int
		stage  string
		kind   importer.Kind
	}{
		{"schema rejected", http.MethodPost, "/schema", http.StatusBadRequest, importer.StageSchema, importer.KindFatal},
		{"synonyms throttled", http.MethodPost, "/synonyms", http.StatusTooManyRequests, importer.StageSynonyms, importer.KindRetriable},
		{"curations down", http.MethodPost, "/curations", http.StatusServiceUnavailable, importer.StageCurations, importer.KindRetriable},
		{"settings rejected", http.MethodPut, "/search_settings", http.StatusUnprocessableEntity, importer.StageSearchSettings, importer.KindFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, c := setup(t)
			srv.Fail(tt.method, tt.path, tt.status, -1)

			_, err := importer.Import(context.Background(), c, parksBundle(), fastOptions())
			var ie *importer.ImportError
			require.True(t, errors.As(err, &ie))
			assert.Equal(t, tt.stage, ie.Stage)
			assert.Equal(t, tt.kind, ie.Kind)
		})
	}
}

func TestImport_CrawlerFailuresBecomeWarnings(t *testing.T) {
	srv, c := setup(t)
	b := parksBundle()
	b.Crawler = &bundle.Crawler{Domains: []bundle.Domain{
		{
			Name:        "https://one.example",
			EntryPoints: []string{"/", "/docs"},
			CrawlRules:  []bundle.CrawlRule{{Policy: "deny", Rule: "begins", Pattern: "/admin"}},
			Sitemaps:    []string{"https://one.example/sitemap.xml"},
		},
		{Name: "https://two.example", EntryPoints: []string{"/"}},
	}}
	srv.Fail(http.MethodPost, "/entry_points", http.StatusBadRequest, 1)

	var warned []string
	opts := fastOptions()
	opts.Warnf = func(format string, args ...any) { warned = append(warned, fmt.Sprintf(format, args...)) }

	res, err := importer.Import(context.Background(), c, b, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, res.CrawlerDomains)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "entry point /")
	assert.Equal(t, res.Warnings, warned)

	e, _ := srv.Engine("parks")
	require.Len(t, e.Crawler, 2)
	assert.Equal(t, []string{"/docs"}, e.Crawler[0].EntryPoints)
	assert.Len(t, e.Crawler[0].CrawlRules, 1)
	assert.Len(t, e.Crawler[0].Sitemaps, 1)
}

func TestImport_FailedDomainSkipsChildren(t *testing.T) {
	srv, c := setup(t)
	b := parksBundle()
	b.Crawler = &bundle.Crawler{Domains: []bundle.Domain{
		{Name: "https://bad.example", EntryPoints: []string{"/"}},
		{Name: "https://good.example", EntryPoints: []string{"/"}},
	}}
	srv.Fail(http.MethodPost, "/crawler/domains", http.StatusBadRequest, 1)

	res, err := importer.Import(context.Background(), c, b, fastOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, res.CrawlerDomains)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "https://bad.example")
	assert.Equal(t, 1, srv.Requests(http.MethodPost, "/api/as/v1/engines/parks/crawler/domains/"))
}

func TestImportFile(t *testing.T) {
	srv, c := setup(t)
	path := filepath.Join(t.TempDir(), "parks.yaml")
	require.NoError(t, bundle.Write(path, parksBundle()))

	_, err := importer.ImportFile(context.Background(), c, path, fastOptions())
	require.NoError(t, err)
	e, ok := srv.Engine("parks")
	require.True(t, ok)
	fields := e.SearchSettings["search_fields"].(map[string]any)
	assert.Contains(t, fields, "title")

	_, err = importer.ImportFile(context.Background(), c, filepath.Join(t.TempDir(), "missing.json"), fastOptions())
	var ie *importer.ImportError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, importer.KindFatal, ie.Kind)
}
