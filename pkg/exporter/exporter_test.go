package exporter_test

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/engineshift/pkg/appsearch"
	"github.com/3leaps/engineshift/pkg/bundle"
	"github.com/3leaps/engineshift/pkg/exporter"
	"github.com/3leaps/engineshift/test/fakeappsearch"
)

const key = "src-key"

func setup(t *testing.T) (*fakeappsearch.Server, *appsearch.Client) {
	t.Helper()
	srv := fakeappsearch.New(t, key)
	srv.AddEngine(fakeappsearch.Engine{
		Name:           "parks",
		Language:       "en",
		Schema:         map[string]string{"title": "text", "states": "text"},
		Synonyms:       [][]string{{"park", "reserve"}},
		Curations:      []fakeappsearch.Curation{{Queries: []string{"yosemite"}, Promoted: []string{"doc-1"}}},
		SearchSettings: map[string]any{"precision": float64(3)},
	})
	srv.AddEngine(fakeappsearch.Engine{
		Name: "docs-site",
		Type: "crawler",
		Crawler: []fakeappsearch.Domain{{
			Name:        "https://docs.example.com",
			EntryPoints: []string{"/"},
			CrawlRules:  []fakeappsearch.CrawlRule{{Policy: "allow", Rule: "regex", Pattern: ".*"}},
		}},
	})
	c, err := appsearch.New(appsearch.Config{Endpoint: srv.URL, APIKey: key})
	require.NoError(t, err)
	return srv, c
}

func TestExport_WritesBundle(t *testing.T) {
	_, c := setup(t)
	path := filepath.Join(t.TempDir(), "exports", "parks.json")

	b, err := exporter.Export(context.Background(), c, "parks", path)
	require.NoError(t, err)
	assert.Equal(t, "en", b.Engine.Language)
	assert.Nil(t, b.Crawler)

	got, err := bundle.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "parks", got.Engine.Name)
	assert.Equal(t, map[string]string{"title": "text", "states": "text"}, got.Schema)
	assert.Equal(t, [][]string{{"park", "reserve"}}, got.Synonyms)
	require.Len(t, got.Curations, 1)
	assert.Equal(t, []string{"yosemite"}, got.Curations[0].Queries)
	assert.Equal(t, float64(3), got.SearchSettings["precision"])
}

func TestExport_Crawler(t *testing.T) {
	_, c := setup(t)

	b, err := exporter.Build(context.Background(), c, "docs-site")
	require.NoError(t, err)
	require.NotNil(t, b.Crawler)
	require.Len(t, b.Crawler.Domains, 1)
	d := b.Crawler.Domains[0]
	assert.Equal(t, "https://docs.example.com", d.Name)
	assert.Equal(t, []string{"/"}, d.EntryPoints)
	assert.Equal(t, "regex", d.CrawlRules[0].Rule)
	assert.Equal(t, "crawler", b.Engine.Type)
}

func TestExport_StageErrors(t *testing.T) {
	tests := []struct {
		name  string
		fail  string
		stage string
	}{
		{"schema", "/schema", exporter.StageSchema},
		{"synonyms", "/synonyms", exporter.StageSynonyms},
		{"curations", "/curations", exporter.StageCurations},
		{"settings", "/search_settings", exporter.StageSearchSettings},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, c := setup(t)
			srv.Fail(http.MethodGet, tt.fail, http.StatusInternalServerError, -1)
			path := filepath.Join(t.TempDir(), "parks.json")

			_, err := exporter.Export(context.Background(), c, "parks", path)
			require.Error(t, err)

			var exErr *exporter.ExportError
			require.True(t, errors.As(err, &exErr))
			assert.Equal(t, "parks", exErr.Engine)
			assert.Equal(t, tt.stage, exErr.Stage)
			assert.True(t, appsearch.IsUnavailable(err))
			assert.NoFileExists(t, path)
		})
	}
}

func TestExport_MissingEngine(t *testing.T) {
	_, c := setup(t)
	_, err := exporter.Export(context.Background(), c, "nope", filepath.Join(t.TempDir(), "nope.json"))

	var exErr *exporter.ExportError
	require.True(t, errors.As(err, &exErr))
	assert.Equal(t, exporter.StageEngine, exErr.Stage)
	assert.True(t, appsearch.IsNotFound(err))
}
