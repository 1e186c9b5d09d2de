// Package fakeappsearch provides an in-memory engine configuration API for
// tests.
//
// The server speaks the same paths and JSON shapes as the hosted service for
// the endpoints engineshift uses. It is deliberately independent of
// pkg/appsearch so client tests can use it without import cycles.
//
// Usage:
//
//	srv := fakeappsearch.New(t, "private-key")
//	srv.AddEngine(fakeappsearch.Engine{Name: "parks", Schema: map[string]string{"title": "text"}})
//	client, _ := appsearch.New(appsearch.Config{Endpoint: srv.URL, APIKey: "private-key"})
package fakeappsearch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// Engine is the full stored state of one engine.
type Engine struct {
	Name           string
	Type           string
	Language       string
	Schema         map[string]string
	Synonyms       [][]string
	Curations      []Curation
	SearchSettings map[string]any
	Crawler        []Domain
}

// Curation is a stored curation.
type Curation struct {
	Queries  []string
	Promoted []string
	Hidden   []string
}

// Domain is a stored crawler domain.
type Domain struct {
	Name        string
	EntryPoints []string
	CrawlRules  []CrawlRule
	Sitemaps    []string
}

// CrawlRule is a stored crawl rule.
type CrawlRule struct {
	Policy  string
	Rule    string
	Pattern string
	Order   int
}

type fault struct {
	method    string
	contains  string
	status    int
	remaining int
}

// Server is a running fake cluster.
type Server struct {
	*httptest.Server

	apiKey string

	mu        sync.Mutex
	engines   map[string]*Engine
	order     []string
	held      map[string]int
	holdAfter int
	faults    []*fault
	requests  map[string]int
}

// New starts a fake cluster that accepts apiKey and registers cleanup on t.
func New(t testing.TB, apiKey string) *Server {
	t.Helper()
	s := &Server{
		apiKey:   apiKey,
		engines:  make(map[string]*Engine),
		held:     make(map[string]int),
		requests: make(map[string]int),
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// AddEngine stores an engine, replacing any engine with the same name.
func (s *Server) AddEngine(e Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(e)
}

func (s *Server) putLocked(e Engine) {
	if e.Schema == nil {
		e.Schema = map[string]string{}
	}
	if e.SearchSettings == nil {
		e.SearchSettings = map[string]any{}
	}
	if e.Type == "" {
		e.Type = "default"
	}
	if _, ok := s.engines[e.Name]; !ok {
		s.order = append(s.order, e.Name)
	}
	cp := e
	s.engines[e.Name] = &cp
}

// Engine returns a copy of the stored engine.
func (s *Server) Engine(name string) (Engine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.engines[name]
	if !ok {
		return Engine{}, false
	}
	return *e, true
}

// EngineNames returns the engine names in creation order.
func (s *Server) EngineNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// HoldNameAfterDelete makes the next n creates of a deleted name fail with
// "name already taken", simulating asynchronous deletion.
func (s *Server) HoldNameAfterDelete(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdAfter = n
}

// Fail injects an error response for requests whose method matches and whose
// path contains the given substring. times < 0 fails forever.
func (s *Server) Fail(method, pathContains string, status, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, &fault{method: method, contains: pathContains, status: status, remaining: times})
}

// Requests returns how many requests matched method and path prefix.
func (s *Server) Requests(method, pathPrefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, v := range s.requests {
		if strings.HasPrefix(k, method+" "+pathPrefix) {
			n += v
		}
	}
	return n
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record, s.auth, s.inject)

	r.Route("/api/as/v1/engines", func(r chi.Router) {
		r.Get("/", s.listEngines)
		r.Post("/", s.createEngine)
		r.Route("/{engine}", func(r chi.Router) {
			r.Get("/", s.getEngine)
			r.Delete("/", s.deleteEngine)
			r.Get("/schema", s.getSchema)
			r.Post("/schema", s.updateSchema)
			r.Get("/synonyms", s.listSynonyms)
			r.Post("/synonyms", s.createSynonyms)
			r.Get("/curations", s.listCurations)
			r.Post("/curations", s.createCuration)
			r.Get("/search_settings", s.getSettings)
			r.Put("/search_settings", s.putSettings)
			r.Get("/crawler", s.getCrawler)
			r.Post("/crawler/domains", s.createDomain)
			r.Post("/crawler/domains/{domain}/{resource}", s.createDomainResource)
		})
	})
	return r
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests[r.Method+" "+r.URL.Path]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.apiKey {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		var hit *fault
		for _, f := range s.faults {
			if f.remaining == 0 || f.method != r.Method || !strings.Contains(r.URL.Path, f.contains) {
				continue
			}
			if f.remaining > 0 {
				f.remaining--
			}
			hit = f
			break
		}
		s.mu.Unlock()
		if hit != nil {
			writeError(w, hit.status, fmt.Sprintf("injected failure for %s", r.URL.Path))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"errors": []string{msg}})
}

func paging(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page[current]"))
	size, _ := strconv.Atoi(r.URL.Query().Get("page[size]"))
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 25
	}
	return page, size
}

func paginate[T any](r *http.Request, items []T) map[string]any {
	page, size := paging(r)
	total := len(items)
	pages := (total + size - 1) / size
	start := (page - 1) * size
	end := start + size
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	results := items[start:end]
	if results == nil {
		results = []T{}
	}
	return map[string]any{
		"meta": map[string]any{
			"page": map[string]any{"current": page, "total_pages": pages, "total_results": total, "size": size},
		},
		"results": results,
	}
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*Engine, bool) {
	name := chi.URLParam(r, "engine")
	e, ok := s.engines[name]
	if !ok {
		writeError(w, http.StatusNotFound, "Could not find engine.")
		return nil, false
	}
	return e, true
}

func engineJSON(e *Engine) map[string]any {
	return map[string]any{"name": e.Name, "type": e.Type, "language": e.Language, "document_count": 0}
}

func (s *Server) listEngines(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]map[string]any, 0, len(s.order))
	for _, name := range s.order {
		items = append(items, engineJSON(s.engines[name]))
	}
	writeJSON(w, http.StatusOK, paginate(r, items))
}

func (s *Server) createEngine(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string `json:"name"`
		Language string `json:"language"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.engines[body.Name]; ok {
		writeError(w, http.StatusBadRequest, "Name is already taken")
		return
	}
	if n := s.held[body.Name]; n > 0 {
		s.held[body.Name] = n - 1
		writeError(w, http.StatusBadRequest, "Name is already taken")
		return
	}
	s.putLocked(Engine{Name: body.Name, Language: body.Language})
	writeJSON(w, http.StatusOK, engineJSON(s.engines[body.Name]))
}

func (s *Server) getEngine(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.lookup(w, r); ok {
		writeJSON(w, http.StatusOK, engineJSON(e))
	}
}

func (s *Server) deleteEngine(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	delete(s.engines, e.Name)
	for i, n := range s.order {
		if n == e.Name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.holdAfter > 0 {
		s.held[e.Name] = s.holdAfter
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (s *Server) getSchema(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.lookup(w, r); ok {
		writeJSON(w, http.StatusOK, e.Schema)
	}
}

func (s *Server) updateSchema(w http.ResponseWriter, r *http.Request) {
	var fields map[string]string
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "invalid schema")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	for k, v := range fields {
		e.Schema[k] = v
	}
	writeJSON(w, http.StatusOK, e.Schema)
}

func (s *Server) listSynonyms(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	items := make([]map[string]any, 0, len(e.Synonyms))
	for i, set := range e.Synonyms {
		items = append(items, map[string]any{"id": fmt.Sprintf("syn-%d", i+1), "synonyms": set})
	}
	writeJSON(w, http.StatusOK, paginate(r, items))
}

func (s *Server) createSynonyms(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Synonyms []string `json:"synonyms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Synonyms) < 2 {
		writeError(w, http.StatusBadRequest, "synonyms must contain at least two terms")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	e.Synonyms = append(e.Synonyms, body.Synonyms)
	writeJSON(w, http.StatusOK, map[string]any{"id": fmt.Sprintf("syn-%d", len(e.Synonyms)), "synonyms": body.Synonyms})
}

func (s *Server) listCurations(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	items := make([]map[string]any, 0, len(e.Curations))
	for i, c := range e.Curations {
		items = append(items, map[string]any{"id": fmt.Sprintf("cur-%d", i+1), "queries": c.Queries, "promoted": c.Promoted, "hidden": c.Hidden})
	}
	writeJSON(w, http.StatusOK, paginate(r, items))
}

func (s *Server) createCuration(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Queries  []string `json:"queries"`
		Promoted []string `json:"promoted"`
		Hidden   []string `json:"hidden"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Queries) == 0 {
		writeError(w, http.StatusBadRequest, "queries are required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	e.Curations = append(e.Curations, Curation{Queries: body.Queries, Promoted: body.Promoted, Hidden: body.Hidden})
	writeJSON(w, http.StatusOK, map[string]any{"id": fmt.Sprintf("cur-%d", len(e.Curations))})
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.lookup(w, r); ok {
		writeJSON(w, http.StatusOK, e.SearchSettings)
	}
}

func (s *Server) putSettings(w http.ResponseWriter, r *http.Request) {
	var settings map[string]any
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid settings")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if fields, ok := settings["search_fields"].(map[string]any); ok {
		for f := range fields {
			if _, known := e.Schema[f]; !known && f != "id" {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("Search fields contains invalid field: %s", f))
				return
			}
		}
	}
	e.SearchSettings = settings
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) getCrawler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if e.Crawler == nil {
		writeError(w, http.StatusNotFound, "Engine has no crawler")
		return
	}
	domains := make([]map[string]any, 0, len(e.Crawler))
	for i, d := range e.Crawler {
		id := fmt.Sprintf("dom-%d", i+1)
		eps := make([]map[string]any, 0, len(d.EntryPoints))
		for j, ep := range d.EntryPoints {
			eps = append(eps, map[string]any{"id": fmt.Sprintf("%s-ep-%d", id, j+1), "value": ep})
		}
		rules := make([]map[string]any, 0, len(d.CrawlRules))
		for j, cr := range d.CrawlRules {
			rules = append(rules, map[string]any{"id": fmt.Sprintf("%s-cr-%d", id, j+1), "policy": cr.Policy, "rule": cr.Rule, "pattern": cr.Pattern, "order": cr.Order})
		}
		maps := make([]map[string]any, 0, len(d.Sitemaps))
		for j, sm := range d.Sitemaps {
			maps = append(maps, map[string]any{"id": fmt.Sprintf("%s-sm-%d", id, j+1), "url": sm})
		}
		domains = append(domains, map[string]any{"id": id, "name": d.Name, "entry_points": eps, "crawl_rules": rules, "sitemaps": maps})
	}
	writeJSON(w, http.StatusOK, map[string]any{"domains": domains})
}

func (s *Server) createDomain(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeError(w, http.StatusBadRequest, "domain name is required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	e.Crawler = append(e.Crawler, Domain{Name: body.Name})
	id := fmt.Sprintf("dom-%d", len(e.Crawler))
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "name": body.Name})
}

func (s *Server) createDomainResource(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Value   string `json:"value"`
		URL     string `json:"url"`
		Policy  string `json:"policy"`
		Rule    string `json:"rule"`
		Pattern string `json:"pattern"`
		Order   int    `json:"order"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	idx, err := strconv.Atoi(strings.TrimPrefix(chi.URLParam(r, "domain"), "dom-"))
	if err != nil || idx < 1 || idx > len(e.Crawler) {
		writeError(w, http.StatusNotFound, "Could not find domain.")
		return
	}
	d := &e.Crawler[idx-1]
	switch chi.URLParam(r, "resource") {
	case "entry_points":
		d.EntryPoints = append(d.EntryPoints, body.Value)
	case "crawl_rules":
		d.CrawlRules = append(d.CrawlRules, CrawlRule{Policy: body.Policy, Rule: body.Rule, Pattern: body.Pattern, Order: body.Order})
		sort.SliceStable(d.CrawlRules, func(i, j int) bool { return d.CrawlRules[i].Order < d.CrawlRules[j].Order })
	case "sitemaps":
		d.Sitemaps = append(d.Sitemaps, body.URL)
	default:
		writeError(w, http.StatusNotFound, "unknown crawler resource")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": "new"})
}
