package app_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shpitdev/leadfinder/internal/app"
	"github.com/shpitdev/leadfinder/internal/archive"
	"github.com/shpitdev/leadfinder/internal/config"
	"github.com/shpitdev/leadfinder/internal/enrich"
	"github.com/shpitdev/leadfinder/internal/mockplaces"
	"github.com/shpitdev/leadfinder/internal/pipeline"
	"github.com/shpitdev/leadfinder/pkg/pipeline/schema"
	"github.com/shpitdev/leadfinder/pkg/places"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.FromEnv(func(string) string { return "" })
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	dir := t.TempDir()
	cfg.CacheDir = filepath.Join(dir, "cache")
	cfg.ArchiveFile = filepath.Join(dir, "archive.csv")
	cfg.RequestTimeout = 10 * time.Second
	cfg.FetchTimeout = 5 * time.Second
	cfg.MaxRetries = 0
	return cfg
}

func testEnv(cfg config.Config, stdout io.Writer) app.Env {
	return app.Env{
		Config: cfg,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Stdout: stdout,
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	records, err := csv.NewReader(bytes.NewReader(b)).ReadAll()
	if err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	return records
}

func newPlacesServer(t *testing.T) (*mockplaces.Server, string) {
	t.Helper()
	srv := mockplaces.New(mockplaces.Fixtures{
		Queries: map[string][]places.Place{
			"florist in Columbus, Ohio": {
				{PlaceID: "p1", Name: "Bloom Florist", FormattedAddress: "1 High St, Columbus, OH"},
				{PlaceID: "p2", Name: "Petal Pushers", FormattedAddress: "2 High St, Columbus, OH"},
				{PlaceID: "p3", Name: "No Phone Flowers", FormattedAddress: "3 High St, Columbus, OH"},
			},
		},
		Details: map[string]places.Details{
			"p1": {Phone: "(614) 555-0101", Website: "https://bloom.test"},
			"p2": {Phone: "(614) 555-0102", Website: "https://petal.test"},
			"p3": {Website: "https://nophone.test"},
		},
	}, 0)
	srv.RequireKey("test-key")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts.URL + "/maps/api/place"
}

func countTextSearches(calls []mockplaces.Call) int {
	n := 0
	for _, c := range calls {
		if strings.HasSuffix(c.Path, "/textsearch/json") {
			n++
		}
	}
	return n
}

func TestRunSearch_WritesLeadsArchiveAndUsage(t *testing.T) {
	t.Parallel()

	srv, baseURL := newPlacesServer(t)
	cfg := testConfig(t)
	cfg.PlacesAPIKey = "test-key"
	cfg.PlacesBaseURL = baseURL
	out := filepath.Join(t.TempDir(), "leads.csv")

	var stdout bytes.Buffer
	opts := app.SearchOptions{
		Term:         "florist",
		States:       []string{"Ohio"},
		Depth:        1,
		RequirePhone: true,
		OutputPath:   out,
	}
	found, err := app.RunSearch(context.Background(), testEnv(cfg, &stdout), opts)
	if err != nil {
		t.Fatalf("RunSearch: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 leads with phones, got %d: %+v", len(found), found)
	}
	for _, l := range found {
		if l.Status != archive.StatusNew {
			t.Fatalf("first run should mark every lead New: %+v", l)
		}
	}

	records := readCSV(t, out)
	if len(records) != 3 || records[0][0] != "Business Name" || records[1][0] != "Bloom Florist" {
		t.Fatalf("unexpected leads file: %v", records)
	}
	if !strings.Contains(stdout.String(), "Text Search requests: 1") || !strings.Contains(stdout.String(), "Remaining credit:") {
		t.Fatalf("expected usage summary, got %q", stdout.String())
	}

	arch, err := archive.Open(cfg.ArchiveFile)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if arch.Len() != 2 {
		t.Fatalf("expected 2 archived leads, got %d", arch.Len())
	}

	// Second run: cached search, everything already harvested.
	opts.NewOnly = true
	again, err := app.RunSearch(context.Background(), testEnv(cfg, io.Discard), opts)
	if err != nil {
		t.Fatalf("second RunSearch: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no new leads, got %+v", again)
	}
	if n := countTextSearches(srv.Calls()); n != 1 {
		t.Fatalf("expected cached text search on second run, got %d requests", n)
	}
	if records := readCSV(t, out); len(records) != 1 {
		t.Fatalf("expected header-only leads file, got %v", records)
	}
}

func TestRunSearch_RequiresPlacesKey(t *testing.T) {
	t.Parallel()

	_, err := app.RunSearch(context.Background(), testEnv(testConfig(t), nil), app.SearchOptions{
		Term:       "florist",
		States:     []string{"Ohio"},
		OutputPath: filepath.Join(t.TempDir(), "leads.csv"),
	})
	if err == nil || !strings.Contains(err.Error(), "GOOGLE_PLACES_API_KEY") {
		t.Fatalf("expected missing key error, got %v", err)
	}
}

func newSite(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`<html><body><a href="/our-team">Our Team</a><p>Welcome</p></body></html>`))
	})
	mux.HandleFunc("/our-team", func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`<html><body><h2>Our Team</h2><h3>Jane Smith</h3><p>Owner</p><a href="mailto:info@bloom.test">Email us</a></body></html>`))
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, &hits
}

func TestRunEnrich_WritesContactsAndReusesSuccess(t *testing.T) {
	t.Parallel()

	ts, hits := newSite(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "leads.csv")
	input := "\ufeffBusiness Name,Phone,Website\n" +
		"Bloom Florist,(614) 555-0101," + ts.URL + "\n" +
		"Nowhere Co,,nan\n" +
		",,\n"
	if err := os.WriteFile(in, []byte(input), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	out := filepath.Join(dir, "contacts.csv")

	cfg := testConfig(t)
	cfg.Workers = 2
	env := testEnv(cfg, io.Discard)
	opts := app.EnrichOptions{InputPath: in, OutputPath: out}

	rows, err := app.RunEnrich(context.Background(), env, opts)
	if err != nil {
		t.Fatalf("RunEnrich: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d: %#v", len(rows), rows)
	}
	bloom := rows[0]
	if bloom.BusinessName != "Bloom Florist" || bloom.Name != "Jane Smith" || bloom.Title != "Owner" {
		t.Fatalf("unexpected contact row: %#v", bloom)
	}
	if bloom.ScrapeStatus != enrich.StatusSuccess || bloom.BusinessEmail != "info@bloom.test" || bloom.Phone != "(614) 555-0101" {
		t.Fatalf("unexpected business columns: %#v", bloom)
	}
	if bloom.Source != ts.URL+"/our-team" || bloom.Website != ts.URL {
		t.Fatalf("unexpected urls: %#v", bloom)
	}
	if rows[1].ScrapeStatus != enrich.StatusInvalidURL || rows[1].DirectContacts != enrich.NoDirectContact {
		t.Fatalf("unexpected invalid-url row: %#v", rows[1])
	}

	onDisk, err := pipeline.ReadFile(out, schema.FormatCSV)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if len(onDisk) != 2 || onDisk[0] != bloom {
		t.Fatalf("output file does not match returned rows: %#v", onDisk)
	}

	before := hits.Load()
	again, err := app.RunEnrich(context.Background(), env, opts)
	if err != nil {
		t.Fatalf("second RunEnrich: %v", err)
	}
	if n := hits.Load(); n != before {
		t.Fatalf("successful business was refetched: %d requests before, %d after", before, n)
	}
	if len(again) != 2 || again[0] != bloom || again[1].ScrapeStatus != enrich.StatusInvalidURL {
		t.Fatalf("unexpected rows on second run: %#v", again)
	}
}

func TestRunEnrich_JSONL(t *testing.T) {
	t.Parallel()

	ts, _ := newSite(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "leads.csv")
	if err := os.WriteFile(in, []byte("Business Name,Website\nBloom Florist,"+ts.URL+"\n"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	out := filepath.Join(dir, "contacts.jsonl")

	if _, err := app.RunEnrich(context.Background(), testEnv(testConfig(t), nil), app.EnrichOptions{
		InputPath:  in,
		OutputPath: out,
		Format:     schema.FormatJSONL,
	}); err != nil {
		t.Fatalf("RunEnrich: %v", err)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.HasPrefix(string(b), `{"Business Name":"Bloom Florist","Name":"Jane Smith",`) {
		t.Fatalf("unexpected jsonl: %s", b)
	}
}

func TestRunEnrich_MissingColumn(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := filepath.Join(dir, "leads.csv")
	if err := os.WriteFile(in, []byte("Business Name,Phone\nBloom,1\n"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	_, err := app.RunEnrich(context.Background(), testEnv(testConfig(t), nil), app.EnrichOptions{
		InputPath:  in,
		OutputPath: filepath.Join(dir, "out.csv"),
	})
	if err == nil || !strings.Contains(err.Error(), `"Website"`) {
		t.Fatalf("expected missing Website column error, got %v", err)
	}
}

func TestRunAll(t *testing.T) {
	t.Parallel()

	_, baseURL := newPlacesServer(t)
	cfg := testConfig(t)
	cfg.PlacesAPIKey = "test-key"
	cfg.PlacesBaseURL = baseURL
	dir := t.TempDir()

	// Fixture websites are unresolvable .test hosts; every business ends in
	// a network error row, which is enough to prove the hand-off.
	cfg.FetchTimeout = 2 * time.Second
	cfg.Workers = 3
	rows, err := app.RunAll(context.Background(), testEnv(cfg, nil),
		app.SearchOptions{Term: "florist", States: []string{"Ohio"}, Depth: 1, OutputPath: filepath.Join(dir, "leads.csv")},
		app.EnrichOptions{OutputPath: filepath.Join(dir, "contacts.csv")},
	)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected one row per lead, got %d: %#v", len(rows), rows)
	}
	for _, r := range rows {
		if r.ScrapeStatus == enrich.StatusSuccess || r.DirectContacts != enrich.NoDirectContact {
			t.Fatalf("unexpected row for unreachable site: %#v", r)
		}
	}
}
