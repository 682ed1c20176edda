// Package app wires configuration, search, enrichment and output into the
// three leadfinder commands.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shpitdev/leadfinder/internal/archive"
	"github.com/shpitdev/leadfinder/internal/config"
	"github.com/shpitdev/leadfinder/internal/enrich"
	"github.com/shpitdev/leadfinder/internal/enrich/emailguess"
	"github.com/shpitdev/leadfinder/internal/enrich/fetch"
	"github.com/shpitdev/leadfinder/internal/enrich/gemini"
	"github.com/shpitdev/leadfinder/internal/enrich/roles"
	"github.com/shpitdev/leadfinder/internal/enrich/site"
	"github.com/shpitdev/leadfinder/internal/leads"
	"github.com/shpitdev/leadfinder/internal/pipeline"
	"github.com/shpitdev/leadfinder/internal/searchcache"
	localio "github.com/shpitdev/leadfinder/pkg/pipeline/io/local"
	"github.com/shpitdev/leadfinder/pkg/pipeline/schema"
	"github.com/shpitdev/leadfinder/pkg/places"
)

// Env carries process-wide dependencies into a run.
type Env struct {
	Config config.Config
	Logger *slog.Logger
	// Stdout receives the human-readable run summary. Nil discards it.
	Stdout io.Writer
}

func (e Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func (e Env) stdout() io.Writer {
	if e.Stdout == nil {
		return io.Discard
	}
	return e.Stdout
}

// SearchOptions configures one lead search.
type SearchOptions struct {
	Term   string
	States []string
	Depth  int

	RequirePhone   bool
	RequireWebsite bool
	// NewOnly drops leads already present in the archive from the output.
	NewOnly bool
	Threads int

	OutputPath string
}

// EnrichOptions configures one enrichment run.
type EnrichOptions struct {
	InputPath  string
	OutputPath string
	Format     schema.Format

	// RenderJS fetches pages through headless Chrome.
	RenderJS   bool
	ChromePath string
	// AI enables model contact suggestions. Requires GEMINI_API_KEY.
	AI bool
}

// RunSearch finds leads, marks them against the archive, updates the archive
// and writes the leads file.
func RunSearch(ctx context.Context, env Env, opts SearchOptions) ([]leads.Lead, error) {
	log := env.logger()
	cfg := env.Config
	runStart := time.Now()

	if err := cfg.RequirePlaces(); err != nil {
		return nil, err
	}
	client, err := places.NewClient(cfg.PlacesBaseURL, cfg.PlacesAPIKey)
	if err != nil {
		return nil, err
	}
	cache, closeCache, err := openCache(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	defer closeCache()

	log.Info("search start",
		"term", opts.Term,
		"states", strings.Join(opts.States, ","),
		"depth", leads.ClampDepth(opts.Depth),
		"threads", opts.Threads,
		"require_phone", opts.RequirePhone,
		"require_website", opts.RequireWebsite,
	)
	finder := leads.NewFinder(client, leads.WithCache(cache), leads.WithLogger(log))
	searchStart := time.Now()
	found, err := finder.Search(ctx, leads.Query{
		Term:           opts.Term,
		States:         opts.States,
		Depth:          opts.Depth,
		RequirePhone:   opts.RequirePhone,
		RequireWebsite: opts.RequireWebsite,
		Concurrency:    opts.Threads,
	})
	usage := client.Usage().Snapshot()
	if err != nil {
		printUsage(env.stdout(), usage)
		return nil, err
	}
	log.Info("search complete", "leads", len(found), "duration", time.Since(searchStart).Round(time.Millisecond))

	arch, err := archive.Open(cfg.ArchiveFile)
	if err != nil {
		return nil, err
	}
	marked := arch.Mark(found)
	added := arch.Add(found)
	if err := arch.Save(); err != nil {
		return nil, fmt.Errorf("save archive: %w", err)
	}
	log.Info("archive updated", "path", cfg.ArchiveFile, "added", added, "total", arch.Len())

	out := marked
	if opts.NewOnly {
		out = archive.NewOnly(marked)
		log.Info("new-only filter", "kept", len(out), "dropped", len(marked)-len(out))
	}

	writeStart := time.Now()
	if err := writeLeads(opts.OutputPath, out); err != nil {
		return nil, err
	}
	log.Info("search run complete",
		"output", opts.OutputPath,
		"rows", len(out),
		"write_duration", time.Since(writeStart).Round(time.Millisecond),
		"total_duration", time.Since(runStart).Round(time.Millisecond),
	)

	w := env.stdout()
	_, _ = fmt.Fprintf(w, "Wrote %d leads to %s (%d new in archive)\n", len(out), opts.OutputPath, added)
	printUsage(w, usage)
	return out, nil
}

// RunEnrich enriches every business in the input file and writes the contact
// table. Businesses whose rows in an existing output file all succeeded are
// reused without refetching.
func RunEnrich(ctx context.Context, env Env, opts EnrichOptions) ([]pipeline.Row, error) {
	log := env.logger()
	cfg := env.Config
	runStart := time.Now()

	format := opts.Format
	if format == "" {
		format = schema.FormatCSV
	}
	log.Info("enrich run start",
		"input", opts.InputPath,
		"output", opts.OutputPath,
		"format", format,
		"workers", cfg.Workers,
		"max_retries", cfg.MaxRetries,
		"request_timeout", cfg.RequestTimeout,
		"fetch_timeout", cfg.FetchTimeout,
		"rate_limit_rps", cfg.RateLimitRPS,
		"fail_fast", cfg.FailFast,
		"render_js", opts.RenderJS,
		"ai", opts.AI,
	)

	readStart := time.Now()
	businesses, err := businessInput(opts.InputPath).Load(ctx)
	if err != nil {
		return nil, err
	}
	log.Info("loaded input", "businesses", len(businesses), "duration", time.Since(readStart).Round(time.Millisecond))

	previous, err := pipeline.ReadFile(opts.OutputPath, format)
	if err != nil {
		return nil, fmt.Errorf("read prior output %s: %w", opts.OutputPath, err)
	}
	plan := pipeline.PlanIncremental(businesses, previous)
	log.Info("incremental plan",
		"input_businesses", len(businesses),
		"prior_rows", len(previous),
		"reused", plan.Reused(),
		"to_enrich", len(plan.Pending),
	)

	enrichStart := time.Now()
	var fresh []pipeline.Row
	if len(plan.Pending) > 0 {
		newEnricher, closeAll, err := enricherFactory(ctx, env, opts)
		if err != nil {
			return nil, err
		}
		defer closeAll()

		var done atomic.Int32
		total := len(plan.Pending)
		onResult := func(b enrich.Business, rows []pipeline.Row) {
			status := ""
			if len(rows) > 0 {
				status = rows[0].ScrapeStatus
			}
			log.Info("business enriched",
				"business", b.Name,
				"status", status,
				"rows", len(rows),
				"completed", fmt.Sprintf("%d/%d", done.Add(1), total),
				"elapsed", time.Since(enrichStart).Round(time.Millisecond),
			)
		}
		fresh, err = pipeline.EnrichBusinesses(ctx, plan.Pending, newEnricher, onResult, pipeline.Options{
			Workers:        cfg.Workers,
			MaxRetries:     cfg.MaxRetries,
			RequestTimeout: cfg.RequestTimeout,
			RateLimitRPS:   cfg.RateLimitRPS,
			FailFast:       cfg.FailFast,
		})
		if err != nil {
			return nil, err
		}
	}
	rows := plan.Merge(fresh)
	okRows, failedRows := countStatuses(rows)
	log.Info("enrichment complete",
		"rows", len(rows),
		"success", okRows,
		"failed", failedRows,
		"duration", time.Since(enrichStart).Round(time.Millisecond),
	)

	writeStart := time.Now()
	if err := (pipeline.FileOutput{Path: opts.OutputPath, Format: format}).Store(ctx, rows); err != nil {
		return nil, err
	}
	log.Info("enrich run complete",
		"write_duration", time.Since(writeStart).Round(time.Millisecond),
		"total_duration", time.Since(runStart).Round(time.Millisecond),
	)
	_, _ = fmt.Fprintf(env.stdout(), "Wrote %d contact rows for %d businesses to %s (%d reused)\n",
		len(rows), len(businesses), opts.OutputPath, plan.Reused())
	return rows, nil
}

// RunAll searches, writes the leads file, then enriches it.
func RunAll(ctx context.Context, env Env, search SearchOptions, enrichOpts EnrichOptions) ([]pipeline.Row, error) {
	if _, err := RunSearch(ctx, env, search); err != nil {
		return nil, err
	}
	enrichOpts.InputPath = search.OutputPath
	return RunEnrich(ctx, env, enrichOpts)
}

func businessInput(path string) localio.CSVInput[enrich.Business] {
	return localio.CSVInput[enrich.Business]{
		Path:     path,
		Required: []string{"Business Name", "Website"},
		Optional: []string{"Phone", "Address", "Category"},
		Decode: func(row map[string]string) (enrich.Business, bool) {
			b := enrich.Business{
				Name:     row["Business Name"],
				Website:  row["Website"],
				Phone:    row["Phone"],
				Address:  row["Address"],
				Category: row["Category"],
			}
			return b, b.Name != "" || b.Website != ""
		},
	}
}

// enricherFactory returns a constructor that builds one enricher, with its
// own fetcher, per worker. closeAll releases any browsers it started.
func enricherFactory(ctx context.Context, env Env, opts EnrichOptions) (func() enrich.Enricher, func(), error) {
	log := env.logger()
	cfg := env.Config

	table := roles.Builtin()
	if cfg.RolesFile != "" {
		t, err := roles.Load(cfg.RolesFile)
		if err != nil {
			return nil, nil, err
		}
		table = t
		log.Info("loaded role table", "path", cfg.RolesFile)
	}
	siteOpts := []site.Option{site.WithRoles(table), site.WithLogger(log)}

	if opts.AI {
		suggester, err := gemini.New(ctx, gemini.Config{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.GeminiModel,
			BaseURL: cfg.GeminiBaseURL,
		})
		if err != nil {
			return nil, nil, err
		}
		guesser := emailguess.NewGuesser(emailguess.NewDNSChecker(5 * time.Second))
		siteOpts = append(siteOpts, site.WithSuggester(suggester, guesser))
		log.Info("ai suggestions enabled", "model", suggester.Model())
	}

	attempts := newAttemptCounter()
	var (
		mu       sync.Mutex
		browsers []*fetch.BrowserFetcher
	)
	newEnricher := func() enrich.Enricher {
		var f fetch.PageFetcher
		if opts.RenderJS {
			bf := fetch.NewBrowserFetcher(ctx, cfg.FetchTimeout, opts.ChromePath)
			mu.Lock()
			browsers = append(browsers, bf)
			mu.Unlock()
			f = bf
		} else {
			f = fetch.New(fetch.WithTimeout(cfg.FetchTimeout), fetch.WithLogger(log))
		}
		return &tracedEnricher{
			next:       site.New(f, siteOpts...),
			logger:     log,
			maxRetries: cfg.MaxRetries,
			attempts:   attempts,
		}
	}
	closeAll := func() {
		mu.Lock()
		defer mu.Unlock()
		for _, b := range browsers {
			b.Close()
		}
		browsers = nil
	}
	return newEnricher, closeAll, nil
}

// openCache picks Redis when REDIS_URL is set, else a file store under
// CACHE_DIR. An empty CACHE_DIR disables caching.
func openCache(ctx context.Context, cfg config.Config, log *slog.Logger) (searchcache.Store, func(), error) {
	if cfg.RedisURL != "" {
		rs, err := searchcache.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		if err := rs.Ping(ctx); err != nil {
			_ = rs.Close()
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		log.Info("search cache", "backend", "redis")
		return rs, func() { _ = rs.Close() }, nil
	}
	if cfg.CacheDir == "" {
		log.Info("search cache disabled")
		return nil, func() {}, nil
	}
	store, err := searchcache.NewFileStore(cfg.CacheDir)
	if err != nil {
		return nil, nil, err
	}
	log.Info("search cache", "backend", "file", "dir", cfg.CacheDir)
	return store, func() {}, nil
}

func writeLeads(path string, ls []leads.Lead) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()

	if err := leads.WriteCSV(f, ls); err != nil {
		return err
	}
	return f.Close()
}

func printUsage(w io.Writer, s places.UsageSnapshot) {
	_, _ = fmt.Fprintln(w, "API usage:")
	for _, line := range s.Lines() {
		_, _ = fmt.Fprintln(w, "  "+line)
	}
}

func countStatuses(rows []pipeline.Row) (okRows int, failedRows int) {
	for _, row := range rows {
		if strings.EqualFold(strings.TrimSpace(row.ScrapeStatus), enrich.StatusSuccess) {
			okRows++
			continue
		}
		failedRows++
	}
	return okRows, failedRows
}
