package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/shpitdev/leadfinder/internal/app"
	"github.com/shpitdev/leadfinder/internal/config"
	"github.com/shpitdev/leadfinder/internal/leads"
	"github.com/shpitdev/leadfinder/internal/logging"
	"github.com/shpitdev/leadfinder/internal/version"
	"github.com/shpitdev/leadfinder/pkg/pipeline/redact"
	"github.com/shpitdev/leadfinder/pkg/pipeline/schema"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	var code int
	switch os.Args[1] {
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	case "version", "--version":
		_, _ = fmt.Fprintln(os.Stdout, version.String())
		return
	case "search":
		code = runSearch(ctx, os.Args[2:])
	case "enrich":
		code = runEnrich(ctx, os.Args[2:])
	case "run":
		code = runAll(ctx, os.Args[2:])
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		code = 2
	}
	stop()
	os.Exit(code)
}

// command holds what every subcommand parses: the env-derived config with
// flag overrides applied, plus the debug switch.
type command struct {
	name  string
	cfg   config.Config
	fs    *flag.FlagSet
	debug bool
}

func newCommand(name string) (*command, int) {
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return nil, 2
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	c := &command{name: name, cfg: cfg, fs: fs}
	fs.BoolVar(&c.debug, "debug", false, "Log at debug level (overrides LOG_LEVEL)")
	return c, 0
}

func (c *command) bindPipelineFlags() {
	fs := c.fs
	fs.IntVar(&c.cfg.Workers, "workers", c.cfg.Workers, "Number of businesses enriched concurrently (env: WORKERS)")
	fs.IntVar(&c.cfg.MaxRetries, "max-retries", c.cfg.MaxRetries, "Max retries per business for transient failures (env: MAX_RETRIES)")
	fs.DurationVar(&c.cfg.RequestTimeout, "request-timeout", c.cfg.RequestTimeout, "Per-business timeout (env: REQUEST_TIMEOUT)")
	fs.DurationVar(&c.cfg.FetchTimeout, "fetch-timeout", c.cfg.FetchTimeout, "Per-page fetch timeout (env: FETCH_TIMEOUT)")
	fs.Float64Var(&c.cfg.RateLimitRPS, "rate-limit-rps", c.cfg.RateLimitRPS, "Global business rate limit (RPS), 0 disables (env: RATE_LIMIT_RPS)")
	fs.BoolVar(&c.cfg.FailFast, "fail-fast", c.cfg.FailFast, "Stop on the first business that fails outright (env: FAIL_FAST)")
	fs.StringVar(&c.cfg.RolesFile, "roles", c.cfg.RolesFile, "YAML industry -> roles table (env: ROLES_FILE)")
}

func (c *command) bindSearchFlags(opts *app.SearchOptions, states *string) {
	fs := c.fs
	fs.StringVar(&opts.Term, "term", "", "Business type to search for, e.g. dentist")
	fs.StringVar(states, "states", "", "Comma-separated state names, e.g. \"Ohio,New York\"")
	fs.IntVar(&opts.Depth, "depth", leads.DefaultDepth, fmt.Sprintf("Top cities searched per state (1-%d)", leads.MaxDepth))
	fs.BoolVar(&opts.RequirePhone, "require-phone", false, "Drop leads without a phone number")
	fs.BoolVar(&opts.RequireWebsite, "require-website", false, "Drop leads without a website")
	fs.BoolVar(&opts.NewOnly, "new-only", false, "Write only leads not already in the archive")
	fs.IntVar(&opts.Threads, "threads", 1, "Cities searched concurrently")
	fs.StringVar(&c.cfg.ArchiveFile, "archive", c.cfg.ArchiveFile, "Lead archive CSV (env: ARCHIVE_FILE)")
}

func (c *command) bindEnrichFlags(opts *app.EnrichOptions, format *string) {
	fs := c.fs
	fs.StringVar(format, "format", string(schema.FormatCSV), "Output format: csv or jsonl")
	fs.BoolVar(&opts.RenderJS, "render-js", false, "Render pages in headless Chrome")
	fs.StringVar(&opts.ChromePath, "chrome-path", "", "Chrome executable for --render-js (default: autodetect)")
	fs.BoolVar(&opts.AI, "ai", false, "Ask Gemini for the best contact (requires GEMINI_API_KEY)")
}

// finish validates the parsed config and builds the run environment.
func (c *command) finish() (app.Env, bool) {
	if err := c.cfg.Validate(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", err)
		return app.Env{}, false
	}
	level := c.cfg.LogLevel
	if c.debug {
		level = "debug"
	}
	base := logging.New(os.Stderr, level, c.cfg.LogFormat)
	slog.SetDefault(base)
	return app.Env{
		Config: c.cfg,
		Logger: logging.WithRun(base, uuid.NewString(), c.name),
		Stdout: os.Stdout,
	}, true
}

func checkSearch(cfg config.Config, opts *app.SearchOptions, states string) error {
	if err := cfg.RequirePlaces(); err != nil {
		return err
	}
	opts.Term = strings.TrimSpace(opts.Term)
	if opts.Term == "" {
		return fmt.Errorf("--term is required")
	}
	for _, s := range strings.Split(states, ",") {
		if s = strings.TrimSpace(s); s != "" {
			opts.States = append(opts.States, s)
		}
	}
	if len(opts.States) == 0 {
		return fmt.Errorf("--states is required (known: %s)", strings.Join(leads.KnownStates(), ", "))
	}
	if opts.Depth < 1 || opts.Depth > leads.MaxDepth {
		return fmt.Errorf("--depth must be between 1 and %d", leads.MaxDepth)
	}
	return nil
}

func checkEnrich(cfg config.Config, opts *app.EnrichOptions, format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv", "jsonl":
		opts.Format = schema.NormalizeFormat(format)
	default:
		return fmt.Errorf("--format must be csv or jsonl, got %q", format)
	}
	if opts.AI && strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		return fmt.Errorf("--ai requires GEMINI_API_KEY")
	}
	return nil
}

func runSearch(ctx context.Context, args []string) int {
	c, code := newCommand("search")
	if c == nil {
		return code
	}
	var opts app.SearchOptions
	var states string
	c.bindSearchFlags(&opts, &states)
	c.fs.StringVar(&opts.OutputPath, "output", "leads.csv", "Leads CSV file path")
	if err := c.fs.Parse(args); err != nil {
		return 2
	}
	if err := checkSearch(c.cfg, &opts, states); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "search: %s\n", err)
		return 2
	}
	env, ok := c.finish()
	if !ok {
		return 2
	}

	if _, err := app.RunSearch(ctx, env, opts); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "search failed: %s\n", redact.Secrets(err.Error()))
		return 1
	}
	return 0
}

func runEnrich(ctx context.Context, args []string) int {
	c, code := newCommand("enrich")
	if c == nil {
		return code
	}
	var opts app.EnrichOptions
	var format string
	c.bindPipelineFlags()
	c.bindEnrichFlags(&opts, &format)
	c.fs.StringVar(&opts.InputPath, "input", "", "Input CSV with Business Name and Website columns")
	c.fs.StringVar(&opts.OutputPath, "output", "", "Contact table output path")
	if err := c.fs.Parse(args); err != nil {
		return 2
	}
	if opts.InputPath == "" || opts.OutputPath == "" {
		_, _ = fmt.Fprintln(os.Stderr, "enrich requires --input and --output")
		return 2
	}
	if err := checkEnrich(c.cfg, &opts, format); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "enrich: %s\n", err)
		return 2
	}
	env, ok := c.finish()
	if !ok {
		return 2
	}

	if _, err := app.RunEnrich(ctx, env, opts); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "enrich failed: %s\n", redact.Secrets(err.Error()))
		return 1
	}
	return 0
}

func runAll(ctx context.Context, args []string) int {
	c, code := newCommand("run")
	if c == nil {
		return code
	}
	var search app.SearchOptions
	var enrichOpts app.EnrichOptions
	var states, format string
	c.bindPipelineFlags()
	c.bindSearchFlags(&search, &states)
	c.bindEnrichFlags(&enrichOpts, &format)
	c.fs.StringVar(&search.OutputPath, "leads", "leads.csv", "Intermediate leads CSV path")
	c.fs.StringVar(&enrichOpts.OutputPath, "output", "contacts.csv", "Contact table output path")
	if err := c.fs.Parse(args); err != nil {
		return 2
	}
	if err := checkSearch(c.cfg, &search, states); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "run: %s\n", err)
		return 2
	}
	if err := checkEnrich(c.cfg, &enrichOpts, format); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "run: %s\n", err)
		return 2
	}
	env, ok := c.finish()
	if !ok {
		return 2
	}

	if _, err := app.RunAll(ctx, env, search, enrichOpts); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "run failed: %s\n", redact.Secrets(err.Error()))
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintf(w, `%s: find local businesses and the people who run them

Usage:
  leadfinder <command> [flags]

Commands:
  search   Find businesses with the Places API and write a leads CSV
  enrich   Scrape each business website for contacts and write a contact table
  run      search, then enrich the leads it found
  version  Print the version

Examples:
  leadfinder search --term dentist --states Ohio --depth 3 --require-website --output leads.csv
  leadfinder enrich --input leads.csv --output contacts.csv --workers 4
  leadfinder run --term school --states "Ohio,Texas" --new-only --ai --format jsonl --output contacts.jsonl

Environment (a .env file in the working directory is loaded when present):
  GOOGLE_PLACES_API_KEY  Places API key (required for search and run)
  PLACES_BASE_URL        Places API base URL override (mock server/testing)
  GEMINI_API_KEY         Gemini API key (required for --ai)
  GEMINI_MODEL           Gemini model name (default gemini-2.5-flash)
  GEMINI_BASE_URL        Gemini API base URL override
  WORKERS, MAX_RETRIES, REQUEST_TIMEOUT, FETCH_TIMEOUT, RATE_LIMIT_RPS, FAIL_FAST
                         Enrichment defaults for the matching flags
  ROLES_FILE             YAML industry -> roles table
  CACHE_DIR              Search cache directory (default .cache/search)
  REDIS_URL              Use Redis for the search cache instead of CACHE_DIR
  ARCHIVE_FILE           Lead archive CSV (default lead_archive.csv)
  LOG_LEVEL, LOG_FORMAT  debug|info|warn|error, text|json

`, version.String())
}
