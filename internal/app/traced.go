package app

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shpitdev/leadfinder/internal/enrich"
	"github.com/shpitdev/leadfinder/pkg/pipeline/redact"
	"github.com/shpitdev/leadfinder/pkg/pipeline/worker"
)

// tracedEnricher logs one request and one response record per attempt.
// Attempts are shared across workers so retries on another worker count up.
type tracedEnricher struct {
	next       enrich.Enricher
	logger     *slog.Logger
	maxRetries int
	attempts   *attemptCounter
}

type attemptCounter struct {
	mu sync.Mutex
	n  map[string]int
}

func newAttemptCounter() *attemptCounter {
	return &attemptCounter{n: make(map[string]int)}
}

func (c *attemptCounter) next(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n[key]++
	return c.n[key]
}

func (t *tracedEnricher) Enrich(ctx context.Context, b enrich.Business) (enrich.Result, error) {
	name := strings.TrimSpace(b.Name)
	attempt := t.attempts.next(name + "|" + strings.TrimSpace(b.Website))

	deadlineIn := "none"
	if d, ok := ctx.Deadline(); ok {
		deadlineIn = time.Until(d).Round(time.Millisecond).String()
	}
	log := t.logger.With("business", name, "website", b.Website, "attempt", attempt)
	log.Debug("enrich request", "deadline_in", deadlineIn)

	start := time.Now()
	out, err := t.next.Enrich(ctx, b)
	elapsed := time.Since(start).Round(time.Millisecond)

	if err != nil {
		retryable := worker.IsTransient(err)
		log.Warn("enrich response",
			"duration", elapsed,
			"status", "error",
			"retryable", retryable,
			"will_retry", retryable && attempt <= t.maxRetries,
			"error", redact.Secrets(err.Error()),
		)
		return out, err
	}

	log.Info("enrich response",
		"duration", elapsed,
		"status", out.Status,
		"contacts", len(out.Contacts),
		"business_email", out.BusinessEmail,
		"source", out.SourceURL,
	)
	return out, nil
}
