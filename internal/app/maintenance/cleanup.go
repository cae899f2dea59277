package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/samintell/songquiz/pkg/logger"
)

const (
	defaultRetentionDays = 30
	defaultHistorySpec   = "@daily"
	defaultCatalogSpec   = "@hourly"
	defaultJobTimeout    = time.Minute
)

// HistoryPruner deletes finished quizzes that ended before cutoff.
type HistoryPruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// CatalogReloader re-reads the chart catalog.
type CatalogReloader interface {
	Reload() error
}

// Cleaner runs the periodic jobs of the quiz server: history retention and catalog reloads.
type Cleaner struct {
	history HistoryPruner
	catalog CatalogReloader
	cron    *cron.Cron
	now     func() time.Time
	log     *zap.Logger

	retention       int
	historySchedule string
	catalogSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for retention cutoffs.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithHistory enables history pruning. A retention of zero days keeps everything.
func WithHistory(p HistoryPruner, retentionDays int) Option {
	return func(cleaner *Cleaner) {
		cleaner.history = p
		cleaner.retention = retentionDays
	}
}

// WithCatalog enables periodic catalog reloads.
func WithCatalog(r CatalogReloader) Option {
	return func(cleaner *Cleaner) {
		cleaner.catalog = r
	}
}

// WithHistorySchedule overrides the cron specification for history pruning.
func WithHistorySchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.historySchedule = spec
		}
	}
}

// WithCatalogSchedule overrides the cron specification for catalog reloads.
func WithCatalogSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.catalogSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner. Jobs without a dependency are skipped.
func NewCleaner(opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		now:             time.Now,
		retention:       defaultRetentionDays,
		historySchedule: defaultHistorySpec,
		catalogSchedule: defaultCatalogSpec,
		log:             logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

func (c *Cleaner) pruning() bool {
	return c.history != nil && c.retention > 0
}

// Start registers the enabled jobs and launches the scheduler.
func (c *Cleaner) Start() error {
	if !c.pruning() && c.catalog == nil {
		return nil
	}

	if c.pruning() {
		if _, err := c.cron.AddFunc(c.historySchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), defaultJobTimeout)
			defer cancel()
			if _, err := c.PruneHistory(ctx); err != nil {
				c.log.Warn("history pruning failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("maintenance: history schedule: %w", err)
		}
	}

	if c.catalog != nil {
		if _, err := c.cron.AddFunc(c.catalogSchedule, func() {
			if err := c.catalog.Reload(); err != nil {
				c.log.Warn("catalog reload failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("maintenance: catalog schedule: %w", err)
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// PruneHistory removes quizzes older than the retention window.
func (c *Cleaner) PruneHistory(ctx context.Context) (int64, error) {
	if !c.pruning() {
		return 0, nil
	}
	cutoff := c.now().AddDate(0, 0, -c.retention)
	removed, err := c.history.Prune(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		c.log.Info("quiz history pruned", zap.Int64("removed", removed), zap.Time("cutoff", cutoff))
	}
	return removed, nil
}

// RunOnce executes every enabled job sequentially.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	if _, err := c.PruneHistory(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("prune history: %w", err))
	}
	if c.catalog != nil {
		if err := c.catalog.Reload(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("reload catalog: %w", err))
		}
	}
	return errs
}
