// Package refresh runs fetch cycles against Password Safe and keeps the
// secret cache current.
//
// A Broker owns the cache. Start runs one cycle synchronously and, when an
// interval is configured, a single background worker that repeats the cycle
// on that period. Cycles never overlap; readers use the cache concurrently.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/systmms/btbroker/internal/accounts"
	"github.com/systmms/btbroker/internal/cache"
	"github.com/systmms/btbroker/internal/checkout"
	"github.com/systmms/btbroker/internal/logging"
	"github.com/systmms/btbroker/internal/metrics"
	"github.com/systmms/btbroker/internal/pam"
	"github.com/systmms/btbroker/internal/safe"
)

// Settings selects what a cycle fetches.
type Settings struct {
	Enabled bool
	// APIKey only gates startup; the client carries the credential.
	APIKey string

	Accounts  accounts.Options
	SafePaths []string

	// Interval between cycles. Zero runs a single cycle.
	Interval time.Duration

	// PollInterval overrides the checkout poll interval when positive.
	PollInterval time.Duration
}

// CycleStats describes one finished cycle.
type CycleStats struct {
	ID        string
	StartedAt time.Time
	Duration  time.Duration

	Accounts  int
	Succeeded int
	Failed    int

	SafePaths       int
	FailedSafePaths int
	SafeItems       int

	Merge cache.MergeStats

	// Err is set when account resolution failed or the cycle panicked.
	Err error
}

// ErrAlreadyStarted is returned by a second Start.
var ErrAlreadyStarted = errors.New("broker already started")

// Broker is the refresh orchestrator.
type Broker struct {
	settings Settings
	client   pam.Client
	cache    *cache.Cache
	logger   *logging.Logger

	checkout *checkout.Checkout
	resolver *accounts.Resolver
	fetcher  *safe.Fetcher

	// cycleMu serializes cycles.
	cycleMu sync.Mutex

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}

	ready atomic.Bool
	last  atomic.Pointer[CycleStats]
}

// New creates a Broker with an empty cache.
func New(settings Settings, client pam.Client, logger *logging.Logger) *Broker {
	if logger == nil {
		logger = logging.Discard()
	}
	c := cache.New()

	co := checkout.New(client, c, logger.Named("checkout"))
	if settings.PollInterval > 0 {
		co.PollInterval = settings.PollInterval
	}

	return &Broker{
		settings: settings,
		client:   client,
		cache:    c,
		logger:   logger,
		checkout: co,
		resolver: accounts.NewResolver(client),
		fetcher:  safe.NewFetcher(client, logger.Named("safe")),
	}
}

// Cache returns the cache the broker writes to.
func (b *Broker) Cache() *cache.Cache {
	return b.cache
}

// Ready reports whether the initial cycle has completed.
func (b *Broker) Ready() bool {
	return b.ready.Load()
}

// LastCycle returns the stats of the most recent cycle.
func (b *Broker) LastCycle() (CycleStats, bool) {
	s := b.last.Load()
	if s == nil {
		return CycleStats{}, false
	}
	return *s, true
}

// Active reports whether the broker will fetch anything at all.
func (b *Broker) Active() bool {
	return b.settings.Enabled && strings.TrimSpace(b.settings.APIKey) != ""
}

// Start runs the initial cycle and, if an interval is set, starts the
// background worker. A disabled broker or one without an API key makes no
// calls and leaves the cache empty.
func (b *Broker) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return ErrAlreadyStarted
	}
	b.started = true

	if !b.Active() {
		if !b.settings.Enabled {
			b.logger.Info("BeyondTrust integration disabled")
		} else {
			b.logger.Warn("no BeyondTrust API key configured, nothing will be fetched")
		}
		b.ready.Store(true)
		return nil
	}

	b.RunCycle(ctx)
	b.ready.Store(true)

	if b.settings.Interval <= 0 {
		b.logger.Debug("refresh interval is 0, no further cycles scheduled")
		return nil
	}

	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.cancel = cancel
	b.done = make(chan struct{})
	go b.schedule(sctx, b.done)

	b.logger.Info("refreshing every %s", b.settings.Interval)
	return nil
}

func (b *Broker) schedule(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(b.settings.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			// In-flight cycles finish even if Stop is called meanwhile.
			b.RunCycle(context.WithoutCancel(ctx))

			// Drop a tick that fired during the cycle.
			select {
			case <-ticker.C:
			default:
			}
		}
	}
}

// Stop cancels scheduling and waits for a running cycle until ctx is done.
func (b *Broker) Stop(ctx context.Context) error {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.cancel, b.done = nil, nil
	b.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		b.logger.Warn("stopped waiting for in-flight refresh cycle: %v", ctx.Err())
		return ctx.Err()
	}
}

// RunCycle performs one full fetch cycle and merges its results. It never
// panics; a failed cycle leaves the cache unchanged.
func (b *Broker) RunCycle(ctx context.Context) (stats CycleStats) {
	b.cycleMu.Lock()
	defer b.cycleMu.Unlock()

	stats.ID = uuid.NewString()
	stats.StartedAt = time.Now()
	log := b.logger.Named(stats.ID[:8])

	defer func() {
		status := "ok"
		if r := recover(); r != nil {
			status = "error"
			stats.Err = fmt.Errorf("refresh cycle panic: %v", r)
			log.Error("%v", stats.Err)
		}
		stats.Duration = time.Since(stats.StartedAt)
		metrics.ObserveCycle(status, stats.Duration)
		b.last.Store(&stats)
	}()

	log.Debug("refresh cycle started")

	if err := b.client.SignAppIn(ctx); err != nil {
		log.Debug("sign-in failed (ignored): %v", err)
	}

	batch := cache.NewBatch()

	if b.settings.Accounts.Active() {
		selected, err := b.resolver.Resolve(ctx, b.settings.Accounts)
		if err != nil {
			stats.Err = err
			log.Warn("managed accounts unavailable: %v", err)
		}
		stats.Accounts = len(selected)
		for _, acc := range selected {
			res := b.checkout.Run(ctx, acc)
			if res.OK() {
				stats.Succeeded++
				batch.Put(res.Key, res.Value)
				continue
			}
			stats.Failed++
			batch.Fail(res.Key, res.Outcome.Sentinel())
		}
	}

	if len(b.settings.SafePaths) > 0 {
		s := b.fetcher.Fetch(ctx, b.settings.SafePaths, batch)
		stats.SafePaths = s.Paths
		stats.FailedSafePaths = s.FailedPaths
		stats.SafeItems = s.Items
	}

	stats.Merge = b.cache.Merge(batch)
	metrics.SetCacheEntries(b.cache.Len())

	log.Info("refresh cycle done: %d/%d accounts, %d safe items, %d keys cached",
		stats.Succeeded, stats.Accounts, stats.SafeItems, b.cache.Len())
	return stats
}
