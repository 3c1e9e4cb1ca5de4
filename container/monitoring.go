package container

import (
	"context"
	"time"

	"github.com/zigcms/core/cache"
	"github.com/zigcms/core/pool"
	"go.uber.org/zap"
)

// Monitor periodically samples the pool and cache and logs the result as
// one structured line — the same ticker-driven sampling shape the teacher
// codebase's MonitoringManager.monitoringLoop used for its own stdout
// reports, generalized here to structured zap fields over a different set
// of components and with no stdout banner printing.
type Monitor struct {
	pool      *pool.Pool
	cache     *cache.Cache
	interval  time.Duration
	log       *zap.SugaredLogger
	startTime time.Time
	stopCh    chan struct{}
	stopped   chan struct{}
}

// NewMonitor builds a Monitor over p and c. It does nothing until Start is
// called.
func NewMonitor(p *pool.Pool, c *cache.Cache, interval time.Duration, log *zap.SugaredLogger) *Monitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Monitor{
		pool:     p,
		cache:    c,
		interval: interval,
		log:      log.With("component", "monitor"),
		stopCh:   make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start begins the sampling loop in the background. Cancelling ctx stops it
// the same way Stop does.
func (m *Monitor) Start(ctx context.Context) {
	m.startTime = time.Now()
	go m.loop(ctx)
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.stopped)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

// sample logs one snapshot of pool and cache activity.
func (m *Monitor) sample() {
	ps := m.pool.Stats()
	cs := m.cache.Stats()

	var hitRatio float64
	if cs.Hits+cs.Misses > 0 {
		hitRatio = float64(cs.Hits) / float64(cs.Hits+cs.Misses)
	}

	m.log.Infow("stats",
		"uptime", time.Since(m.startTime).Round(time.Second).String(),
		"pool_acquires", ps.Acquires,
		"pool_releases", ps.Releases,
		"pool_creates", ps.Creates,
		"pool_destroys", ps.Destroys,
		"pool_timeouts", ps.Timeouts,
		"cache_hits", cs.Hits,
		"cache_misses", cs.Misses,
		"cache_hit_ratio", hitRatio,
		"cache_evictions", cs.Evictions,
		"cache_expirations", cs.Expirations,
		"cache_sets", cs.Sets,
	)

	if ps.Timeouts > 0 {
		m.log.Warnw("pool is timing out acquisitions", "pool_timeouts", ps.Timeouts)
	}
}

// Stop halts the sampling loop and waits for it to exit. Safe to call more
// than once.
func (m *Monitor) Stop() {
	select {
	case <-m.stopCh:
	default:
		close(m.stopCh)
	}
	<-m.stopped
}
