package metrics

import (
	"time"

	"github.com/stratadb/strata/pkg/engine"
)

// Collector periodically polls an open Database's counters and updates
// the package-level gauges, the way a process exposing /metrics would
// rather than relying on every call site to update them inline.
type Collector struct {
	db     *engine.Database
	stopCh chan struct{}

	lastCommitted uint64
	lastConflicts uint64
}

// NewCollector creates a new metrics collector for db.
func NewCollector(db *engine.Database) *Collector {
	return &Collector{
		db:     db,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics on a fixed interval.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

// collect runs on a single goroutine (the ticker loop started by
// Start), so the plain uint64 delta bookkeeping below needs no
// synchronization of its own.
func (c *Collector) collect() {
	stats, err := c.db.Stats()
	if err != nil {
		return
	}

	CommitsTotal.Add(float64(stats.CommittedCount - c.lastCommitted))
	ConflictsTotal.Add(float64(stats.ConflictCount - c.lastConflicts))
	c.lastCommitted = stats.CommittedCount
	c.lastConflicts = stats.ConflictCount

	CurrentVersion.Set(float64(stats.CurrentVersion))
	WalBytes.Set(float64(stats.WalBytes))
	WalSegmentsTotal.Set(float64(stats.WalSegments))
	ActiveCheckpointID.Set(float64(stats.ActiveCheckpointID))
}
