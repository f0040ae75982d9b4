/*
Package metrics provides Prometheus metrics collection and exposition for
an open Strata database.

Every metric here is updated by a Collector polling
engine.Database.Stats() on an interval, rather than pushed inline from
the lower-level packages (pkg/txn, pkg/wal, pkg/snapshot): those
packages sit underneath pkg/engine in the dependency graph, and
pkg/metrics depends on pkg/engine to reach Stats(), so a push from
underneath would be an import cycle. Metrics are exposed over HTTP for
scraping by a Prometheus server.

# Metrics Catalog

Commit metrics:

  - strata_commits_total (Counter): transactions committed.
  - strata_commit_conflicts_total (Counter): transactions aborted on an
    OCC read or CAS conflict.
  - strata_current_version (Gauge): highest commit version minted so
    far.

WAL metrics:

  - strata_wal_bytes (Gauge): total size of WAL segment files on disk.
  - strata_wal_segments_total (Gauge): number of WAL segment files on
    disk.

Checkpoint metrics:

  - strata_active_checkpoint_id (Gauge): identifier of the most recent
    checkpoint.

# Usage

Polling engine counters:

	collector := metrics.NewCollector(db)
	collector.Start()
	defer collector.Stop()

Timing an ad hoc operation against a caller-owned histogram:

	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDuration(someHistogram)

Exposing the endpoint:

	http.Handle("/metrics", metrics.Handler())

# Health and Readiness

RegisterComponent/UpdateComponent track per-component health
independently of the Prometheus gauges above; GetReadiness treats
"wal", "store", and "checkpoint" as the components that must be
healthy for the database to accept traffic. HealthHandler, ReadyHandler,
and LivenessHandler adapt GetHealth/GetReadiness into HTTP endpoints.
*/
package metrics
