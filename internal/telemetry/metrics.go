// Package telemetry provides application-level observability for the marketplace backend.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// served by the side-channel HTTP server started in cmd/server:
//
//	GET http://<host>:<MKT_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is not served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Member sync runs, durations and per-member outcomes
//   - Directory fallbacks and unknown status codes
//   - Claim transitions and approval failures
//   - Notification delivery failures
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (e.g. /api/v1/chambers/:id/sync) rather than the raw
// URL. Sync metrics are never labelled with a chamber ID; that lives in the sync_log table.
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template, and status code.
//
// Example PromQL queries:
//   - Error rate (%):  sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency:     histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Member sync metrics, recorded by the member sync job.
//
// MemberSyncRunsTotal has label {status}: "completed" or "failed".
// MemberSyncMembersTotal has label {outcome}: "added", "updated", "deactivated" or "skipped".
// "deactivated" counts updates whose new status is inactive; it overlaps "updated".
//
// Example PromQL queries:
//   - Failed syncs in the last day:  increase(member_sync_runs_total{status="failed"}[24h])
//   - p95 sync duration:             histogram_quantile(0.95, rate(member_sync_duration_seconds_bucket[1h]))
var (
	MemberSyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "member_sync_runs_total",
			Help: "Total number of member sync runs that reached a terminal state, by status.",
		},
		[]string{"status"},
	)

	MemberSyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "member_sync_duration_seconds",
			Help:    "Duration of a single chamber member sync.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	MemberSyncMembersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "member_sync_members_total",
			Help: "Total number of members processed by member syncs, by outcome.",
		},
		[]string{"outcome"},
	)
)

// Directory metrics.
//
// MemberSyncDirectoryFallbacksTotal counts syncs where the detailed member fetch failed
// and the job fell back to the active-members list.
//
// DirectoryUnknownStatusTotal has label {code}. A non-zero rate means the directory
// returned a status code outside the known set; such members are treated as active.
var (
	MemberSyncDirectoryFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "member_sync_directory_fallbacks_total",
			Help: "Total number of syncs that fell back from the detailed member fetch to the active list.",
		},
	)

	DirectoryUnknownStatusTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "directory_unknown_status_total",
			Help: "Total number of directory members seen with an unrecognised status code, by code.",
		},
		[]string{"code"},
	)
)

// Claim workflow metrics.
//
// ClaimTransitionsTotal has label {to}: "pending", "approved" or "denied".
// ClaimApprovalFailuresTotal has label {step} naming the approval step that failed
// ("lock", "merchant", "member", "profile", "claim", "notification", "commit").
// Every failure rolls back the whole approval.
var (
	ClaimTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claim_transitions_total",
			Help: "Total number of claim requests entering a status, by target status.",
		},
		[]string{"to"},
	)

	ClaimApprovalFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claim_approval_failures_total",
			Help: "Total number of claim approvals rolled back, by failing step.",
		},
		[]string{"step"},
	)
)

// NotificationFailuresTotal has label {kind}: "claim_approved_email" or "claim_denied_email".
// Email failures never affect the outcome of the operation that sent them.
var NotificationFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notification_failures_total",
		Help: "Total number of outbound notifications that failed to send, by kind.",
	},
	[]string{"kind"},
)

// DB pool gauges, sampled every 30 seconds by StartDBStatsCollector.
var (
	DBOpenConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_open_connections",
			Help: "Current number of open database connections in the pool.",
		},
	)

	DBInUseConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_in_use_connections",
			Help: "Current number of database connections in use.",
		},
	)

	DBIdleConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_idle_connections",
			Help: "Current number of idle database connections.",
		},
	)

	// DBWaitCount mirrors sql.DBStats.WaitCount, which is already cumulative.
	DBWaitCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_wait_count_total",
			Help: "Total number of connections waited for since the pool was opened.",
		},
	)
)

// StartDBStatsCollector samples sql.DB pool statistics every interval until ctx is
// cancelled or the database becomes unreachable.
//
//	telemetry.StartDBStatsCollector(ctx, database, 30*time.Second)
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.PingContext(ctx); err != nil {
					slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
					return
				}
				RecordDBStats(db.Stats())
			}
		}
	}()
}

// RecordDBStats copies pool statistics into the DB gauges.
func RecordDBStats(stats sql.DBStats) {
	DBOpenConnections.Set(float64(stats.OpenConnections))
	DBInUseConnections.Set(float64(stats.InUse))
	DBIdleConnections.Set(float64(stats.Idle))
	DBWaitCount.Set(float64(stats.WaitCount))
}
