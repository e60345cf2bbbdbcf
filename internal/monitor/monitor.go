// Package monitor measures replication lag and gates processing on cluster
// health.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/inkdex/search-sync/internal/logging"
	"github.com/inkdex/search-sync/internal/metrics"
	"github.com/inkdex/search-sync/internal/searchindex"
)

var logger = logging.New()

// HighLagThreshold is the replication lag above which a warning is logged.
const HighLagThreshold = 30 * time.Second

// HealthChecker probes the search cluster.
type HealthChecker interface {
	Health(ctx context.Context) (searchindex.Health, error)
}

// BatchSummary aggregates one invocation's outcomes for metric emission.
type BatchSummary struct {
	Records    int
	Succeeded  int
	Failed     int
	Skipped    int
	AverageLag time.Duration
	Duration   time.Duration
}

// Monitor computes lag and emits batch metrics.
type Monitor struct {
	sink metrics.Sink
	now  func() time.Time
	log  *slog.Logger
}

// New creates a Monitor emitting to the given sink.
func New(sink metrics.Sink) *Monitor {
	return NewWithClock(sink, time.Now)
}

// NewWithClock creates a Monitor with an explicit clock.
func NewWithClock(sink metrics.Sink, now func() time.Time) *Monitor {
	return &Monitor{sink: sink, now: now, log: logger}
}

// Lag returns the elapsed time since the mutation was written to the feed.
func (m *Monitor) Lag(approxCreation time.Time) time.Duration {
	return m.now().Sub(approxCreation)
}

// ObserveLag logs a warning when a record's lag exceeds the threshold. The
// record's processing outcome is unaffected.
func (m *Monitor) ObserveLag(ctx context.Context, recordID string, lag time.Duration) {
	if lag > HighLagThreshold {
		m.log.WarnContext(ctx, "High replication lag",
			slog.String("record_id", recordID),
			slog.Int64("lag_ms", lag.Milliseconds()),
			slog.Int64("threshold_ms", HighLagThreshold.Milliseconds()),
		)
	}
}

// Preflight verifies the cluster is reachable and not red before any record
// is touched. A failure here aborts the whole invocation.
func (m *Monitor) Preflight(ctx context.Context, hc HealthChecker) error {
	health, err := hc.Health(ctx)
	if err != nil {
		return fmt.Errorf("cluster unreachable: %w", err)
	}
	if health.Status == "red" {
		return fmt.Errorf("cluster status is red (%d of %d primary shards active)",
			health.ActivePrimaryShards, health.ActiveShards)
	}

	m.log.InfoContext(ctx, "Cluster healthy",
		slog.String("status", health.Status),
		slog.Int("nodes", health.NumberOfNodes),
		slog.Int("active_shards", health.ActiveShards),
		slog.Int64("document_count", health.DocumentCount),
		slog.Int64("index_size_bytes", health.IndexSizeInBytes),
	)
	return nil
}

// EmitBatchMetrics publishes the invocation's aggregate data points.
// Emission is best-effort and never affects the batch outcome.
func (m *Monitor) EmitBatchMetrics(ctx context.Context, s BatchSummary) {
	dims := map[string]string{"Service": "search-sync"}
	m.sink.Emit(ctx,
		metrics.Datum{Name: "RecordsProcessed", Value: float64(s.Records), Unit: types.StandardUnitCount, Dimensions: dims},
		metrics.Datum{Name: "RecordsSucceeded", Value: float64(s.Succeeded), Unit: types.StandardUnitCount, Dimensions: dims},
		metrics.Datum{Name: "RecordsFailed", Value: float64(s.Failed), Unit: types.StandardUnitCount, Dimensions: dims},
		metrics.Datum{Name: "RecordsSkipped", Value: float64(s.Skipped), Unit: types.StandardUnitCount, Dimensions: dims},
		metrics.Datum{Name: "AverageLag", Value: float64(s.AverageLag.Milliseconds()), Unit: types.StandardUnitMilliseconds, Dimensions: dims},
		metrics.Datum{Name: "BatchDuration", Value: float64(s.Duration.Milliseconds()), Unit: types.StandardUnitMilliseconds, Dimensions: dims},
	)
}
