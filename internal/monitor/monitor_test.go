package monitor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/inkdex/search-sync/internal/metrics"
	"github.com/inkdex/search-sync/internal/searchindex"
)

// captureSink implements metrics.Sink for testing.
type captureSink struct {
	data []metrics.Datum
}

func (s *captureSink) Emit(ctx context.Context, data ...metrics.Datum) {
	s.data = append(s.data, data...)
}

// mockHealthChecker implements HealthChecker for testing.
type mockHealthChecker struct {
	healthFunc func(ctx context.Context) (searchindex.Health, error)
}

func (m *mockHealthChecker) Health(ctx context.Context) (searchindex.Health, error) {
	if m.healthFunc != nil {
		return m.healthFunc(ctx)
	}
	return searchindex.Health{Status: "green"}, nil
}

var fixedNow = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

func TestMonitor_Lag(t *testing.T) {
	m := NewWithClock(&captureSink{}, func() time.Time { return fixedNow })

	lag := m.Lag(fixedNow.Add(-40 * time.Second))
	if lag != 40*time.Second {
		t.Errorf("Lag = %v, want 40s", lag)
	}

	lag = m.Lag(fixedNow.Add(-5 * time.Second))
	if lag != 5*time.Second {
		t.Errorf("Lag = %v, want 5s", lag)
	}
}

func TestMonitor_ObserveLag(t *testing.T) {
	var buf bytes.Buffer
	m := NewWithClock(&captureSink{}, func() time.Time { return fixedNow })
	m.log = slog.New(slog.NewJSONHandler(&buf, nil))

	m.ObserveLag(context.Background(), "rec-1", 40*time.Second)
	if !strings.Contains(buf.String(), "High replication lag") {
		t.Errorf("expected high-lag warning, log = %q", buf.String())
	}
	if !strings.Contains(buf.String(), `"lag_ms":40000`) {
		t.Errorf("warning missing lag value, log = %q", buf.String())
	}
	if !strings.Contains(buf.String(), `"record_id":"rec-1"`) {
		t.Errorf("warning missing record id, log = %q", buf.String())
	}

	buf.Reset()
	m.ObserveLag(context.Background(), "rec-2", 5*time.Second)
	if buf.Len() != 0 {
		t.Errorf("expected no warning below threshold, log = %q", buf.String())
	}
}

func TestMonitor_Preflight_Healthy(t *testing.T) {
	m := New(&captureSink{})
	hc := &mockHealthChecker{
		healthFunc: func(ctx context.Context) (searchindex.Health, error) {
			return searchindex.Health{Status: "yellow", NumberOfNodes: 1}, nil
		},
	}

	if err := m.Preflight(context.Background(), hc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMonitor_Preflight_Unreachable(t *testing.T) {
	m := New(&captureSink{})
	hc := &mockHealthChecker{
		healthFunc: func(ctx context.Context) (searchindex.Health, error) {
			return searchindex.Health{}, errors.New("connection refused")
		},
	}

	if err := m.Preflight(context.Background(), hc); err == nil {
		t.Fatal("expected error for unreachable cluster")
	}
}

func TestMonitor_Preflight_RedCluster(t *testing.T) {
	m := New(&captureSink{})
	hc := &mockHealthChecker{
		healthFunc: func(ctx context.Context) (searchindex.Health, error) {
			return searchindex.Health{Status: "red"}, nil
		},
	}

	if err := m.Preflight(context.Background(), hc); err == nil {
		t.Fatal("expected error for red cluster")
	}
}

func TestMonitor_EmitBatchMetrics(t *testing.T) {
	sink := &captureSink{}
	m := New(sink)

	m.EmitBatchMetrics(context.Background(), BatchSummary{
		Records:    5,
		Succeeded:  3,
		Failed:     1,
		Skipped:    1,
		AverageLag: 1500 * time.Millisecond,
		Duration:   4 * time.Second,
	})

	want := map[string]float64{
		"RecordsProcessed": 5,
		"RecordsSucceeded": 3,
		"RecordsFailed":    1,
		"RecordsSkipped":   1,
		"AverageLag":       1500,
		"BatchDuration":    4000,
	}
	if len(sink.data) != len(want) {
		t.Fatalf("emitted %d data points, want %d", len(sink.data), len(want))
	}
	for _, d := range sink.data {
		wantValue, ok := want[d.Name]
		if !ok {
			t.Errorf("unexpected datum %q", d.Name)
			continue
		}
		if d.Value != wantValue {
			t.Errorf("%s = %v, want %v", d.Name, d.Value, wantValue)
		}
		if d.Dimensions["Service"] != "search-sync" {
			t.Errorf("%s dimensions = %v", d.Name, d.Dimensions)
		}
	}
}
