// Package main implements the artist-index Lambda handler, which keeps the
// artist search index in sync with the artist table's change stream.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/inkdex/search-sync/internal/artist"
	"github.com/inkdex/search-sync/internal/awsinit"
	"github.com/inkdex/search-sync/internal/logging"
	"github.com/inkdex/search-sync/internal/metrics"
	"github.com/inkdex/search-sync/internal/monitor"
	"github.com/inkdex/search-sync/internal/searchindex"
	"github.com/inkdex/search-sync/internal/secrets"
	"github.com/inkdex/search-sync/internal/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var logger = logging.New()

// Indexer applies document changes to the search index.
type Indexer interface {
	Upsert(ctx context.Context, id string, doc any) error
	Delete(ctx context.Context, id string) error
	Health(ctx context.Context) (searchindex.Health, error)
}

// Status is the terminal state of one record's processing.
type Status int

const (
	StatusSucceeded Status = iota
	StatusFailed
	StatusSkipped
)

// Outcome is the result of processing one stream record. Outcomes exist only
// for aggregation; they are never persisted.
type Outcome struct {
	RecordID string
	Type     artist.EventType
	Status   Status
	Lag      time.Duration
	Elapsed  time.Duration
	Err      error
}

// ResponseBody is the success payload.
type ResponseBody struct {
	Message               string `json:"message"`
	ProcessedRecords      int    `json:"processedRecords"`
	TotalProcessingTimeMs int64  `json:"totalProcessingTimeMs"`
	AverageLagMs          int64  `json:"averageLagMs"`
}

// Response is returned when every record in the batch was processed.
type Response struct {
	StatusCode int          `json:"statusCode"`
	Body       ResponseBody `json:"body"`
}

// handler implements the stream batch orchestration.
type handler struct {
	index   Indexer
	monitor *monitor.Monitor
	now     func() time.Time
}

// newHandler creates a new handler.
func newHandler(index Indexer, mon *monitor.Monitor) *handler {
	return &handler{index: index, monitor: mon, now: time.Now}
}

// handle processes one batch of stream records. The cluster health gate runs
// before any record is touched; records are then processed strictly in
// delivery order, one at a time, so same-shard mutations are never applied
// out of order. A record failure never stops the batch: every record is
// attempted, and if any failed the whole invocation errors afterwards so the
// platform redelivers the batch. Redelivery is safe because every index
// operation is idempotent.
func (h *handler) handle(ctx context.Context, event events.DynamoDBEvent) (Response, error) {
	tracer := tracing.Tracer("artist-index")
	ctx, span := tracer.Start(ctx, "ArtistIndexHandler")
	defer span.End()

	log := logger.With(slog.String("correlation_id", logging.CorrelationID(ctx)))
	log.InfoContext(ctx, "Processing stream batch", slog.Int("records", len(event.Records)))

	start := h.now()

	if err := h.monitor.Preflight(ctx, h.index); err != nil {
		log.ErrorContext(ctx, "Pre-flight health check failed, aborting batch",
			slog.String("error", err.Error()),
		)
		return Response{}, fmt.Errorf("preflight: %w", err)
	}

	outcomes := make([]Outcome, 0, len(event.Records))
	for _, rec := range event.Records {
		outcomes = append(outcomes, h.processRecord(ctx, log, rec))
	}

	summary := summarize(outcomes, h.now().Sub(start))
	h.monitor.EmitBatchMetrics(ctx, summary)

	log.InfoContext(ctx, "Stream batch completed",
		slog.Int("records", summary.Records),
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", summary.Failed),
		slog.Int("skipped", summary.Skipped),
		slog.Int64("average_lag_ms", summary.AverageLag.Milliseconds()),
		slog.Int64("duration_ms", summary.Duration.Milliseconds()),
	)

	if summary.Failed > 0 {
		return Response{}, fmt.Errorf("Failed to process %d out of %d records", summary.Failed, summary.Records)
	}

	return Response{
		StatusCode: http.StatusOK,
		Body: ResponseBody{
			Message:               "Stream batch processed",
			ProcessedRecords:      summary.Records,
			TotalProcessingTimeMs: summary.Duration.Milliseconds(),
			AverageLagMs:          summary.AverageLag.Milliseconds(),
		},
	}, nil
}

// processRecord maps one stream record to an Outcome. Records that are not
// artist metadata mutations, or that lack the image their event type
// requires, are skipped rather than failed.
func (h *handler) processRecord(ctx context.Context, log *slog.Logger, rec events.DynamoDBEventRecord) Outcome {
	started := h.now()

	m, ok := artist.MutationFromStreamRecord(rec)
	if !ok {
		log.WarnContext(ctx, "Skipping malformed stream record",
			slog.String("record_id", rec.EventID),
			slog.String("event_name", rec.EventName),
		)
		return Outcome{RecordID: rec.EventID, Status: StatusSkipped, Elapsed: h.now().Sub(started)}
	}

	lag := h.monitor.Lag(m.ApproxCreation)
	h.monitor.ObserveLag(ctx, rec.EventID, lag)

	outcome := Outcome{RecordID: rec.EventID, Type: m.Type, Lag: lag}

	if m.Image() == nil {
		log.WarnContext(ctx, "Skipping record with missing image",
			slog.String("record_id", rec.EventID),
			slog.String("event_type", m.Type.String()),
			slog.String("partition_key", m.PartitionKey),
		)
		outcome.Status = StatusSkipped
		outcome.Elapsed = h.now().Sub(started)
		return outcome
	}

	var err error
	switch m.Type {
	case artist.EventInsert, artist.EventModify:
		doc, projected := artist.Transform(m, h.now())
		if !projected {
			outcome.Status = StatusSkipped
			outcome.Elapsed = h.now().Sub(started)
			log.DebugContext(ctx, "Filtered non-metadata record",
				slog.String("record_id", rec.EventID),
				slog.String("partition_key", m.PartitionKey),
				slog.String("sort_key", m.SortKey),
			)
			return outcome
		}
		err = h.index.Upsert(ctx, doc.ID, doc)
	case artist.EventRemove:
		if !artist.IsMetadataKey(m.PartitionKey, m.SortKey) {
			outcome.Status = StatusSkipped
			outcome.Elapsed = h.now().Sub(started)
			log.DebugContext(ctx, "Filtered non-metadata record",
				slog.String("record_id", rec.EventID),
				slog.String("partition_key", m.PartitionKey),
				slog.String("sort_key", m.SortKey),
			)
			return outcome
		}
		err = h.index.Delete(ctx, artist.IDFromPartitionKey(m.PartitionKey))
	}

	outcome.Elapsed = h.now().Sub(started)
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Err = err
		log.ErrorContext(ctx, "Failed to process record",
			slog.String("record_id", rec.EventID),
			slog.String("event_type", m.Type.String()),
			slog.String("partition_key", m.PartitionKey),
			slog.String("error", err.Error()),
		)
		return outcome
	}

	outcome.Status = StatusSucceeded
	return outcome
}

// summarize aggregates the batch's outcomes.
func summarize(outcomes []Outcome, duration time.Duration) monitor.BatchSummary {
	summary := monitor.BatchSummary{Records: len(outcomes), Duration: duration}

	var lagSum time.Duration
	var lagCount int
	for _, o := range outcomes {
		switch o.Status {
		case StatusSucceeded:
			summary.Succeeded++
		case StatusFailed:
			summary.Failed++
		case StatusSkipped:
			summary.Skipped++
		}
		if o.Lag > 0 {
			lagSum += o.Lag
			lagCount++
		}
	}
	if lagCount > 0 {
		summary.AverageLag = lagSum / time.Duration(lagCount)
	}
	return summary
}

func main() {
	ctx := context.Background()

	result, err := awsinit.Init(ctx)
	if err != nil {
		logger.Error("FATAL: Failed to initialize", slog.String("error", err.Error()))
		panic(err)
	}

	endpoint := os.Getenv("OPENSEARCH_ENDPOINT")
	if endpoint == "" {
		logger.Error("FATAL: OPENSEARCH_ENDPOINT is not set")
		panic("OPENSEARCH_ENDPOINT is not set")
	}

	index := os.Getenv("OPENSEARCH_INDEX")
	if index == "" {
		index = "artists"
	}

	local := os.Getenv("OPENSEARCH_LOCAL") == "true"

	var creds searchindex.CredentialsProvider
	if local {
		// The local cluster runs with the stock development login.
		creds = secrets.NewStaticProvider("admin", "admin")
	} else {
		secretARN := os.Getenv("OPENSEARCH_SECRET_ARN")
		if secretARN == "" {
			logger.Error("FATAL: OPENSEARCH_SECRET_ARN is not set")
			panic("OPENSEARCH_SECRET_ARN is not set")
		}
		creds = secrets.NewProvider(secretsmanager.NewFromConfig(result.Config), secretARN)
	}

	refresh := searchindex.RefreshWaitFor
	if os.Getenv("OPENSEARCH_REFRESH") == "none" {
		refresh = searchindex.RefreshNone
	}

	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	client := searchindex.NewClient(endpoint, index, httpClient, creds, refresh)

	var sink metrics.Sink = metrics.LogSink{}
	if !local {
		namespace := os.Getenv("METRICS_NAMESPACE")
		if namespace == "" {
			namespace = "SearchSync"
		}
		sink = metrics.NewCloudWatchSink(cloudwatch.NewFromConfig(result.Config), namespace)
	}

	h := newHandler(client, monitor.New(sink))
	result.Start(h.handle)
}
