// Package metrics emits operational data points to a metrics sink.
package metrics

import (
	"context"
	"log/slog"
	"sort"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/inkdex/search-sync/internal/logging"
)

var logger = logging.New()

// Datum is one named numeric data point.
type Datum struct {
	Name       string
	Value      float64
	Unit       types.StandardUnit
	Dimensions map[string]string
}

// Sink accepts data points. Emission is fire-and-forget: implementations log
// and swallow failures rather than surfacing them to callers.
type Sink interface {
	Emit(ctx context.Context, data ...Datum)
}

// CloudWatchAPI abstracts CloudWatch operations for dependency inversion.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchSink emits data points to a CloudWatch namespace.
type CloudWatchSink struct {
	client    CloudWatchAPI
	namespace string
}

// NewCloudWatchSink creates a CloudWatchSink.
func NewCloudWatchSink(client CloudWatchAPI, namespace string) *CloudWatchSink {
	return &CloudWatchSink{client: client, namespace: namespace}
}

// Emit publishes the data points. Failures are logged as warnings and never
// propagated; a lost metric must not affect record processing.
func (s *CloudWatchSink) Emit(ctx context.Context, data ...Datum) {
	if len(data) == 0 {
		return
	}

	metricData := make([]types.MetricDatum, 0, len(data))
	for _, d := range data {
		d := d
		datum := types.MetricDatum{
			MetricName: &d.Name,
			Value:      &d.Value,
			Unit:       d.Unit,
			Dimensions: dimensionList(d.Dimensions),
		}
		metricData = append(metricData, datum)
	}

	_, err := s.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  &s.namespace,
		MetricData: metricData,
	})
	if err != nil {
		logger.WarnContext(ctx, "Failed to emit metrics",
			slog.String("namespace", s.namespace),
			slog.Int("data_points", len(data)),
			slog.String("error", err.Error()),
		)
	}
}

// dimensionList converts a dimension map to the API shape in a stable order.
func dimensionList(dims map[string]string) []types.Dimension {
	if len(dims) == 0 {
		return nil
	}
	names := make([]string, 0, len(dims))
	for name := range dims {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]types.Dimension, 0, len(names))
	for _, name := range names {
		value := dims[name]
		n := name
		out = append(out, types.Dimension{Name: &n, Value: &value})
	}
	return out
}

// LogSink writes data points to the log. Used for the local cluster, where
// there is no CloudWatch.
type LogSink struct{}

// Emit logs the data points.
func (LogSink) Emit(ctx context.Context, data ...Datum) {
	for _, d := range data {
		logger.InfoContext(ctx, "Metric",
			slog.String("name", d.Name),
			slog.Float64("value", d.Value),
			slog.String("unit", string(d.Unit)),
		)
	}
}
