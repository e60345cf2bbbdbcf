// Package awsinit performs one-shot process initialization for Lambda
// handlers: AWS SDK configuration, OpenTelemetry tracing, and the
// instrumented runtime start.
package awsinit

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-lambda-go/otellambda"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-lambda-go/otellambda/xrayconfig"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Result holds the initialized AWS configuration and tracer provider.
type Result struct {
	Config aws.Config

	tp *sdktrace.TracerProvider
}

// Init loads the AWS configuration, wires OTel middleware into every SDK
// client built from it, and sets up the X-Ray tracer provider.
func Init(ctx context.Context) (*Result, error) {
	tp, err := xrayconfig.NewTracerProvider(ctx)
	if err != nil {
		return nil, fmt.Errorf("create tracer provider: %w", err)
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	otelaws.AppendMiddlewares(&cfg.APIOptions)

	return &Result{Config: cfg, tp: tp}, nil
}

// Start runs the Lambda runtime with the handler wrapped in OTel
// instrumentation. It does not return.
func (r *Result) Start(handler any) {
	lambda.Start(otellambda.InstrumentHandler(handler, xrayconfig.WithRecommendedOptions(r.tp)...))
}
