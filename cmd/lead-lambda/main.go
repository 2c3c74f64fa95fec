package main

import (
	"context"
	"encoding/base64"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/caliudata/benchmark-platform/cmd/mainconfig"
	appconfig "github.com/caliudata/benchmark-platform/internal/config"
	"github.com/caliudata/benchmark-platform/internal/leads"
	"github.com/caliudata/benchmark-platform/internal/observability/metrics"
)

func main() {
	cfg := appconfig.Load()
	logger := mainconfig.NewLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	m := metrics.NewLeadMetrics(prometheus.NewRegistry())
	pipeline, err := mainconfig.NewPipeline(context.Background(), cfg, m, logger)
	if err != nil {
		logger.Error("failed to build lead pipeline", "error", err)
		os.Exit(1)
	}

	lambda.Start(func(ctx context.Context, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		return handle(ctx, pipeline.Handler, evt), nil
	})
}

func handle(ctx context.Context, h *leads.Handler, evt events.APIGatewayV2HTTPRequest) events.APIGatewayV2HTTPResponse {
	req := leads.Request{
		Method:   strings.ToUpper(strings.TrimSpace(evt.RequestContext.HTTP.Method)),
		Origin:   headerValue(evt.Headers, "origin"),
		RemoteIP: strings.TrimSpace(evt.RequestContext.HTTP.SourceIP),
	}

	body, err := decodeBody(evt)
	if err != nil {
		// Undecodable bodies go through validation as-is so the client gets
		// the same JSON error shape as any other malformed submission.
		body = []byte(evt.Body)
	}
	req.Body = body

	return toLambdaResponse(h.Handle(ctx, req))
}

func toLambdaResponse(resp leads.Response) events.APIGatewayV2HTTPResponse {
	out := events.APIGatewayV2HTTPResponse{
		StatusCode: resp.Status,
		Headers:    make(map[string]string, len(resp.Headers)),
		Body:       string(resp.Body),
	}
	for key, values := range resp.Headers {
		out.Headers[http.CanonicalHeaderKey(key)] = strings.Join(values, ", ")
	}
	return out
}

func decodeBody(evt events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if !evt.IsBase64Encoded {
		return []byte(evt.Body), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(evt.Body)
	if err != nil {
		return nil, err
	}
	return decoded, nil
}

func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
