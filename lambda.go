package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	"github.com/johnwmail/clipsync/internal/sweeper"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
)

// lambdaApp dispatches API Gateway requests to the router and scheduled events to the
// backend sweep
type lambdaApp struct {
	v1      *ginadapter.GinLambda
	v2      *ginadapter.GinLambdaV2
	sweeper *sweeper.Backend
	logger  *slog.Logger
}

// eventProbe holds the fields that tell the supported event shapes apart
type eventProbe struct {
	Source         string `json:"source"`
	DetailType     string `json:"detail-type"`
	HTTPMethod     string `json:"httpMethod"`
	RequestContext struct {
		HTTP struct {
			Method string `json:"method"`
		} `json:"http"`
	} `json:"requestContext"`
}

// sweepResult is the response to a scheduled event
type sweepResult struct {
	Partitions int    `json:"partitions"`
	Deleted    int    `json:"deleted"`
	Failed     int    `json:"failed"`
	Error      string `json:"error,omitempty"`
}

func (a *lambdaApp) handle(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var probe eventProbe
	if err := json.Unmarshal(raw, &probe); err != nil {
		a.logger.Error("Failed to parse event", "error", err)
		return nil, fmt.Errorf("parse event: %w", err)
	}

	switch {
	case probe.Source == "aws.events":
		a.logger.Info("Handling scheduled event", "detail_type", probe.DetailType)
		return a.sweep(ctx), nil

	case probe.RequestContext.HTTP.Method != "":
		var req events.APIGatewayV2HTTPRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("parse APIGatewayV2HTTPRequest: %w", err)
		}
		a.logger.Debug("Handling APIGatewayV2HTTPRequest", "method", req.RequestContext.HTTP.Method, "path", req.RawPath)
		return a.v2.ProxyWithContext(ctx, req)

	case probe.HTTPMethod != "":
		var req events.APIGatewayProxyRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("parse APIGatewayProxyRequest: %w", err)
		}
		a.logger.Debug("Handling APIGatewayProxyRequest", "method", req.HTTPMethod, "path", req.Path)
		return a.v1.ProxyWithContext(ctx, req)
	}

	a.logger.Warn("Unsupported event", "event", string(raw))
	return events.APIGatewayV2HTTPResponse{
		StatusCode: 500,
		Body:       "Unsupported event type - this function expects API Gateway, Lambda Function URL or scheduled events",
		Headers: map[string]string{
			"Content-Type": "text/plain",
		},
	}, fmt.Errorf("unsupported event")
}

// sweep runs one backend sweep. Partition failures are reported in the result, never as an
// invocation error.
func (a *lambdaApp) sweep(ctx context.Context) sweepResult {
	sum := a.sweeper.RunOnce(ctx)
	res := sweepResult{Partitions: sum.Partitions, Deleted: sum.Deleted, Failed: sum.Failed}
	if sum.Err != nil {
		res.Error = sum.Err.Error()
	}
	return res
}
