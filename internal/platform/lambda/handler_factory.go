package lambda

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/aws/aws-lambda-go/events"
	"github.com/awslabs/aws-lambda-go-api-proxy/echo"
	"github.com/labstack/echo/v4"
	"planning-tracker/internal/ports"
)

type LambdaHandler func(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error)

// NewLambdaHandler serves API Gateway v2 HTTP events through the echo router.
// Proxy failures are logged and answered with a 500 body in the API's error shape.
func NewLambdaHandler(e *echo.Echo, logger ports.Logger) LambdaHandler {
	adapter := echoadapter.NewV2(e)
	var warm atomic.Bool
	return func(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		if !warm.Swap(true) {
			logger.Info(ctx, "cold start", "route_key", req.RouteKey)
		}
		resp, err := adapter.ProxyWithContext(ctx, req)
		if err != nil {
			logger.Error(ctx, "lambda proxy failed", "request_id", req.RequestContext.RequestID, "error", err)
			return events.APIGatewayV2HTTPResponse{
				StatusCode: http.StatusInternalServerError,
				Headers:    map[string]string{echo.HeaderContentType: echo.MIMEApplicationJSON},
				Body:       `{"error":"internal error"}`,
			}, nil
		}
		return resp, nil
	}
}
