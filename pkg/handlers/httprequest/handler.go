// Package httprequest implements the HTTP call step used for gateway REST
// endpoints and webhook-style notifications.
package httprequest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gridpilot/gridpilot/pkg/models"
	"github.com/gridpilot/gridpilot/pkg/protocol"
)

func NewFactory() *Factory {
	return &Factory{}
}

type Factory struct{}

func (*Factory) ID() string {
	return "http_request"
}

func (*Factory) Component() *models.RegisteredComponent {
	return &models.RegisteredComponent{
		Type:            "http_request",
		Name:            "HTTP request",
		Description:     "Performs an HTTP request and returns status, headers and body",
		Domain:          models.DomainGateway,
		TimeoutCategory: models.TimeoutCategoryStandard,
		Schema: &models.JSONSchema{
			Type: "object",
			Properties: map[string]*models.Property{
				"url": {
					Type:        "string",
					Description: "Target URL",
				},
				"method": {
					Type:        "string",
					Description: "HTTP method",
					Enum:        []any{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD"},
					Default:     "GET",
				},
				"headers": {
					Type:        "object",
					Description: "Request headers",
				},
				"body": {
					Type:        "string",
					Description: "Request body",
				},
			},
			Required: []string{"url"},
		},
	}
}

func (f *Factory) Create(config map[string]any) (protocol.StepHandler, error) {
	return &Handler{}, nil
}

type Handler struct{}

func (h *Handler) Execute(ctx context.Context, params map[string]any, run protocol.RunContext, logger *slog.Logger) (map[string]any, error) {
	url, ok := params["url"].(string)
	if !ok || url == "" {
		return nil, protocol.NewStepExecutionError("http_request", "'url' is required", nil)
	}

	method, _ := params["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if raw, ok := params["body"].(string); ok && raw != "" {
		body = strings.NewReader(raw)
	}

	// The resolved timeout bounds the whole request; the engine never kills
	// an overrunning handler.
	requestCtx, cancel := context.WithTimeout(ctx, run.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, method, url, body)
	if err != nil {
		return nil, protocol.NewStepExecutionError("http_request", "building request failed", err)
	}

	if headers, ok := params["headers"].(map[string]any); ok {
		for name, value := range headers {
			req.Header.Set(name, fmt.Sprintf("%v", value))
		}
	}

	logger.InfoContext(ctx, "Performing HTTP request", "method", method, "url", url)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, protocol.NewStepExecutionError("http_request", "request failed", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, protocol.NewStepExecutionError("http_request", "reading response failed", err)
	}

	responseHeaders := make(map[string]any, len(resp.Header))
	for name := range resp.Header {
		responseHeaders[name] = resp.Header.Get(name)
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"headers":     responseHeaders,
		"body":        string(responseBody),
	}, nil
}
