// Package azure implements triage.Provider on Azure OpenAI chat completions.
package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/fbtriage/internal/triage"
)

const (
	httpTimeout  = 120 * time.Second
	maxErrorBody = 512
	maxBody      = 4 << 20
)

// Config identifies an Azure OpenAI chat deployment. All fields are required.
type Config struct {
	Endpoint   string
	APIKey     string
	Deployment string
	APIVersion string
}

// Client implements the Provider interface for Azure OpenAI.
type Client struct {
	url        string
	apiKey     string
	deployment string
	httpClient *http.Client
}

// New creates a client for cfg. Missing fields yield triage.ErrNotConnected.
// A nil httpClient gets an instrumented client with a 120s timeout.
func New(cfg Config, httpClient *http.Client) (*Client, error) {
	var missing []string
	for _, f := range []struct{ name, v string }{
		{"endpoint", cfg.Endpoint},
		{"api key", cfg.APIKey},
		{"deployment", cfg.Deployment},
		{"api version", cfg.APIVersion},
	} {
		if strings.TrimSpace(f.v) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("azure: %w: missing %s", triage.ErrNotConnected, strings.Join(missing, ", "))
	}

	base, err := url.Parse(strings.TrimRight(cfg.Endpoint, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("azure: %w: invalid endpoint %q", triage.ErrNotConnected, cfg.Endpoint)
	}
	base = base.JoinPath("openai", "deployments", cfg.Deployment, "chat", "completions")
	base.RawQuery = url.Values{"api-version": {cfg.APIVersion}}.Encode()

	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   httpTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Client{
		url:        base.String(),
		apiKey:     cfg.APIKey,
		deployment: cfg.Deployment,
		httpClient: httpClient,
	}, nil
}

// Name returns the provider name.
func (c *Client) Name() string { return "azure" }

// Model returns the deployment name; Azure routes by deployment, not model.
func (c *Client) Model() string { return c.deployment }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Complete sends a single system+user exchange.
func (c *Client) Complete(ctx context.Context, req *triage.CompletionRequest) (*triage.CompletionResponse, error) {
	body := chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("azure: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("azure: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq) //nolint:gosec // G704: url is built from trusted config
	if err != nil {
		return nil, fmt.Errorf("azure: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, statusError(resp.StatusCode, respBody)
	}

	var out chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&out); err != nil {
		return nil, fmt.Errorf("azure: decode response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("azure: api error %s: %s", out.Error.Code, out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return nil, errors.New("azure: no choices in response")
	}

	result := &triage.CompletionResponse{
		Content: out.Choices[0].Message.Content,
		Model:   out.Model,
	}
	if out.Usage != nil {
		result.Usage = triage.Usage{
			InputTokens:  out.Usage.PromptTokens,
			OutputTokens: out.Usage.CompletionTokens,
			TotalTokens:  out.Usage.TotalTokens,
		}
	}
	return result, nil
}

func statusError(code int, body []byte) error {
	var env struct {
		Error *apiError `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil && env.Error != nil && env.Error.Message != "" {
		return fmt.Errorf("azure: api error %d: %s", code, env.Error.Message)
	}
	return fmt.Errorf("azure: api error %d: %s", code, strings.TrimSpace(string(body)))
}
