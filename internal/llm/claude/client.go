// Package claude implements triage.Provider on the Anthropic Messages API.
package claude

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/fbtriage/internal/triage"
)

// defaultMaxTokens applies when a request leaves MaxTokens unset; the API requires one.
const defaultMaxTokens = 1024

// jsonPrefill opens the assistant turn so the model continues a JSON object.
const jsonPrefill = "{"

// messagesAPI is the subset of the SDK used here, so tests can fake it.
type messagesAPI interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Client implements the Provider interface for the Claude API.
type Client struct {
	messages messagesAPI
	model    string
}

// New creates a Claude client. An empty API key yields triage.ErrNotConnected.
func New(apiKey, model string, opts ...option.RequestOption) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("claude: %w: api key is empty", triage.ErrNotConnected)
	}
	if model == "" {
		return nil, fmt.Errorf("claude: %w: model is empty", triage.ErrNotConnected)
	}
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}),
	}
	client := anthropic.NewClient(append(base, opts...)...)
	return &Client{messages: &client.Messages, model: model}, nil
}

// Name returns the provider name.
func (c *Client) Name() string { return "claude" }

// Model returns the model requests are sent to.
func (c *Client) Model() string { return c.model }

// Complete sends a single system+user exchange.
func (c *Client) Complete(ctx context.Context, req *triage.CompletionRequest) (*triage.CompletionResponse, error) {
	msg, err := c.messages.New(ctx, c.toSDKParams(req))
	if err != nil {
		return nil, fmt.Errorf("claude: messages: %w", err)
	}
	resp := fromSDKResponse(msg, req.JSON)
	if strings.TrimSpace(resp.Content) == "" || (req.JSON && resp.Content == jsonPrefill) {
		return nil, errors.New("claude: empty reply")
	}
	return resp, nil
}

func (c *Client) toSDKParams(req *triage.CompletionRequest) anthropic.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
	}
	// the Messages API has no JSON mode; prefilling the reply is the documented equivalent
	if req.JSON {
		messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(jsonPrefill)))
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(req.Temperature),
		Messages:    messages,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	return params
}

func fromSDKResponse(msg *anthropic.Message, prefilled bool) *triage.CompletionResponse {
	var sb strings.Builder
	if prefilled {
		sb.WriteString(jsonPrefill)
	}
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return &triage.CompletionResponse{
		Content: sb.String(),
		Model:   string(msg.Model),
		Usage: triage.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
}
