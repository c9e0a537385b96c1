package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultRemoteTimeout bounds a single remote classification.
	DefaultRemoteTimeout = 30 * time.Second

	// remoteMaxTokens is the reply budget; a decision is a few dozen tokens.
	remoteMaxTokens = 512
)

// SystemPrompt is the fixed instruction sent with every remote classification.
const SystemPrompt = `You are an expert Customer Feedback Triage System.

Classify customer feedback into:
- Category: Complaint, Feature Request, Praise, Question
- Urgency: High, Medium, Low
- Suggested Action: Escalate, Respond, Forward, Ignore

Respond ONLY in valid JSON format:
{
  "Category": "string",
  "Urgency": "string",
  "Suggested Action": "string",
  "Reasoning": "string"
}`

// decisionFields are the reply keys every remote decision must carry.
var decisionFields = []string{"Category", "Urgency", "Suggested Action", "Reasoning"}

// Remote classifies feedback through an LLM Provider. It holds no mutable
// state and is safe for concurrent use.
type Remote struct {
	provider Provider
	timeout  time.Duration
}

// NewRemote wraps provider. A non-positive timeout selects DefaultRemoteTimeout.
func NewRemote(provider Provider, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	return &Remote{provider: provider, timeout: timeout}
}

// Provider returns the backend name, e.g. "azure" or "claude".
func (r *Remote) Provider() string { return r.provider.Name() }

// Model returns the model or deployment the backend sends requests to.
func (r *Remote) Model() string { return r.provider.Model() }

// Classify sends one request for text and validates the reply into a Decision.
// Every failure, including a timeout, is a *RemoteClassificationError.
func (r *Remote) Classify(ctx context.Context, text string) (Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "llm.complete",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("gen_ai.operation.name", "chat"),
			attribute.String("gen_ai.system", r.provider.Name()),
			attribute.String("gen_ai.request.model", r.provider.Model()),
			attribute.Float64("gen_ai.request.temperature", 0),
		),
	)
	defer span.End()

	resp, err := r.provider.Complete(ctx, &CompletionRequest{
		System:      SystemPrompt,
		User:        "Feedback: " + text,
		Temperature: 0,
		MaxTokens:   remoteMaxTokens,
		JSON:        true,
	})
	if err != nil {
		reason := "llm call failed"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = fmt.Sprintf("llm call timed out after %s", r.timeout)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		return Decision{}, &RemoteClassificationError{Reason: reason, Err: err}
	}

	tokens := resp.Usage.Total()
	span.SetAttributes(
		attribute.Int("gen_ai.usage.total_tokens", tokens),
		attribute.String("gen_ai.response.model", resp.Model),
	)

	d, err := parseDecision(resp.Content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid reply")
		return Decision{}, &RemoteClassificationError{Reason: "invalid reply", Err: err}
	}
	d.Meta = Meta{Tokens: &tokens, CostUSD: 0}
	return d, nil
}

// parseDecision decodes a reply into the four primary fields. Each key must
// be present and hold a non-empty JSON string; values are kept verbatim.
func parseDecision(content string) (Decision, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return Decision{}, fmt.Errorf("reply is not a JSON object: %w", err)
	}

	vals := make(map[string]string, len(decisionFields))
	for _, key := range decisionFields {
		v, ok := raw[key]
		if !ok {
			return Decision{}, fmt.Errorf("reply missing field %q", key)
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return Decision{}, fmt.Errorf("reply field %q is not a string", key)
		}
		if s == "" {
			return Decision{}, fmt.Errorf("reply field %q is empty", key)
		}
		vals[key] = s
	}

	return Decision{
		Category:        vals["Category"],
		Urgency:         vals["Urgency"],
		SuggestedAction: vals["Suggested Action"],
		Reasoning:       vals["Reasoning"],
	}, nil
}
