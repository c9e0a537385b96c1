package claude

import (
	"context"
	"errors"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/linnemanlabs/fbtriage/internal/triage"
)

type fakeMessages struct {
	got anthropic.MessageNewParams
	msg *anthropic.Message
	err error
}

func (f *fakeMessages) New(_ context.Context, body anthropic.MessageNewParams, _ ...option.RequestOption) (*anthropic.Message, error) {
	f.got = body
	return f.msg, f.err
}

func textMessage(text string, in, out int64) *anthropic.Message {
	return &anthropic.Message{
		Model:   anthropic.Model("claude-test"),
		Content: []anthropic.ContentBlockUnion{{Type: "text", Text: text}},
		Usage:   anthropic.Usage{InputTokens: in, OutputTokens: out},
	}
}

func TestNew_RequiresCredentials(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, key, model string
	}{
		{"no key", "", "claude-sonnet-4-20250514"},
		{"no model", "sk-test", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, err := New(tt.key, tt.model)
			if !errors.Is(err, triage.ErrNotConnected) {
				t.Fatalf("error = %v, want ErrNotConnected", err)
			}
			if c != nil {
				t.Error("expected nil client")
			}
		})
	}
}

func TestNew_Configured(t *testing.T) {
	t.Parallel()

	c, err := New("sk-test", "claude-sonnet-4-20250514")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.Name() != "claude" {
		t.Errorf("Name = %q, want claude", c.Name())
	}
	if c.Model() != "claude-sonnet-4-20250514" {
		t.Errorf("Model = %q", c.Model())
	}
}

func TestComplete_JSONPrefill(t *testing.T) {
	t.Parallel()

	fake := &fakeMessages{msg: textMessage(`"Category":"Praise","Urgency":"Low","Suggested Action":"Ignore","Reasoning":"nice"}`, 120, 30)}
	c := &Client{messages: fake, model: "claude-test"}

	resp, err := c.Complete(context.Background(), &triage.CompletionRequest{
		System:    "sys",
		User:      "Feedback: love it",
		MaxTokens: 256,
		JSON:      true,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	want := `{"Category":"Praise","Urgency":"Low","Suggested Action":"Ignore","Reasoning":"nice"}`
	if resp.Content != want {
		t.Errorf("content = %q, want %q", resp.Content, want)
	}
	if resp.Usage.Total() != 150 {
		t.Errorf("total tokens = %d, want 150", resp.Usage.Total())
	}
	if resp.Model != "claude-test" {
		t.Errorf("model = %q, want claude-test", resp.Model)
	}

	p := fake.got
	if string(p.Model) != "claude-test" {
		t.Errorf("request model = %q", p.Model)
	}
	if p.MaxTokens != 256 {
		t.Errorf("max tokens = %d, want 256", p.MaxTokens)
	}
	if !p.Temperature.Valid() || p.Temperature.Value != 0 {
		t.Errorf("temperature = %v, want explicit 0", p.Temperature)
	}
	if len(p.System) != 1 || p.System[0].Text != "sys" {
		t.Errorf("system = %+v, want single block %q", p.System, "sys")
	}
	if len(p.Messages) != 2 {
		t.Fatalf("messages = %d, want user + assistant prefill", len(p.Messages))
	}
	if p.Messages[0].Role != "user" || p.Messages[0].Content[0].OfText == nil || p.Messages[0].Content[0].OfText.Text != "Feedback: love it" {
		t.Errorf("user message = %+v", p.Messages[0])
	}
	if p.Messages[1].Role != "assistant" || p.Messages[1].Content[0].OfText == nil || p.Messages[1].Content[0].OfText.Text != "{" {
		t.Errorf("prefill message = %+v", p.Messages[1])
	}
}

func TestComplete_PlainText(t *testing.T) {
	t.Parallel()

	fake := &fakeMessages{msg: textMessage("hello", 1, 1)}
	c := &Client{messages: fake, model: "m"}

	resp, err := c.Complete(context.Background(), &triage.CompletionRequest{User: "hi"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("content = %q, want hello", resp.Content)
	}
	if len(fake.got.Messages) != 1 {
		t.Errorf("messages = %d, want 1 without JSON mode", len(fake.got.Messages))
	}
	if len(fake.got.System) != 0 {
		t.Errorf("system = %+v, want none", fake.got.System)
	}
	if fake.got.MaxTokens != defaultMaxTokens {
		t.Errorf("max tokens = %d, want default %d", fake.got.MaxTokens, defaultMaxTokens)
	}
}

func TestComplete_APIError(t *testing.T) {
	t.Parallel()

	cause := errors.New("529 overloaded")
	c := &Client{messages: &fakeMessages{err: cause}, model: "m"}

	_, err := c.Complete(context.Background(), &triage.CompletionRequest{User: "x", JSON: true})
	if !errors.Is(err, cause) {
		t.Errorf("error = %v, want wrapped cause", err)
	}
}

func TestComplete_EmptyReply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  *anthropic.Message
		json bool
	}{
		{"no content", &anthropic.Message{}, false},
		{"only prefill", &anthropic.Message{}, true},
		{"non text block", &anthropic.Message{Content: []anthropic.ContentBlockUnion{{Type: "thinking"}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := &Client{messages: &fakeMessages{msg: tt.msg}, model: "m"}
			if _, err := c.Complete(context.Background(), &triage.CompletionRequest{User: "x", JSON: tt.json}); err == nil {
				t.Error("expected error for empty reply")
			}
		})
	}
}

func TestFromSDKResponse_ConcatenatesText(t *testing.T) {
	t.Parallel()

	msg := &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{
			{Type: "text", Text: `"a":`},
			{Type: "thinking"},
			{Type: "text", Text: `"b"}`},
		},
		Usage: anthropic.Usage{InputTokens: 1234, OutputTokens: 567},
	}

	resp := fromSDKResponse(msg, true)
	if resp.Content != `{"a":"b"}` {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Usage.InputTokens != 1234 || resp.Usage.OutputTokens != 567 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestClient_ImplementsProvider(t *testing.T) {
	t.Parallel()

	var _ triage.Provider = (*Client)(nil)
}
