// Package slack posts batch triage summaries to Slack via incoming webhooks.
package slack

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	goslack "github.com/slack-go/slack"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/fbtriage/internal/triage"
)

const (
	maxSectionLen   = 3000
	maxHeaderLen    = 150
	maxFeedbackLen  = 80
	maxDisagreement = 10
	httpTimeout     = 10 * time.Second
)

// Notifier sends batch summaries to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
}

// New creates a new Slack notifier. If webhookURL is empty, Send is a no-op.
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
	}
}

// Send posts a batch summary to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Send(ctx context.Context, b *triage.Batch) error {
	if n.webhookURL == "" {
		return nil
	}

	msg := buildMessage(b)

	//nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err := goslack.PostWebhookCustomHTTPContext(ctx, n.webhookURL, n.client, msg); err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	n.logger.Info(ctx, "slack notification sent", "batch_id", b.ID, "status", b.Status)
	return nil
}

func buildMessage(b *triage.Batch) *goslack.WebhookMessage {
	sum := triage.Summarize(b.Records)
	return &goslack.WebhookMessage{
		Text: fmt.Sprintf("Feedback triage %s: batch %s", b.Status, b.ID),
		Blocks: &goslack.Blocks{BlockSet: []goslack.Block{
			headerBlock(b, sum),
			goslack.NewDividerBlock(),
			fieldsBlock(b, sum),
			goslack.NewDividerBlock(),
			disagreementBlock(b),
			goslack.NewDividerBlock(),
			contextBlock(b),
		}},
	}
}

func headerBlock(b *triage.Batch, sum triage.Summary) goslack.Block {
	title := "Feedback Triage Complete"
	if b.Status == triage.StatusFailed {
		title = "Feedback Triage Failed"
	}
	text := fmt.Sprintf("%s %s: batch %s", statusEmoji(b.Status, sum), title, b.ID)
	return goslack.NewHeaderBlock(plain(truncate(text, maxHeaderLen)))
}

func fieldsBlock(b *triage.Batch, sum triage.Summary) goslack.Block {
	remote := "not connected"
	if b.Remote {
		remote = "connected"
	}
	fields := []*goslack.TextBlockObject{
		mrkdwn(fmt.Sprintf("*Status:* %s", b.Status)),
		mrkdwn(fmt.Sprintf("*Items:* %d/%d", b.Done, b.Total)),
		mrkdwn(fmt.Sprintf("*Remote:* %s", remote)),
		mrkdwn(fmt.Sprintf("*Remote failures:* %d", sum.RemoteFailures)),
		mrkdwn(fmt.Sprintf("*Category agreement:* %s", rate(sum.CategoryMatch, sum.Compared))),
		mrkdwn(fmt.Sprintf("*Urgency agreement:* %s", rate(sum.UrgencyMatch, sum.Compared))),
		mrkdwn(fmt.Sprintf("*Action agreement:* %s", rate(sum.ActionMatch, sum.Compared))),
		mrkdwn(fmt.Sprintf("*Tokens:* %d", sum.Tokens)),
		mrkdwn(fmt.Sprintf("*Duration:* %.1fs", b.Duration)),
	}
	return goslack.NewSectionBlock(nil, fields, nil)
}

// disagreementBlock lists the first items where the AI and baseline disagree
// on category, which is what an auditor usually looks at first.
func disagreementBlock(b *triage.Batch) goslack.Block {
	var lines []string
	var total int
	for i := range b.Records {
		r := &b.Records[i]
		if r.AIDecision == nil || r.Error != "" || r.Comparison.CategoryMatch {
			continue
		}
		total++
		if len(lines) < maxDisagreement {
			lines = append(lines, fmt.Sprintf("• #%d AI *%s* vs rules *%s*: %s",
				r.ID, r.AIDecision.Category, r.BaselineDecision.Category,
				truncate(oneLine(r.Feedback), maxFeedbackLen)))
		}
	}

	var text string
	switch {
	case b.Error != "":
		text = fmt.Sprintf("*Error*\n\n%s", b.Error)
	case total == 0:
		text = "*Category disagreements*\n\n_None._"
	default:
		text = fmt.Sprintf("*Category disagreements (%d)*\n\n%s", total, strings.Join(lines, "\n"))
		if total > len(lines) {
			text += fmt.Sprintf("\n_and %d more_", total-len(lines))
		}
	}
	return goslack.NewSectionBlock(mrkdwn(truncate(text, maxSectionLen)), nil, nil)
}

func contextBlock(b *triage.Batch) goslack.Block {
	ts := b.CompletedAt
	if ts.IsZero() {
		ts = b.CreatedAt
	}
	text := fmt.Sprintf("fbtriage • batch %s • %s", b.ID, ts.UTC().Format("2006-01-02 15:04 UTC"))
	if b.Source != "" {
		text += " • " + b.Source
	}
	return goslack.NewContextBlock("", mrkdwn(text))
}

func statusEmoji(status triage.Status, sum triage.Summary) string {
	switch {
	case status == triage.StatusFailed:
		return "\U0001f534" // red circle
	case sum.RemoteFailures > 0:
		return "\U0001f7e1" // yellow circle
	case sum.Compared > 0 && sum.CategoryRate < 0.5:
		return "\U0001f7e1"
	default:
		return "\U0001f7e2" // green circle
	}
}

func rate(match, compared int) string {
	if compared == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%d/%d (%.0f%%)", match, compared, 100*float64(match)/float64(compared))
}

func plain(s string) *goslack.TextBlockObject {
	return goslack.NewTextBlockObject(goslack.PlainTextType, s, false, false)
}

func mrkdwn(s string) *goslack.TextBlockObject {
	return goslack.NewTextBlockObject(goslack.MarkdownType, s, false, false)
}

var spaceRe = regexp.MustCompile(`\s+`)

func oneLine(s string) string {
	return spaceRe.ReplaceAllString(strings.TrimSpace(s), " ")
}

// truncate cuts s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
