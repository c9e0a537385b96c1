package triage

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category values a classifier is expected to emit. Values outside this set
// are passed through verbatim.
const (
	CategoryComplaint      = "Complaint"
	CategoryFeatureRequest = "Feature Request"
	CategoryPraise         = "Praise"
	CategoryQuestion       = "Question"
)

// Urgency values.
const (
	UrgencyHigh   = "High"
	UrgencyMedium = "Medium"
	UrgencyLow    = "Low"
)

// Suggested action values.
const (
	ActionEscalate = "Escalate"
	ActionRespond  = "Respond"
	ActionForward  = "Forward"
	ActionIgnore   = "Ignore"
)

// Status tracks where a batch is in its lifecycle.
type Status string

const (
	// StatusPending means created, not yet started
	StatusPending Status = "pending"

	// StatusInProgress means items are being classified
	StatusInProgress Status = "in_progress"

	// StatusComplete means every item has a record
	StatusComplete Status = "complete"

	// StatusFailed means the batch was aborted
	StatusFailed Status = "failed"
)

// FeedbackItem is one unit of uploaded feedback. ID is 1-based within its batch.
type FeedbackItem struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// NewItems numbers texts in order, starting at 1.
func NewItems(texts []string) []FeedbackItem {
	items := make([]FeedbackItem, len(texts))
	for i, t := range texts {
		items[i] = FeedbackItem{ID: i + 1, Text: t}
	}
	return items
}

// Meta is classifier-specific diagnostic info attached to a Decision.
// CostUSD is a placeholder for billing and is currently always 0.
type Meta struct {
	Tokens  *int    `json:"tokens,omitempty"`
	CostUSD float64 `json:"cost_usd"`
}

// Decision is the normalized output of any classifier.
type Decision struct {
	Category        string `json:"Category"`
	Urgency         string `json:"Urgency"`
	SuggestedAction string `json:"Suggested Action"`
	Reasoning       string `json:"Reasoning"`
	Meta            Meta   `json:"meta"`
}

// Comparison holds field-level agreement between the AI and baseline decisions.
type Comparison struct {
	CategoryMatch bool `json:"category_match"`
	UrgencyMatch  bool `json:"urgency_match"`
	ActionMatch   bool `json:"action_match"`
}

// Compare reports exact, case-sensitive equality per field. A nil AI decision
// matches nothing.
func Compare(ai *Decision, baseline Decision) Comparison {
	if ai == nil {
		return Comparison{}
	}
	return Comparison{
		CategoryMatch: ai.Category == baseline.Category,
		UrgencyMatch:  ai.Urgency == baseline.Urgency,
		ActionMatch:   ai.SuggestedAction == baseline.SuggestedAction,
	}
}

// Record is the unit of output: one feedback item, both decisions, and their agreement.
// AIDecision is nil when the remote classifier is not connected. Error is set
// when the remote classification for this item failed.
type Record struct {
	ID               int        `json:"id"`
	Feedback         string     `json:"feedback"`
	AIDecision       *Decision  `json:"ai_decision"`
	BaselineDecision Decision   `json:"baseline_decision"`
	Comparison       Comparison `json:"comparison"`
	Error            string     `json:"error,omitempty"`
}

// Batch is one complete run over an uploaded set of feedback items.
type Batch struct {
	ID          string    `json:"batch_id"`
	Source      string    `json:"source,omitempty"`
	Status      Status    `json:"status"`
	Remote      bool      `json:"remote_connected"`
	Total       int       `json:"total"`
	Done        int       `json:"done"`
	Records     []Record  `json:"records"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
	Duration    float64   `json:"duration_seconds,omitempty"`
}

// NewBatchID returns a fresh 8-character uppercase hex token. It labels a
// run and carries no other meaning.
func NewBatchID() string {
	u := uuid.New()
	return strings.ToUpper(strings.ReplaceAll(u.String(), "-", "")[:8])
}
