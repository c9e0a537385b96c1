package triage

import "strings"

// BaselineReasoning is the fixed reasoning attached to every baseline decision.
const BaselineReasoning = "Baseline logic using keyword rules."

var (
	complaintKeywords = []string{"crash", "error", "bug", "broken", "slow"}
	featureKeywords   = []string{"add", "feature", "improve"}
	praiseKeywords    = []string{"love", "great", "good", "awesome"}
	urgentKeywords    = []string{"immediately", "urgent", "crash"}
)

// Baseline is the deterministic keyword-rule classifier. It does no I/O and
// the zero value is ready to use.
type Baseline struct{}

// Classify maps text to a decision. Matching is substring based on the
// lower-cased text and the first matching rule wins at every stage.
// Anything that is not a complaint, feature request or praise is a Question,
// with or without a question mark.
func (Baseline) Classify(text string) Decision {
	lower := strings.ToLower(text)

	var category string
	switch {
	case containsAny(lower, complaintKeywords):
		category = CategoryComplaint
	case containsAny(lower, featureKeywords):
		category = CategoryFeatureRequest
	case containsAny(lower, praiseKeywords):
		category = CategoryPraise
	default:
		category = CategoryQuestion
	}

	var urgency string
	switch {
	case containsAny(lower, urgentKeywords):
		urgency = UrgencyHigh
	case category == CategoryPraise:
		urgency = UrgencyLow
	default:
		urgency = UrgencyMedium
	}

	var action string
	switch {
	case urgency == UrgencyHigh:
		action = ActionEscalate
	case category == CategoryFeatureRequest:
		action = ActionForward
	case category == CategoryPraise:
		action = ActionIgnore
	default:
		action = ActionRespond
	}

	return Decision{
		Category:        category,
		Urgency:         urgency,
		SuggestedAction: action,
		Reasoning:       BaselineReasoning,
		Meta:            Meta{CostUSD: 0},
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
