package triage

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Row is the tabular projection of a Record used for display.
type Row struct {
	ID            int    `json:"id"`
	Feedback      string `json:"feedback"`
	AICategory    string `json:"ai_category"`
	RuleCategory  string `json:"rule_category"`
	CategoryMatch bool   `json:"category_match"`
	AIUrgency     string `json:"ai_urgency"`
	RuleUrgency   string `json:"rule_urgency"`
	AIAction      string `json:"ai_action"`
	RuleAction    string `json:"rule_action"`
	Error         string `json:"error,omitempty"`
}

// Rows projects records to one display row each, in record order.
func Rows(records []Record) []Row {
	rows := make([]Row, 0, len(records))
	for i := range records {
		r := &records[i]
		row := Row{
			ID:            r.ID,
			Feedback:      r.Feedback,
			RuleCategory:  r.BaselineDecision.Category,
			RuleUrgency:   r.BaselineDecision.Urgency,
			RuleAction:    r.BaselineDecision.SuggestedAction,
			CategoryMatch: r.Comparison.CategoryMatch,
			Error:         r.Error,
		}
		if r.AIDecision != nil {
			row.AICategory = r.AIDecision.Category
			row.AIUrgency = r.AIDecision.Urgency
			row.AIAction = r.AIDecision.SuggestedAction
		}
		rows = append(rows, row)
	}
	return rows
}

// Export serializes records as the archival JSON artifact: an array of
// records in input order, four-space indented. The output is a pure
// function of the records, so exporting twice yields identical bytes.
func Export(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportFileName is the artifact name for a batch.
func ExportFileName(batchID string) string {
	return "triage_output_" + batchID + ".json"
}

// Summary aggregates agreement across a batch.
type Summary struct {
	Records        int     `json:"records"`
	Compared       int     `json:"compared"`
	RemoteFailures int     `json:"remote_failures"`
	CategoryMatch  int     `json:"category_match"`
	UrgencyMatch   int     `json:"urgency_match"`
	ActionMatch    int     `json:"action_match"`
	CategoryRate   float64 `json:"category_agreement"`
	UrgencyRate    float64 `json:"urgency_agreement"`
	ActionRate     float64 `json:"action_agreement"`
	Tokens         int     `json:"tokens"`
}

// Summarize counts agreement over records that have a successful AI decision.
// Rates are 0 when nothing was compared.
func Summarize(records []Record) Summary {
	s := Summary{Records: len(records)}
	for i := range records {
		r := &records[i]
		if r.Error != "" {
			s.RemoteFailures++
			continue
		}
		if r.AIDecision == nil {
			continue
		}
		s.Compared++
		if r.AIDecision.Meta.Tokens != nil {
			s.Tokens += *r.AIDecision.Meta.Tokens
		}
		if r.Comparison.CategoryMatch {
			s.CategoryMatch++
		}
		if r.Comparison.UrgencyMatch {
			s.UrgencyMatch++
		}
		if r.Comparison.ActionMatch {
			s.ActionMatch++
		}
	}
	if s.Compared > 0 {
		n := float64(s.Compared)
		s.CategoryRate = float64(s.CategoryMatch) / n
		s.UrgencyRate = float64(s.UrgencyMatch) / n
		s.ActionRate = float64(s.ActionMatch) / n
	}
	return s
}
