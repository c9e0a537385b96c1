package triage

import (
	"errors"
	"fmt"
)

// ErrNotConnected reports that the remote classifier has no usable
// credentials. Baseline classification keeps working.
var ErrNotConnected = errors.New("remote classifier not connected")

// ErrEmptyBatch is returned when a batch is submitted without items.
var ErrEmptyBatch = errors.New("batch has no feedback items")

// RemoteClassificationError is returned when the LLM call fails, times out,
// or replies with something that is not a complete decision.
type RemoteClassificationError struct {
	Item   int // 1-based item ID, 0 when not yet attributed
	Reason string
	Err    error
}

func (e *RemoteClassificationError) Error() string {
	msg := "remote classification failed"
	if e.Item > 0 {
		msg = fmt.Sprintf("%s for item %d", msg, e.Item)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RemoteClassificationError) Unwrap() error { return e.Err }

// InputParseError is returned when an uploaded file cannot be turned into
// feedback items. The batch does not start.
type InputParseError struct {
	Name string
	Err  error
}

func (e *InputParseError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("parse input: %v", e.Err)
	}
	return fmt.Sprintf("parse input %q: %v", e.Name, e.Err)
}

func (e *InputParseError) Unwrap() error { return e.Err }
