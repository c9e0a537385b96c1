package cfg

import (
	"errors"
	"flag"
	"fmt"

	"github.com/linnemanlabs/fbtriage/internal/triage"
)

// Engine tunes how a batch is executed.
type Engine struct {
	Concurrency int
	FailFast    bool
}

// RegisterFlags binds Engine fields to the given FlagSet with defaults inline
func (e *Engine) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&e.Concurrency, "concurrency", triage.DefaultConcurrency,
		fmt.Sprintf("feedback items classified in parallel per batch (1..%d)", triage.MaxConcurrency))
	fs.BoolVar(&e.FailFast, "fail-fast", false, "abort a batch on the first remote classification failure")
}

// Validate checks field ranges.
func (e *Engine) Validate() error {
	var errs []error
	if e.Concurrency <= 0 || e.Concurrency > triage.MaxConcurrency {
		errs = append(errs, fmt.Errorf("invalid CONCURRENCY %d (must be 1..%d)", e.Concurrency, triage.MaxConcurrency))
	}
	return errors.Join(errs...)
}
