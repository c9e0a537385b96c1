package triage

import "context"

// Store holds batches for the lifetime of the process so clients can poll
// progress and fetch results.
type Store interface {
	Get(ctx context.Context, id string) (*Batch, bool, error)
	Put(ctx context.Context, batch *Batch) error
}
