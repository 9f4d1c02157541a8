// Package ledger tracks which prediction IDs have already received a vote
// from a given browser client. The ledger is persisted redundantly in two
// stores (the client's cookie and a server-side Redis hash) behind a single
// facade; reads see the union of every backend that has data, writes go to
// every backend on each addition. A vote that only landed server-side (the
// cookie cannot be restaged over an established socket) therefore still gates
// the next request, and the write-back re-syncs the stale cookie. Nothing is
// ever removed: there is no undo-vote.
package ledger

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Backend is one physical store for a client's voted-ID list.
type Backend interface {
	// Load returns the voted IDs for the client. ok is false when the
	// backend has no usable data for this client, in which case the caller
	// falls through to the next backend.
	Load(ctx context.Context, c *Client) (ids []string, ok bool)
	// Save replaces the client's voted-ID list.
	Save(ctx context.Context, c *Client, ids []string) error
	// Name identifies the backend in logs.
	Name() string
}

// Ledger reads through its backends on every call; no in-memory cache is
// kept, so a concurrent addition from another request is visible on the next
// read.
type Ledger struct {
	backends []Backend
}

// New creates a ledger over the given backends. Backend order decides which
// copy lists its entries first on a merged read.
func New(backends ...Backend) *Ledger {
	return &Ledger{backends: backends}
}

// HasVoted reports whether the client already voted on the prediction.
// Callers use it as a gating predicate in interactive flows, so a missing ID
// degrades to false with a warning instead of failing the flow.
func (l *Ledger) HasVoted(ctx context.Context, c *Client, id string) bool {
	if id == "" {
		log.Warn().Msg("ledger: HasVoted called with empty prediction id")
		return false
	}

	for _, voted := range l.read(ctx, c) {
		if voted == id {
			return true
		}
	}
	return false
}

// RecordVote appends the prediction ID to the client's ledger and writes the
// updated list to every backend, which also re-syncs any copy that had fallen
// behind. The add is idempotent: an ID already present is not duplicated. A secondary backend failing its write is logged and
// tolerated as long as at least one write lands; the dual write is a
// redundancy strategy, not a correctness requirement.
func (l *Ledger) RecordVote(ctx context.Context, c *Client, id string) error {
	if id == "" {
		return errEmptyID
	}

	ids := l.read(ctx, c)
	already := false
	for _, voted := range ids {
		if voted == id {
			already = true
			break
		}
	}
	if !already {
		ids = append(ids, id)
	}

	var firstErr error
	saved := 0
	for _, b := range l.backends {
		if err := b.Save(ctx, c, ids); err != nil {
			log.Error().Err(err).Str("backend", b.Name()).Str("prediction_id", id).
				Msg("ledger: backend write failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		saved++
	}
	if saved == 0 {
		return firstErr
	}
	return nil
}

// read returns the union of the voted IDs across every backend that has data,
// deduplicated, backend order preserved. A backend with unparseable or absent
// data contributes nothing; an empty everything means no prior votes.
func (l *Ledger) read(ctx context.Context, c *Client) []string {
	var merged []string
	seen := make(map[string]struct{})
	for _, b := range l.backends {
		ids, ok := b.Load(ctx, c)
		if !ok {
			continue
		}
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			merged = append(merged, id)
		}
	}
	return merged
}
