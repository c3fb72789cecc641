package reactive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.pilab.hu/oidcstore/metrics"
)

// Replica is the reference Store: a local snapshot kept up to date by a
// background goroutine that applies the entries of an IntentLog in order.
type Replica struct {
	state      *state
	log        IntentLog
	checkpoint Checkpointer
	applyDelay time.Duration
	now        func() time.Time

	mu       sync.Mutex
	changed  chan struct{}
	position string
	closed   bool

	cancel context.CancelFunc
	done   chan struct{}
}

var _ Store = (*Replica)(nil)

// Option configures a Replica.
type Option func(*Replica)

// WithCheckpoint restores the replica from cp and commits every applied entry
// to it.
func WithCheckpoint(cp Checkpointer) Option {
	return func(r *Replica) { r.checkpoint = cp }
}

// WithApplyDelay holds every entry back until d after it was submitted. It
// models replication lag.
func WithApplyDelay(d time.Duration) Option {
	return func(r *Replica) { r.applyDelay = d }
}

// WithClock overrides the clock used to stamp submitted intents.
func WithClock(now func() time.Time) Option {
	return func(r *Replica) { r.now = now }
}

// NewReplica restores the checkpoint, if any, and starts following l.
func NewReplica(l IntentLog, opts ...Option) (*Replica, error) {
	r := &Replica{
		state:   newState(),
		log:     l,
		now:     time.Now,
		changed: make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.checkpoint != nil {
		position, sequences, err := r.checkpoint.Restore(r.state.restore)
		if err != nil {
			return nil, fmt.Errorf("reactive: restore checkpoint: %w", err)
		}
		r.state.setSequences(sequences)
		r.position = position
		log.Info().Str("position", position).Msg("Replica restored from checkpoint")
	}

	ctx, cancel := context.WithCancel(context.Background())
	entries, err := l.Subscribe(ctx, r.position)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("reactive: subscribe to intent log: %w", err)
	}
	r.cancel = cancel

	go r.run(ctx, entries)
	return r, nil
}

func (r *Replica) Applications() Table[ApplicationRow]     { return r.state.applications }
func (r *Replica) Authorizations() Table[AuthorizationRow] { return r.state.authorizations }
func (r *Replica) Scopes() Table[ScopeRow]                 { return r.state.scopes }
func (r *Replica) Tokens() Table[TokenRow]                 { return r.state.tokens }

func (r *Replica) Changed() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.changed
}

// Position returns the log position of the last applied entry.
func (r *Replica) Position() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.position
}

func (r *Replica) Submit(ctx context.Context, reducer Reducer, args any) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("reactive: encode %s args: %w", reducer, err)
	}

	in := Intent{
		ID:          uuid.NewString(),
		Reducer:     reducer,
		Args:        raw,
		SubmittedAt: r.now().UTC(),
	}
	if err := r.log.Append(ctx, in); err != nil {
		return fmt.Errorf("reactive: submit %s: %w", reducer, err)
	}

	metrics.IntentsSubmitted.WithLabelValues(string(reducer)).Inc()
	return nil
}

// Close stops applying entries. It does not close the intent log.
func (r *Replica) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	<-r.done
	return nil
}

func (r *Replica) run(ctx context.Context, entries <-chan Entry) {
	defer close(r.done)

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-entries:
			if !ok {
				log.Warn().Msg("Intent log subscription ended")
				return
			}
			if !r.hold(ctx, e) {
				return
			}
			r.apply(e)
		}
	}
}

// hold waits out the apply delay of e. It reports false when ctx ended first.
func (r *Replica) hold(ctx context.Context, e Entry) bool {
	if r.applyDelay <= 0 {
		return true
	}
	wait := time.Until(e.Intent.SubmittedAt.Add(r.applyDelay))
	if wait <= 0 {
		return true
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *Replica) apply(e Entry) {
	reducer := string(e.Intent.Reducer)

	changes, err := r.state.apply(e.Intent)
	if err != nil {
		reason := "error"
		var rejected *RejectedError
		if errors.As(err, &rejected) {
			reason = rejected.Reason
		}
		metrics.IntentsRejected.WithLabelValues(reducer, reason).Inc()
		log.Warn().Err(err).
			Str("intent_id", e.Intent.ID).
			Str("reducer", reducer).
			Str("position", e.Position).
			Msg("Intent rejected")
	} else {
		metrics.IntentsApplied.WithLabelValues(reducer).Inc()
	}

	if r.checkpoint != nil {
		batch := Batch{Position: e.Position, Changes: changes, Sequences: r.state.sequences()}
		if err := r.checkpoint.Commit(batch); err != nil {
			log.Error().Err(err).Str("position", e.Position).Msg("Failed to commit checkpoint")
		}
	}

	r.mu.Lock()
	r.position = e.Position
	close(r.changed)
	r.changed = make(chan struct{})
	r.mu.Unlock()
}
