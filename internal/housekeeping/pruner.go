// Package housekeeping runs the periodic pruning of tokens and authorizations.
package housekeeping

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.pilab.hu/oidcstore/log"
)

// Prunable is the part of a store the pruner needs.
type Prunable interface {
	Prune(ctx context.Context, threshold time.Time) error
}

// Pruner periodically asks the token and authorization stores to drop entries
// older than their retention. Pruning is submitted as intents, so a run only
// reports whether the requests were accepted.
type Pruner struct {
	tokens         Prunable
	authorizations Prunable
	logger         log.Logger

	interval               time.Duration
	tokenRetention         time.Duration
	authorizationRetention time.Duration

	now func() time.Time

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewPruner creates a pruner. A non-positive interval defaults to one hour and
// a non-positive retention defaults to 14 days.
func NewPruner(tokens, authorizations Prunable, logger log.Logger, interval, tokenRetention, authorizationRetention time.Duration) *Pruner {
	if interval <= 0 {
		interval = time.Hour
	}
	if tokenRetention <= 0 {
		tokenRetention = 14 * 24 * time.Hour
	}
	if authorizationRetention <= 0 {
		authorizationRetention = 14 * 24 * time.Hour
	}

	return &Pruner{
		tokens:                 tokens,
		authorizations:         authorizations,
		logger:                 log.OrNop(logger).With(map[string]interface{}{"component": "pruner"}),
		interval:               interval,
		tokenRetention:         tokenRetention,
		authorizationRetention: authorizationRetention,
		now:                    time.Now,
		stopCh:                 make(chan struct{}),
		doneCh:                 make(chan struct{}),
	}
}

// Start runs the pruning loop in the background. The first run happens
// immediately. Starting a stopped pruner does nothing.
func (p *Pruner) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	go p.run()
	p.logger.Info(context.Background(), "pruner started", map[string]interface{}{
		"interval": p.interval.String(),
	})
}

// Stop ends the loop and waits for an in-progress run to finish.
func (p *Pruner) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.stopCh)
	started := p.started
	p.mu.Unlock()

	if !started {
		return
	}
	<-p.doneCh
	p.logger.Info(context.Background(), "pruner stopped")
}

func (p *Pruner) run() {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-p.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	p.runLogged(ctx)
	for {
		select {
		case <-ticker.C:
			p.runLogged(ctx)
		case <-p.stopCh:
			return
		}
	}
}

func (p *Pruner) runLogged(ctx context.Context) {
	if err := p.RunOnce(ctx); err != nil {
		p.logger.Error(ctx, "pruning failed", err)
	}
}

// RunOnce submits one prune request per store. A failure of one store does
// not prevent the other from being pruned.
func (p *Pruner) RunOnce(ctx context.Context) error {
	now := p.now()
	var errs []error

	if err := p.tokens.Prune(ctx, now.Add(-p.tokenRetention)); err != nil {
		errs = append(errs, fmt.Errorf("prune tokens: %w", err))
	}
	if err := p.authorizations.Prune(ctx, now.Add(-p.authorizationRetention)); err != nil {
		errs = append(errs, fmt.Errorf("prune authorizations: %w", err))
	}

	if len(errs) == 0 {
		p.logger.Debug(ctx, "prune requests submitted")
	}
	return errors.Join(errs...)
}
