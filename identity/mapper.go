// Package identity bridges the externally minted identifiers callers use and
// the rows of the reactive store, whose internal ids are only known once a
// create has replicated.
package identity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"go.pilab.hu/oidcstore/log"
	"go.pilab.hu/oidcstore/metrics"
	"go.pilab.hu/oidcstore/reactive"
)

type pendingKey struct {
	table reactive.TableName
	id    string
}

// Mapper mints external ids and tracks submitted creates until they show up
// in the snapshot.
type Mapper struct {
	store   reactive.Store
	logger  log.Logger
	pending *ttlcache.Cache[pendingKey, time.Time]

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewMapper starts tracking visibility on store. A create that is still not
// visible after pendingTTL is dropped from the tracker and reported.
func NewMapper(store reactive.Store, logger log.Logger, pendingTTL time.Duration) *Mapper {
	pending := ttlcache.New(
		ttlcache.WithTTL[pendingKey, time.Time](pendingTTL),
		ttlcache.WithDisableTouchOnHit[pendingKey, time.Time](),
	)

	m := &Mapper{
		store:   store,
		logger:  log.OrNop(logger).With(map[string]interface{}{"component": "identity"}),
		pending: pending,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	pending.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[pendingKey, time.Time]) {
		metrics.PendingVisibility.Dec()
		if reason != ttlcache.EvictionReasonExpired {
			return
		}
		key := item.Key()
		metrics.VisibilityTimeouts.WithLabelValues(string(key.table)).Inc()
		m.logger.Warn(ctx, "submitted row never became visible", map[string]interface{}{
			"table":        string(key.table),
			"external_id":  key.id,
			"submitted_at": item.Value(),
		})
	})

	go pending.Start()
	go m.watch()

	return m
}

// NewExternalID mints an opaque identifier for a new row.
func (m *Mapper) NewExternalID() string {
	return uuid.NewString()
}

// NewConcurrencyToken mints the token a write stamps on its row.
func (m *Mapper) NewConcurrencyToken() string {
	return uuid.NewString()
}

// Track marks a submitted create as pending visibility.
func (m *Mapper) Track(table reactive.TableName, externalID string) {
	key := pendingKey{table: table, id: externalID}
	if m.pending.Has(key) {
		return
	}
	m.pending.Set(key, time.Now(), ttlcache.DefaultTTL)
	metrics.PendingVisibility.Inc()

	// The create may have been applied, and swept past, before it was tracked.
	if reactive.Exists(m.store, table, externalID) {
		m.pending.Delete(key)
	}
}

// IsPending reports whether a tracked create has not shown up yet.
func (m *Mapper) IsPending(table reactive.TableName, externalID string) bool {
	return m.pending.Has(pendingKey{table: table, id: externalID})
}

// Pending returns the number of tracked creates.
func (m *Mapper) Pending() int {
	return m.pending.Len()
}

// WaitVisible blocks until a row with externalID is visible in table.
func (m *Mapper) WaitVisible(ctx context.Context, table reactive.TableName, externalID string) error {
	return m.Await(ctx, func() bool {
		return reactive.Exists(m.store, table, externalID)
	})
}

// Await blocks until cond holds over the snapshot or ctx ends. cond is
// evaluated once up front and again after every applied intent.
func (m *Mapper) Await(ctx context.Context, cond func() bool) error {
	for {
		changed := m.store.Changed()
		if cond() {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *Mapper) watch() {
	defer close(m.done)
	for {
		changed := m.store.Changed()
		m.sweep()
		select {
		case <-changed:
		case <-m.stop:
			return
		}
	}
}

func (m *Mapper) sweep() {
	for _, key := range m.pending.Keys() {
		if reactive.Exists(m.store, key.table, key.id) {
			m.pending.Delete(key)
		}
	}
}

// Close stops the tracker.
func (m *Mapper) Close() {
	m.stopOnce.Do(func() {
		close(m.stop)
		m.pending.Stop()
		<-m.done
	})
}
