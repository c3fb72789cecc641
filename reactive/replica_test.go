package reactive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReplica(t *testing.T, l IntentLog, opts ...Option) *Replica {
	t.Helper()
	r, err := NewReplica(l, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func scopeVisible(r *Replica, name string) func() bool {
	return func() bool {
		_, ok := r.Scopes().Find(IndexName, name)
		return ok
	}
}

func TestReplica_SubmitIsEventuallyApplied(t *testing.T) {
	l := NewMemoryLog()
	defer l.Close()
	r := newTestReplica(t, l, WithApplyDelay(50*time.Millisecond))

	changed := r.Changed()
	require.NoError(t, r.Submit(context.Background(), CreateScope, ScopeRow{ExternalID: "s1", Name: "email"}))

	_, ok := r.Scopes().Find(IndexName, "email")
	assert.False(t, ok, "the intent must not be visible before the apply delay")

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("Changed was not signalled")
	}
	require.Eventually(t, scopeVisible(r, "email"), 2*time.Second, 10*time.Millisecond)
	assert.True(t, Exists(r, TableScopes, "s1"))
	assert.NotEmpty(t, r.Position())
}

func TestReplica_ReplicasConverge(t *testing.T) {
	l := NewMemoryLog()
	defer l.Close()

	a := newTestReplica(t, l)
	b := newTestReplica(t, l, WithApplyDelay(20*time.Millisecond))

	ctx := context.Background()
	var wg sync.WaitGroup
	for i, name := range []string{"openid", "email", "profile", "email", "address"} {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			assert.NoError(t, a.Submit(ctx, CreateScope, ScopeRow{ExternalID: fmt.Sprintf("s%d", i), Name: name}))
		}(i, name)
	}
	wg.Wait()
	require.NoError(t, b.Submit(ctx, RegisterApplication, ApplicationRow{ExternalID: "app", ClientID: "web", Active: true}))

	require.Eventually(t, func() bool {
		return a.Position() == b.Position() && a.Applications().Len() == 1 && b.Applications().Len() == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 4, a.Scopes().Len(), "the duplicate scope name is rejected")
	assert.Equal(t, slices.Collect(a.Scopes().Iter()), slices.Collect(b.Scopes().Iter()))
	assert.Equal(t, slices.Collect(a.Applications().Iter()), slices.Collect(b.Applications().Iter()))
}

func TestReplica_SubmitAfterClose(t *testing.T) {
	l := NewMemoryLog()
	defer l.Close()
	r, err := NewReplica(l)
	require.NoError(t, err)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.ErrorIs(t, r.Submit(context.Background(), DeleteScope, IDArgs{ID: 1}), ErrClosed)
}

func TestReplica_SubmitToClosedLog(t *testing.T) {
	l := NewMemoryLog()
	r := newTestReplica(t, l)
	require.NoError(t, l.Close())

	assert.ErrorIs(t, r.Submit(context.Background(), DeleteScope, IDArgs{ID: 1}), ErrClosed)
}

func TestReplica_SubmitCanceledContext(t *testing.T) {
	l := NewMemoryLog()
	defer l.Close()
	r := newTestReplica(t, l)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Submit(ctx, DeleteScope, IDArgs{ID: 1}), context.Canceled)
	assert.Zero(t, l.Len())
}

type memCheckpoint struct {
	mu        sync.Mutex
	rows      map[TableName]map[uint64]json.RawMessage
	position  string
	sequences map[TableName]uint64
}

func newMemCheckpoint() *memCheckpoint {
	return &memCheckpoint{rows: map[TableName]map[uint64]json.RawMessage{}}
}

func (c *memCheckpoint) Restore(fn func(TableName, json.RawMessage) error) (string, map[TableName]uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for table, rows := range c.rows {
		for _, raw := range rows {
			if err := fn(table, raw); err != nil {
				return "", nil, err
			}
		}
	}
	return c.position, c.sequences, nil
}

func (c *memCheckpoint) Commit(b Batch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range b.Changes {
		if c.rows[ch.Table] == nil {
			c.rows[ch.Table] = map[uint64]json.RawMessage{}
		}
		if ch.Row == nil {
			delete(c.rows[ch.Table], ch.ID)
			continue
		}
		raw, err := json.Marshal(ch.Row)
		if err != nil {
			return err
		}
		c.rows[ch.Table][ch.ID] = raw
	}
	c.position = b.Position
	c.sequences = b.Sequences
	return nil
}

func TestReplica_ResumesFromCheckpoint(t *testing.T) {
	l := NewMemoryLog()
	defer l.Close()
	cp := newMemCheckpoint()
	ctx := context.Background()

	first, err := NewReplica(l, WithCheckpoint(cp))
	require.NoError(t, err)
	require.NoError(t, first.Submit(ctx, CreateScope, ScopeRow{ExternalID: "s1", Name: "openid"}))
	require.NoError(t, first.Submit(ctx, CreateScope, ScopeRow{ExternalID: "s2", Name: "email"}))
	require.NoError(t, first.Submit(ctx, DeleteScope, IDArgs{ID: 2}))
	require.Eventually(t, func() bool {
		cp.mu.Lock()
		defer cp.mu.Unlock()
		return strings.HasSuffix(cp.position, ":3") && cp.sequences[TableScopes] == 3
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, first.Close())

	second := newTestReplica(t, l, WithCheckpoint(cp))
	assert.Equal(t, 1, second.Scopes().Len())
	assert.Equal(t, cp.position, second.Position())

	require.NoError(t, second.Submit(ctx, CreateScope, ScopeRow{ExternalID: "s3", Name: "profile"}))
	require.Eventually(t, scopeVisible(second, "profile"), 2*time.Second, 10*time.Millisecond)

	row, _ := second.Scopes().Find(IndexName, "profile")
	assert.Equal(t, uint64(3), row.ID, "ids are not reused after a restart")
	assert.Equal(t, 2, second.Scopes().Len())
}

func TestReplica_UndecodableEntryAdvancesPosition(t *testing.T) {
	l := NewMemoryLog()
	defer l.Close()
	cp := newMemCheckpoint()
	r := newTestReplica(t, l, WithCheckpoint(cp))
	ctx := context.Background()

	broken := UndecodableEntry("ignored", errors.New("bad timestamp"))
	require.NoError(t, l.Append(ctx, broken.Intent))
	require.Eventually(t, func() bool { return strings.HasSuffix(r.Position(), ":1") }, 2*time.Second, 10*time.Millisecond)

	cp.mu.Lock()
	assert.Equal(t, r.Position(), cp.position, "the rejected entry is checkpointed")
	cp.mu.Unlock()

	require.NoError(t, r.Submit(ctx, CreateScope, ScopeRow{ExternalID: "s1", Name: "email"}))
	require.Eventually(t, scopeVisible(r, "email"), 2*time.Second, 10*time.Millisecond)
	assert.True(t, strings.HasSuffix(r.Position(), ":2"))
}
