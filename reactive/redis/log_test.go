package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.pilab.hu/oidcstore/reactive"
)

func TestDecodeMessage(t *testing.T) {
	e, err := decodeMessage(redis.XMessage{
		ID: "1700000000000-3",
		Values: map[string]interface{}{
			"id":           "intent-1",
			"reducer":      "create_scope",
			"args":         `{"name":"email"}`,
			"submitted_at": "1700000000000",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "1700000000000-3", e.Position)
	assert.Equal(t, "intent-1", e.Intent.ID)
	assert.Equal(t, reactive.CreateScope, e.Intent.Reducer)
	assert.JSONEq(t, `{"name":"email"}`, string(e.Intent.Args))
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), e.Intent.SubmittedAt)
}

func TestDecodeMessage_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]interface{}
	}{
		{"missing reducer", map[string]interface{}{"id": "x", "args": "{}", "submitted_at": "1"}},
		{"bad timestamp", map[string]interface{}{"id": "x", "reducer": "r", "args": "{}", "submitted_at": "yesterday"}},
		{"wrong type", map[string]interface{}{"id": 42, "reducer": "r", "args": "{}", "submitted_at": "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeMessage(redis.XMessage{ID: "1-0", Values: tt.values})
			assert.Error(t, err)
		})
	}
}

func TestLog_EntryForUndecodable(t *testing.T) {
	l := &Log{stream: "intents"}

	e := l.entryFor(redis.XMessage{ID: "1700000000000-7", Values: map[string]interface{}{"id": "x"}})
	assert.Equal(t, "1700000000000-7", e.Position)
	assert.Equal(t, reactive.Undecodable, e.Intent.Reducer)
	assert.NotEmpty(t, e.Intent.Args)

	ok := l.entryFor(redis.XMessage{ID: "1-0", Values: map[string]interface{}{
		"id": "i1", "reducer": "delete_scope", "args": `{"id":1}`, "submitted_at": "1",
	}})
	assert.Equal(t, reactive.DeleteScope, ok.Intent.Reducer)
}

func TestIsStreamID(t *testing.T) {
	assert.True(t, isStreamID("1700000000000-0"))
	assert.True(t, isStreamID("0-0"))
	assert.False(t, isStreamID(""))
	assert.False(t, isStreamID("0"))
	assert.False(t, isStreamID("b7e0c9f4-1b1e-4a55-9a39-5c1f2f1f0c11:12"))
}

// Integration tests need a running Redis; set TEST_REDIS_ADDR to enable them.
func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("Skipping Redis integration test: TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, client.Ping(context.Background()).Err())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestLog_ReplicasConverge(t *testing.T) {
	client := newTestClient(t)
	stream := "oidcstore-test-" + uuid.NewString()
	t.Cleanup(func() { client.Del(context.Background(), stream) })

	l := NewLog(client, stream)
	defer l.Close()

	a, err := reactive.NewReplica(l)
	require.NoError(t, err)
	defer a.Close()
	b, err := reactive.NewReplica(l)
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, a.Submit(ctx, reactive.CreateScope, reactive.ScopeRow{ExternalID: "s1", Name: "email"}))
	require.NoError(t, b.Submit(ctx, reactive.CreateScope, reactive.ScopeRow{ExternalID: "s2", Name: "email"}))

	require.Eventually(t, func() bool {
		return a.Position() != "" && a.Position() == b.Position() && a.Scopes().Len() == 1
	}, 5*time.Second, 20*time.Millisecond)

	row, ok := b.Scopes().Find(reactive.IndexName, "email")
	require.True(t, ok)
	assert.Equal(t, "s1", row.ExternalID)
}
