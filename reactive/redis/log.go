// Package redis carries the intent log over a Redis stream so that replicas
// in different processes apply the same intents in the same order.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.pilab.hu/oidcstore/reactive"
)

const (
	defaultBlock = time.Second
	readCount    = 128
	maxBackoff   = 5 * time.Second
)

// Log implements reactive.IntentLog with XADD and XREAD.
type Log struct {
	client redis.UniversalClient
	stream string
	block  time.Duration

	once   sync.Once
	closed chan struct{}
}

var _ reactive.IntentLog = (*Log)(nil)

// NewLog creates a Log over stream. The client is owned by the caller.
func NewLog(client redis.UniversalClient, stream string) *Log {
	return &Log{
		client: client,
		stream: stream,
		block:  defaultBlock,
		closed: make(chan struct{}),
	}
}

func (l *Log) isClosed() bool {
	select {
	case <-l.closed:
		return true
	default:
		return false
	}
}

// Append adds the intent to the stream
func (l *Log) Append(ctx context.Context, in reactive.Intent) error {
	if l.isClosed() {
		return reactive.ErrClosed
	}

	err := l.client.XAdd(ctx, &redis.XAddArgs{
		Stream: l.stream,
		Values: map[string]interface{}{
			"id":           in.ID,
			"reducer":      string(in.Reducer),
			"args":         string(in.Args),
			"submitted_at": in.SubmittedAt.UnixMilli(),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to append intent to stream %s: %w", l.stream, err)
	}
	return nil
}

// Subscribe streams the entries after the given stream id. Anything that is
// not a stream id starts from the beginning of the stream.
func (l *Log) Subscribe(ctx context.Context, after string) (<-chan reactive.Entry, error) {
	if l.isClosed() {
		return nil, reactive.ErrClosed
	}

	last := after
	if !isStreamID(last) {
		last = "0"
	}

	out := make(chan reactive.Entry)
	go func() {
		defer close(out)
		backoff := 100 * time.Millisecond

		for ctx.Err() == nil && !l.isClosed() {
			streams, err := l.client.XRead(ctx, &redis.XReadArgs{
				Streams: []string{l.stream, last},
				Count:   readCount,
				Block:   l.block,
			}).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn().Err(err).Str("stream", l.stream).Dur("backoff", backoff).Msg("Failed to read intent stream")
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return
				case <-l.closed:
					return
				}
				backoff = min(backoff*2, maxBackoff)
				continue
			}
			backoff = 100 * time.Millisecond

			for _, s := range streams {
				for _, msg := range s.Messages {
					e := l.entryFor(msg)
					select {
					case out <- e:
						last = msg.ID
					case <-ctx.Done():
						return
					case <-l.closed:
						return
					}
				}
			}
		}
	}()
	return out, nil
}

// Close stops every subscription. The client is left open.
func (l *Log) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

// entryFor decodes msg. An undecodable message is still forwarded, as an
// entry the replica rejects, so its position is applied and checkpointed.
func (l *Log) entryFor(msg redis.XMessage) reactive.Entry {
	e, err := decodeMessage(msg)
	if err != nil {
		log.Error().Err(err).Str("stream", l.stream).Str("position", msg.ID).Msg("Undecodable intent")
		return reactive.UndecodableEntry(msg.ID, err)
	}
	return e
}

func decodeMessage(msg redis.XMessage) (reactive.Entry, error) {
	field := func(name string) (string, error) {
		v, ok := msg.Values[name]
		if !ok {
			return "", fmt.Errorf("message %s: missing field %q", msg.ID, name)
		}
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("message %s: field %q is %T", msg.ID, name, v)
		}
		return s, nil
	}

	id, err := field("id")
	if err != nil {
		return reactive.Entry{}, err
	}
	reducer, err := field("reducer")
	if err != nil {
		return reactive.Entry{}, err
	}
	args, err := field("args")
	if err != nil {
		return reactive.Entry{}, err
	}
	submitted, err := field("submitted_at")
	if err != nil {
		return reactive.Entry{}, err
	}
	ms, err := strconv.ParseInt(submitted, 10, 64)
	if err != nil {
		return reactive.Entry{}, fmt.Errorf("message %s: submitted_at: %w", msg.ID, err)
	}

	return reactive.Entry{
		Position: msg.ID,
		Intent: reactive.Intent{
			ID:          id,
			Reducer:     reactive.Reducer(reducer),
			Args:        []byte(args),
			SubmittedAt: time.UnixMilli(ms).UTC(),
		},
	}, nil
}

// isStreamID reports whether s looks like "<ms>-<seq>".
func isStreamID(s string) bool {
	ms, seq, ok := strings.Cut(s, "-")
	if !ok {
		return false
	}
	if _, err := strconv.ParseUint(ms, 10, 64); err != nil {
		return false
	}
	_, err := strconv.ParseUint(seq, 10, 64)
	return err == nil
}
