package reactive

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// IntentLog is the ordered, replicated transport of intents. Every replica
// subscribed to the same log sees the same entries in the same order.
type IntentLog interface {
	// Append adds an intent at the end of the log.
	Append(ctx context.Context, in Intent) error

	// Subscribe streams the entries after position. An empty or foreign
	// position streams from the start. The channel is closed when ctx ends or
	// the log is closed.
	Subscribe(ctx context.Context, after string) (<-chan Entry, error)

	Close() error
}

// MemoryLog is an in-process IntentLog. Positions are only meaningful to the
// MemoryLog that produced them.
type MemoryLog struct {
	epoch string

	mu      sync.Mutex
	entries []Entry
	notify  chan struct{}
	closed  bool
	done    chan struct{}
}

var _ IntentLog = (*MemoryLog)(nil)

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		epoch:  uuid.NewString(),
		notify: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (l *MemoryLog) Append(ctx context.Context, in Intent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	l.entries = append(l.entries, Entry{
		Position: fmt.Sprintf("%s:%d", l.epoch, len(l.entries)+1),
		Intent:   in,
	})
	close(l.notify)
	l.notify = make(chan struct{})
	return nil
}

// offset returns how many entries precede the one after position.
func (l *MemoryLog) offset(position string) int {
	epoch, n, ok := strings.Cut(position, ":")
	if !ok || epoch != l.epoch {
		return 0
	}
	i, err := strconv.Atoi(n)
	if err != nil || i < 0 {
		return 0
	}
	return i
}

func (l *MemoryLog) Subscribe(ctx context.Context, after string) (<-chan Entry, error) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	out := make(chan Entry)
	go func() {
		defer close(out)
		next := l.offset(after)
		for {
			l.mu.Lock()
			if l.closed {
				l.mu.Unlock()
				return
			}
			if next < len(l.entries) {
				e := l.entries[next]
				l.mu.Unlock()
				select {
				case out <- e:
					next++
				case <-ctx.Done():
					return
				case <-l.done:
					return
				}
				continue
			}
			wait := l.notify
			l.mu.Unlock()

			select {
			case <-wait:
			case <-ctx.Done():
				return
			case <-l.done:
				return
			}
		}
	}()
	return out, nil
}

// Len returns the number of entries appended so far.
func (l *MemoryLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *MemoryLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.done)
	}
	return nil
}
