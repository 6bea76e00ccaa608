package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	gateway "github.com/keyhub-gw/keyhub/internal"
)

// collectStore records inserted batches.
type collectStore struct {
	mu   sync.Mutex
	logs []gateway.RequestLog
}

func (c *collectStore) InsertLogs(_ context.Context, logs []gateway.RequestLog) error {
	c.mu.Lock()
	c.logs = append(c.logs, logs...)
	c.mu.Unlock()
	return nil
}

func (c *collectStore) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.logs)
}

func TestLogRecorderFlushesOnShutdown(t *testing.T) {
	t.Parallel()
	store := &collectStore{}
	rec := NewLogRecorder(store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rec.Run(ctx) //nolint:errcheck
		close(done)
	}()

	for range 7 {
		rec.Record(gateway.RequestLog{ChannelID: "ch", KeyID: "k", Status: 200})
	}
	cancel()
	<-done

	if got := store.count(); got != 7 {
		t.Errorf("flushed %d logs, want 7", got)
	}

	// Every flushed log gets an id assigned.
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, l := range store.logs {
		if l.ID == "" {
			t.Error("log flushed without an id")
		}
	}
}

func TestLogRecorderPeriodicFlush(t *testing.T) {
	t.Parallel()
	store := &collectStore{}
	rec := NewLogRecorder(store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rec.Run(ctx) //nolint:errcheck

	rec.Record(gateway.RequestLog{ChannelID: "ch", KeyID: "k", Status: 200})

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if store.count() == 1 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("log was never flushed by the ticker")
}

func TestLogRecorderDropsWhenFull(t *testing.T) {
	t.Parallel()
	rec := NewLogRecorder(&collectStore{}, nil)

	// Not running; the channel fills and further records are dropped
	// without blocking.
	for range logChanSize + 10 {
		rec.Record(gateway.RequestLog{})
	}
	if len(rec.ch) != logChanSize {
		t.Errorf("queued = %d, want %d", len(rec.ch), logChanSize)
	}
}
