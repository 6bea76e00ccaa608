package worker

import (
	"context"
	"log/slog"
	"time"

	gateway "github.com/keyhub-gw/keyhub/internal"
)

const (
	logChanSize   = 1000
	logBatchSize  = 100
	logFlushEvery = time.Second
	logDrainTime  = 30 * time.Second
)

// LogStore is the persistence interface consumed by LogRecorder.
type LogStore interface {
	InsertLogs(ctx context.Context, logs []gateway.RequestLog) error
}

// QueueGauge reports the current queue depth; nil means no reporting.
type QueueGauge interface {
	Set(float64)
}

// LogRecorder buffers request logs and batch-flushes them to the store.
// Records are dropped if the channel is full (back-pressure on slow DB).
type LogRecorder struct {
	ch    chan gateway.RequestLog
	store LogStore
	gauge QueueGauge
}

// NewLogRecorder creates a LogRecorder backed by store. gauge may be nil.
func NewLogRecorder(store LogStore, gauge QueueGauge) *LogRecorder {
	return &LogRecorder{
		ch:    make(chan gateway.RequestLog, logChanSize),
		store: store,
		gauge: gauge,
	}
}

// Name returns the worker identifier.
func (l *LogRecorder) Name() string { return "log_recorder" }

// Record enqueues a request log. It never blocks; drops on full channel.
func (l *LogRecorder) Record(log gateway.RequestLog) {
	select {
	case l.ch <- log:
		if l.gauge != nil {
			l.gauge.Set(float64(len(l.ch)))
		}
	default:
		slog.Warn("request log dropped, channel full")
	}
}

// Run processes logs until ctx is cancelled, then drains remaining entries.
func (l *LogRecorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(logFlushEvery)
	defer ticker.Stop()

	buf := make([]gateway.RequestLog, 0, logBatchSize)

	for {
		select {
		case r := <-l.ch:
			buf = append(buf, r)
			if len(buf) >= logBatchSize {
				l.flush(ctx, buf)
				buf = buf[:0]
			}

		case <-ticker.C:
			if len(buf) > 0 {
				l.flush(ctx, buf)
				buf = buf[:0]
			}

		case <-ctx.Done():
			l.drain(buf)
			return nil
		}
	}
}

func (l *LogRecorder) drain(buf []gateway.RequestLog) {
	ctx, cancel := context.WithTimeout(context.Background(), logDrainTime)
	defer cancel()

	for {
		select {
		case r := <-l.ch:
			buf = append(buf, r)
			if len(buf) >= logBatchSize {
				l.flush(ctx, buf)
				buf = buf[:0]
			}
		default:
			if len(buf) > 0 {
				l.flush(ctx, buf)
			}
			return
		}
	}
}

func (l *LogRecorder) flush(ctx context.Context, buf []gateway.RequestLog) {
	// Copy to avoid aliasing the caller's slice.
	batch := make([]gateway.RequestLog, len(buf))
	copy(batch, buf)

	// Assign IDs off the hot path; callers leave ID empty.
	for i := range batch {
		if batch[i].ID == "" {
			batch[i].ID = gateway.NewID()
		}
	}

	if err := l.store.InsertLogs(ctx, batch); err != nil {
		slog.LogAttrs(ctx, slog.LevelError, "request log flush failed",
			slog.Int("count", len(batch)),
			slog.String("error", err.Error()),
		)
	}
	if l.gauge != nil {
		l.gauge.Set(float64(len(l.ch)))
	}
}
