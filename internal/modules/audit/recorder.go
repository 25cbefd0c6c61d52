// README: Fire-and-forget decision recorder; a slow or failing sink never blocks matching.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"unipool/internal/observability"
)

// LogStore persists decision logs.
type LogStore interface {
	Insert(ctx context.Context, entry *DecisionLog) error
}

// writeTimeout bounds a single sink write so the worker cannot wedge.
const writeTimeout = 5 * time.Second

// Recorder hands entries to a bounded queue drained by one worker goroutine.
// When the queue is full the entry is dropped and counted; losing an audit
// record is an accepted trade-off, failing a match is not.
type Recorder struct {
	ch    chan DecisionLog
	store LogStore
	log   *slog.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewRecorder(store LogStore, log *slog.Logger, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	r := &Recorder{
		ch:    make(chan DecisionLog, buffer),
		store: store,
		log:   log,
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Record enqueues the entry without blocking.
func (r *Recorder) Record(entry DecisionLog) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	select {
	case r.ch <- entry:
	default:
		observability.AuditDroppedTotal.Inc()
		r.log.Warn("decision log dropped, queue full", "request_id", entry.RequestID)
	}
}

// Close stops intake and drains what is already queued.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() { close(r.ch) })
	r.wg.Wait()
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for entry := range r.ch {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := r.store.Insert(ctx, &entry); err != nil {
			r.log.Warn("decision log write failed", "request_id", entry.RequestID, "err", err)
		}
		cancel()
	}
}
