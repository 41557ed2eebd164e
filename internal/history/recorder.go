// Package history is the usage-recording collaborator. After a completion
// stream finishes, the proxy reports token usage and latency here.
//
// Recording must never delay stream bytes: the Async recorder accepts
// records on a buffered channel and writes them from a background worker,
// dropping records rather than blocking when the buffer is full.
package history

import (
	"context"
	"time"

	"github.com/alpaca-network/gatewayz-relay/internal/logging"
)

// Usage is one completed request's accounting record.
type Usage struct {
	Model            string
	Gateway          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	LatencyMs        int64
	CreatedAt        time.Time
}

// Recorder accepts usage records. Implementations must not block the
// caller.
type Recorder interface {
	Record(u Usage)
}

// Store persists usage records.
type Store interface {
	Insert(ctx context.Context, u Usage) error
	Close() error
}

// Discard is a Recorder that drops everything. Used when no store is
// configured.
type Discard struct{}

// Record implements Recorder.
func (Discard) Record(Usage) {}

// Async decouples stream completion from persistence. Records are queued
// and written by a single background worker.
type Async struct {
	store Store
	ch    chan Usage
	done  chan struct{}
}

// NewAsync starts the background writer. buffer bounds the queue; 0 uses a
// default of 256.
func NewAsync(store Store, buffer int) *Async {
	if buffer <= 0 {
		buffer = 256
	}
	a := &Async{
		store: store,
		ch:    make(chan Usage, buffer),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

// Record queues a usage record. If the queue is full the record is dropped:
// losing an accounting row is preferable to stalling a live stream.
func (a *Async) Record(u Usage) {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	select {
	case a.ch <- u:
	default:
		logging.Logger.Warn("usage record dropped, queue full",
			"model", u.Model, "gateway", u.Gateway)
	}
}

// Close stops accepting records, flushes the queue, and closes the store.
func (a *Async) Close() error {
	close(a.ch)
	<-a.done
	return a.store.Close()
}

func (a *Async) run() {
	defer close(a.done)
	for u := range a.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.store.Insert(ctx, u); err != nil {
			logging.Logger.Error("usage record insert failed",
				"model", u.Model, "gateway", u.Gateway, "error", err)
		}
		cancel()
	}
}
