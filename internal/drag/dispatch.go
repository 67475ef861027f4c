package drag

import (
	"context"
	"sync"
	"time"

	appLog "opscal/internal/log"
	"opscal/internal/model"
)

const defaultCommitTimeout = 15 * time.Second

// TimeUpdater persists a new span for an event.
type TimeUpdater interface {
	UpdateEventTime(ctx context.Context, eventID string, span model.Span, version string) (model.Event, error)
}

// Dispatcher sends commit requests without blocking the caller. It never
// rolls back: on failure it reports once through OnError, and in every case
// it calls OnDone so the caller can refetch server truth.
type Dispatcher struct {
	Updater TimeUpdater
	Timeout time.Duration

	OnError func(req CommitRequest, err error)
	OnDone  func(req CommitRequest)

	wg sync.WaitGroup
}

// Dispatch starts the update in the background and returns immediately.
// ctx only contributes values; cancellation of ctx does not abort the commit.
func (d *Dispatcher) Dispatch(ctx context.Context, req CommitRequest) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultCommitTimeout
	}
	base := context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		cctx, cancel := context.WithTimeout(base, timeout)
		defer cancel()

		appLog.Info("drag: committing event time",
			"request_id", req.ID,
			"event_id", req.EventID,
			"start", req.Span.Start.Format(time.RFC3339),
			"end", req.Span.End.Format(time.RFC3339),
		)

		if _, err := d.Updater.UpdateEventTime(cctx, req.EventID, req.Span, req.Version); err != nil {
			appLog.Error("drag: commit failed", err, "request_id", req.ID, "event_id", req.EventID)
			if d.OnError != nil {
				d.OnError(req, err)
			}
		}
		if d.OnDone != nil {
			d.OnDone(req)
		}
	}()
}

// Wait blocks until all dispatched commits have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
