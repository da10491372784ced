package status

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"warden/api/hub"
	"warden/api/model"
)

// ErrSaturated means the report queue is full and the report was not
// accepted. Callers answer with backpressure, they do not block.
var ErrSaturated = errors.New("report queue saturated")

const defaultQueueSize = 256

// Notifier receives service-level signals derived from applied reports.
// The remediation engine implements it.
type Notifier interface {
	ServiceDown(name string)
	ServiceRecovered(name string)
}

// Historian persists applied reports for later inspection. Optional.
type Historian interface {
	InsertReport(ctx context.Context, r model.Report) error
	PruneReports(ctx context.Context) (int64, error)
}

// Intake is the report boundary: a bounded queue drained by a single
// applier goroutine, so reports apply in arrival order and submitters
// never wait on the store, the database or the engine.
type Intake struct {
	store *Store
	queue chan model.Report

	// Optional collaborators, set before Run.
	Hub      *hub.Hub
	DB       Historian
	Notifier Notifier
}

func NewIntake(store *Store, queueSize int) *Intake {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Intake{
		store: store,
		queue: make(chan model.Report, queueSize),
	}
}

// Submit enqueues a report without blocking. Unknown services are refused
// here so the agent sees the error immediately; a zero observedAt is
// stamped with the arrival time.
func (in *Intake) Submit(r model.Report) error {
	if _, ok := in.store.Registry().Get(r.Service); !ok {
		return fmt.Errorf("%w: %q", model.ErrUnknownService, r.Service)
	}
	if r.ObservedAt.IsZero() {
		r.ObservedAt = time.Now()
	}
	select {
	case in.queue <- r:
		return nil
	default:
		return ErrSaturated
	}
}

// Run drains the queue until ctx is cancelled, pruning report history
// hourly when a database is attached.
func (in *Intake) Run(ctx context.Context) {
	pruneTicker := time.NewTicker(1 * time.Hour)
	defer pruneTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case r := <-in.queue:
			in.apply(ctx, r)
		case <-pruneTicker.C:
			if in.DB == nil {
				continue
			}
			n, err := in.DB.PruneReports(ctx)
			if err != nil {
				log.Printf("intake: prune error: %v", err)
			} else if n > 0 {
				log.Printf("intake: pruned %d old reports", n)
			}
		}
	}
}

func (in *Intake) apply(ctx context.Context, r model.Report) {
	res, err := in.store.Apply(r)
	if err != nil {
		log.Printf("intake: dropping report: %v", err)
		return
	}
	if res.Stale {
		return
	}

	if in.Hub != nil {
		in.Hub.Broadcast(hub.Event{
			Type:    "health.report",
			Service: r.Service,
			Payload: map[string]interface{}{
				"healthy":             res.Healthy,
				"consecutiveFailures": res.Failures,
				"observedAt":          r.ObservedAt.Format(time.RFC3339),
			},
		})
		if res.Transition {
			in.Hub.Broadcast(hub.Event{
				Type:    "health.transition",
				Service: r.Service,
				Payload: map[string]interface{}{
					"healthy": res.Healthy,
					"at":      r.ObservedAt.Format(time.RFC3339),
				},
			})
		}
	}

	if in.DB != nil {
		insertCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := in.DB.InsertReport(insertCtx, r); err != nil {
			log.Printf("intake: history insert for %s: %v", r.Service, err)
		}
		cancel()
	}

	if in.Notifier == nil {
		return
	}
	if res.ThresholdHit {
		log.Printf("intake: %s unhealthy (%d consecutive), notifying engine", r.Service, res.Failures)
		in.Notifier.ServiceDown(r.Service)
	} else if res.Transition && res.Healthy {
		in.Notifier.ServiceRecovered(r.Service)
	}
}
