package exchange

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	tomb "gopkg.in/tomb.v2"
)

const taskChanSize = 256

// dispatchTask is one unit of async work: a REST call the adapter's send
// path must not block on. run does the actual HTTP round trip and reports
// which client order IDs were accepted and which were synchronously
// rejected by the venue's response.
type dispatchTask struct {
	id   uuid.UUID
	kind string
	run  func(ctx context.Context) (accepted []int64, rejected []int64, err error)
}

// DispatchResult reports the outcome of a dispatchTask. id lets the caller
// match an async send/cancel back to the request that issued it,
// independent of auction-id sequencing. Rejected is only populated for
// "place" tasks the venue synchronously refused; the caller re-enters
// these into the FSM the same way a pushed reject_order event would.
type DispatchResult struct {
	ID             uuid.UUID
	Kind           string
	ClientOrderIDs []int64
	Rejected       []int64
	Err            error
}

// Dispatcher is a small supervised worker pool that sends place/cancel
// requests to the venue without blocking the caller. A venue outage
// degrades to bounded queuing on the task channel rather than an
// unbounded goroutine-per-request fan-out.
type Dispatcher struct {
	t       tomb.Tomb
	workers int
	tasks   chan dispatchTask
	results chan DispatchResult
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher with the given worker count.
func NewDispatcher(workers int, logger *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{
		workers: workers,
		tasks:   make(chan dispatchTask, taskChanSize),
		results: make(chan DispatchResult, taskChanSize),
		logger:  logger.With("component", "dispatcher"),
	}
}

// Start launches the worker pool under ctx. Call Stop to drain and shut
// down.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.t.Go(func() error {
			return d.worker(ctx)
		})
	}
}

// Stop signals all workers to exit and waits for them to drain.
func (d *Dispatcher) Stop() error {
	d.t.Kill(nil)
	return d.t.Wait()
}

// Results returns the channel of completed task outcomes.
func (d *Dispatcher) Results() <-chan DispatchResult { return d.results }

// Submit enqueues run for async execution and returns its correlation id.
// If the task queue is full the call blocks until a worker frees a slot or
// ctx is cancelled — this is the adapter's one point of natural
// backpressure against a slow or unreachable venue.
func (d *Dispatcher) Submit(ctx context.Context, kind string, run func(ctx context.Context) (accepted []int64, rejected []int64, err error)) uuid.UUID {
	id := uuid.New()
	task := dispatchTask{id: id, kind: kind, run: run}
	select {
	case d.tasks <- task:
	case <-ctx.Done():
	case <-d.t.Dying():
	}
	return id
}

func (d *Dispatcher) worker(ctx context.Context) error {
	for {
		select {
		case <-d.t.Dying():
			return nil
		case <-ctx.Done():
			return nil
		case task := <-d.tasks:
			accepted, rejected, err := task.run(ctx)
			if err != nil {
				d.logger.Error("dispatch task failed", "id", task.id, "kind", task.kind, "error", err)
			}
			result := DispatchResult{ID: task.id, Kind: task.kind, ClientOrderIDs: accepted, Rejected: rejected, Err: err}
			select {
			case d.results <- result:
			case <-d.t.Dying():
				return nil
			case <-ctx.Done():
				return nil
			}
		}
	}
}
