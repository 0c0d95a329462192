package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Store abstracts the persistence layer read by the selector and written by the dispatcher.
type Store interface {
	// ListPendingWorkOrders returns draft and working orders joined to their agent and model.
	ListPendingWorkOrders(ctx context.Context) ([]*WorkOrder, error)
	UpdateWorkOrderStatus(ctx context.Context, id int64, status WorkOrderStatus) error
}

// DefaultPollInterval is the pause between the end of one cycle and the start of the next.
const DefaultPollInterval = 30 * time.Second

// SchedulerState is the lifecycle state of the polling loop.
type SchedulerState string

const (
	SchedulerStateIdle    SchedulerState = "idle"
	SchedulerStateRunning SchedulerState = "running"
	SchedulerStateStopped SchedulerState = "stopped"
)

// CycleReport summarises one poll cycle.
type CycleReport struct {
	StartedAt time.Time
	EndedAt   time.Time
	Selected  int
	Succeeded int
	Failed    int
	Skipped   int
	Err       error
}

// CycleObserver is notified after every cycle, including failed ones.
type CycleObserver interface {
	ObserveCycle(report CycleReport)
}

// SchedulerStatus is a point-in-time view of the loop.
type SchedulerStatus struct {
	State     SchedulerState
	Cycles    uint64
	Interval  time.Duration
	Workers   int
	LastCycle *CycleReport
}

// Scheduler repeats selection and dispatch on a fixed cadence.
type Scheduler struct {
	selector   *Selector
	dispatcher *Dispatcher
	logger     *slog.Logger

	interval time.Duration
	workers  int
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	cycleObs CycleObserver

	running sync.Map // workOrderID -> struct{}{}

	mu     sync.RWMutex
	state  SchedulerState
	cycles uint64
	last   *CycleReport
	cancel context.CancelFunc
	done   chan struct{}
}

// SchedulerOption customises a Scheduler.
type SchedulerOption func(*Scheduler)

// WithInterval sets the delay between cycles.
func WithInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithWorkers bounds how many work orders of a cycle are dispatched concurrently.
func WithWorkers(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithClock overrides the source of the cycle timestamp.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		s.now = now
	}
}

// WithSleep overrides the inter-cycle pause. It must return a non-nil error once ctx is done.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) SchedulerOption {
	return func(s *Scheduler) {
		s.sleep = sleep
	}
}

// WithCycleObserver registers a cycle observer.
func WithCycleObserver(obs CycleObserver) SchedulerOption {
	return func(s *Scheduler) {
		s.cycleObs = obs
	}
}

// NewScheduler constructs a scheduler with the given dependencies.
func NewScheduler(selector *Selector, dispatcher *Dispatcher, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		selector:   selector,
		dispatcher: dispatcher,
		logger:     logger,
		interval:   DefaultPollInterval,
		workers:    1,
		now:        time.Now,
		sleep:      sleepContext,
		state:      SchedulerStateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the loop in the background until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.Run(runCtx)
	}()
}

// Stop asks the loop to finish its current cycle and returns a context that is done once it has.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	ctx, release := context.WithCancel(context.Background())
	if cancel == nil {
		release()
		return ctx
	}
	cancel()
	go func() {
		<-done
		release()
	}()
	return ctx
}

// Run blocks, executing a cycle and then pausing, until ctx is done.
// Cycle failures are logged and never end the loop.
func (s *Scheduler) Run(ctx context.Context) {
	s.setState(SchedulerStateRunning)
	defer s.setState(SchedulerStateStopped)

	s.logger.Info("work order scheduler started", "interval", s.interval, "workers", s.workers)
	for ctx.Err() == nil {
		report, _ := s.RunCycle(ctx)
		if report.Err != nil {
			s.logger.Error("scheduler cycle failed", "err", report.Err, "retry_in", s.interval)
		}
		if err := s.sleep(ctx, s.interval); err != nil {
			break
		}
	}
	s.logger.Info("shutting down scheduler")
}

// RunCycle selects eligible work orders and dispatches each of them once.
// Cancelling ctx does not abort dispatches already started; each keeps its own timeout.
// A panic inside the cycle is recovered and reported as the cycle error.
func (s *Scheduler) RunCycle(ctx context.Context) (report CycleReport, err error) {
	now := s.now()
	report.StartedAt = now
	defer func() {
		if r := recover(); r != nil {
			report.Err = fmt.Errorf("unexpected panic in cycle: %v", r)
			report.EndedAt = s.now()
			err = report.Err
		}
		s.recordCycle(report)
	}()
	cycleCtx := context.WithoutCancel(ctx)

	orders, err := s.selector.Select(cycleCtx, now)
	if err != nil {
		report.Err = err
		report.EndedAt = s.now()
		return report, err
	}
	report.Selected = len(orders)

	for _, o := range s.dispatchAll(cycleCtx, orders, now) {
		switch {
		case o.Succeeded():
			report.Succeeded++
		case o.ExecutionStatus() == ExecutionStatusSkipped || o.ErrorKind() == "already_running":
			report.Skipped++
		default:
			report.Failed++
		}
	}
	report.EndedAt = s.now()
	return report, nil
}

// Status returns the current loop state and the last cycle report.
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := SchedulerStatus{
		State:    s.state,
		Cycles:   s.cycles,
		Interval: s.interval,
		Workers:  s.workers,
	}
	if s.last != nil {
		last := *s.last
		st.LastCycle = &last
	}
	return st
}

func (s *Scheduler) dispatchAll(ctx context.Context, orders []*WorkOrder, now time.Time) []Outcome {
	outcomes := make([]Outcome, len(orders))
	if s.workers <= 1 {
		for i, wo := range orders {
			outcomes[i] = s.dispatchOne(ctx, wo, now)
		}
		return outcomes
	}

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, wo := range orders {
		g.Go(func() error {
			outcomes[i] = s.dispatchOne(ctx, wo, now)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (s *Scheduler) dispatchOne(ctx context.Context, wo *WorkOrder, now time.Time) (outcome Outcome) {
	if _, loaded := s.running.LoadOrStore(wo.ID, struct{}{}); loaded {
		s.logger.Info("skipping work order because it is already running", "work_order", wo.Sequence)
		return Outcome{WorkOrderID: wo.ID, Sequence: wo.Sequence, StartedAt: now, EndedAt: now, Err: ErrAlreadyRunning}
	}
	defer s.running.Delete(wo.ID)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("work order dispatch panicked", "work_order", wo.Sequence, "panic", r)
			outcome = Outcome{WorkOrderID: wo.ID, Sequence: wo.Sequence, StartedAt: now, EndedAt: s.now(), Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return s.dispatcher.Run(ctx, wo, now)
}

func (s *Scheduler) recordCycle(report CycleReport) {
	s.mu.Lock()
	s.cycles++
	s.last = &report
	s.mu.Unlock()

	s.logger.Debug("scheduler cycle finished",
		"selected", report.Selected,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"skipped", report.Skipped)
	if s.cycleObs != nil {
		s.cycleObs.ObserveCycle(report)
	}
}

func (s *Scheduler) setState(state SchedulerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
