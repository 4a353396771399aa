// Package worker implements the autonomous work loop: poll an agent for
// claimable work, claim optimistically, execute one item at a time, and
// self-throttle with an hourly rate limit and capped exponential backoff.
// The loop never dies from a work-item failure.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"swarm/pkg/bus"
	"swarm/pkg/event"
	"swarm/pkg/metrics"
)

// ClaimLostError reports that another worker claimed the item first. The
// loop treats it as routine contention, not a failure.
type ClaimLostError struct {
	WorkID string
	Holder string
}

func (e *ClaimLostError) Error() string {
	if e.Holder != "" {
		return fmt.Sprintf("claim lost for %s: held by %s", e.WorkID, e.Holder)
	}
	return fmt.Sprintf("claim lost for %s", e.WorkID)
}

// Agent is the unit of work the loop drives. Claim must be atomic at the
// persistence layer (compare-and-swap); a lost race returns *ClaimLostError.
type Agent interface {
	// ClaimableWork returns the id of the next available item, or "" when
	// there is nothing to do.
	ClaimableWork(ctx context.Context) (string, error)
	// Claim takes exclusive ownership of the item.
	Claim(ctx context.Context, workID string) error
	// Execute runs the full workflow for a claimed item.
	Execute(ctx context.Context, workID string) error
}

// Config tunes the loop. The zero value means "use defaults".
type Config struct {
	MaxPerHour      int
	PollInterval    time.Duration
	BackoffInterval time.Duration
	BaseDelay       time.Duration
	CapDelay        time.Duration
	// ItemTimeout bounds one item's execution; zero means unbounded.
	ItemTimeout time.Duration
}

// withDefaults fills zero fields with the default tuning.
func (c Config) withDefaults() Config {
	if c.MaxPerHour <= 0 {
		c.MaxPerHour = 10
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.BackoffInterval <= 0 {
		c.BackoffInterval = 5 * time.Minute
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 30 * time.Second
	}
	if c.CapDelay <= 0 {
		c.CapDelay = 300 * time.Second
	}
	return c
}

// BackoffDelay computes the no-work delay after the given number of
// consecutive empty polls. The delay doubles per poll; once the next
// doubling would pass the cap it pins to the cap.
func BackoffDelay(consecutiveNoWork int, base, capDelay time.Duration) time.Duration {
	d := base
	for i := 0; i < consecutiveNoWork; i++ {
		d *= 2
		if d >= capDelay {
			return capDelay
		}
	}
	if d*2 > capDelay {
		return capDelay
	}
	return d
}

// Loop runs one agent's autonomous work cycle. All mutable state belongs to
// this instance and is never shared between loops.
type Loop struct {
	agent   Agent
	cfg     Config
	bus     *bus.Bus
	logger  *slog.Logger
	metrics *metrics.Metrics
	id      string

	mu              sync.Mutex
	running         bool
	stop            chan struct{}
	done            chan struct{}
	noWorkCount     int
	processedHour   int
	hourWindowStart time.Time

	wake    chan struct{}
	nowFunc func() time.Time
}

// NewLoop creates a Loop for the given agent, publishing lifecycle and task
// events as the given agent id. bus, logger, and m may be nil.
func NewLoop(agent Agent, id string, cfg Config, b *bus.Bus, logger *slog.Logger, m *metrics.Metrics) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		agent:   agent,
		cfg:     cfg.withDefaults(),
		bus:     b,
		logger:  logger,
		metrics: m,
		id:      id,
		wake:    make(chan struct{}, 1),
		nowFunc: time.Now,
	}
}

// Start launches the loop. Calling Start on a running loop is a no-op.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	l.noWorkCount = 0
	l.processedHour = 0
	l.hourWindowStart = l.nowFunc()
	stop, done := l.stop, l.done
	l.mu.Unlock()

	go l.run(ctx, stop, done)
}

// Stop halts the loop and waits for the in-flight item to finish.
// Idempotent.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.stop)
	done := l.done
	l.mu.Unlock()

	<-done
}

// Running reports whether the loop is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Wake hints the loop that work may have appeared, cutting the current wait
// short. Safe to call at any time; polling remains the safety net.
func (l *Loop) Wake() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) run(ctx context.Context, stop, done chan struct{}) {
	defer close(done)
	l.publish(ctx, event.UrgencyLow, &event.AgentStarted{AgentID: l.id})
	defer l.publish(ctx, event.UrgencyLow, &event.AgentStopped{AgentID: l.id})

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		wait := l.iterate(ctx)
		if !l.sleep(stop, ctx, wait) {
			return
		}
	}
}

// iterate runs one loop body and returns how long to wait before the next.
// Any panic is absorbed and answered with the backoff interval.
func (l *Loop) iterate(ctx context.Context) (wait time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("work loop iteration panicked", "agent", l.id, "panic", r)
			if l.metrics != nil {
				l.metrics.LoopErrors.Inc()
			}
			wait = l.cfg.BackoffInterval
		}
	}()

	now := l.nowFunc()
	l.mu.Lock()
	if now.Sub(l.hourWindowStart) >= time.Hour {
		l.hourWindowStart = now
		l.processedHour = 0
	}
	throttled := l.processedHour >= l.cfg.MaxPerHour
	l.mu.Unlock()

	if throttled {
		if l.metrics != nil {
			l.metrics.LoopThrottled.Inc()
		}
		l.logger.Debug("hourly limit reached, throttling", "agent", l.id, "limit", l.cfg.MaxPerHour)
		return l.cfg.BackoffInterval
	}

	workID, err := l.agent.ClaimableWork(ctx)
	if err != nil {
		l.logger.Warn("claimable work query failed", "agent", l.id, "error", err)
		if l.metrics != nil {
			l.metrics.LoopErrors.Inc()
		}
		return l.cfg.BackoffInterval
	}

	if workID == "" {
		l.mu.Lock()
		n := l.noWorkCount
		l.noWorkCount++
		l.mu.Unlock()
		return BackoffDelay(n, l.cfg.BaseDelay, l.cfg.CapDelay)
	}

	l.mu.Lock()
	l.noWorkCount = 0
	l.mu.Unlock()

	if err := l.agent.Claim(ctx, workID); err != nil {
		var lost *ClaimLostError
		if errors.As(err, &lost) {
			if l.metrics != nil {
				l.metrics.ClaimsLost.Inc()
			}
			l.logger.Debug("lost claim race", "agent", l.id, "work", workID)
			return l.cfg.PollInterval
		}
		l.logger.Warn("claim failed", "agent", l.id, "work", workID, "error", err)
		if l.metrics != nil {
			l.metrics.LoopErrors.Inc()
		}
		return l.cfg.BackoffInterval
	}

	if l.metrics != nil {
		l.metrics.ItemsClaimed.Inc()
	}
	l.publish(ctx, event.UrgencyMedium, &event.TaskClaimed{TaskID: workID, WorkerID: l.id})

	l.execute(ctx, workID)

	l.mu.Lock()
	l.processedHour++
	l.mu.Unlock()
	if l.metrics != nil {
		l.metrics.ItemsProcessed.Inc()
	}
	return l.cfg.PollInterval
}

// execute runs one claimed item synchronously and reports its outcome on
// the bus.
func (l *Loop) execute(ctx context.Context, workID string) {
	runCtx := ctx
	if l.cfg.ItemTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, l.cfg.ItemTimeout)
		defer cancel()
	}

	if err := l.agent.Execute(runCtx, workID); err != nil {
		l.logger.Warn("work item failed", "agent", l.id, "work", workID, "error", err)
		l.publish(ctx, event.UrgencyHigh, &event.TaskFailed{TaskID: workID, WorkerID: l.id, Reason: err.Error()})
		return
	}
	l.publish(ctx, event.UrgencyLow, &event.TaskCompleted{TaskID: workID, WorkerID: l.id})
}

// sleep waits for d, a wake hint, or shutdown. Returns false when the loop
// should exit.
func (l *Loop) sleep(stop chan struct{}, ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-l.wake:
		return true
	case <-stop:
		return false
	case <-ctx.Done():
		return false
	}
}

func (l *Loop) publish(ctx context.Context, urgency event.Urgency, p event.Payload) {
	if l.bus == nil {
		return
	}
	if err := l.bus.Publish(ctx, event.New(l.id, urgency, p)); err != nil {
		l.logger.Warn("event publish failed", "agent", l.id, "error", err)
	}
}
