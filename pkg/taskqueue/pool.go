package taskqueue

import (
	"context"
	"errors"
	"sync"
	"time"
)

const backendMemory = "memory"

// Pool is the in-process backend: a bounded buffer drained by a fixed set of
// workers. Enqueue never blocks.
type Pool struct {
	dispatcher Dispatcher
	opts       PoolOptions
	m          *metrics

	mu      sync.RWMutex
	closed  bool
	started bool
	queue   chan Task
	stop    chan struct{}
	wg      sync.WaitGroup
	randMu  sync.Mutex
}

func NewPool(dispatcher Dispatcher, opts PoolOptions) (*Pool, error) {
	if dispatcher == nil {
		return nil, invalidConfig("dispatcher is required")
	}
	opts.setDefaults()
	return &Pool{
		dispatcher: dispatcher,
		opts:       opts,
		m:          getMetrics(),
		queue:      make(chan Task, opts.Buffer),
		stop:       make(chan struct{}),
	}, nil
}

// Start launches the workers. Tasks run with a context derived from ctx that
// is not cancelled by ctx; use Close to stop.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	base := context.WithoutCancel(ctx)
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker(base)
	}
}

func (p *Pool) Enqueue(ctx context.Context, task Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if task.Attempt == 0 {
		task.Attempt = 1
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.m.enqueueTotal.WithLabelValues(backendMemory, task.Topic, "closed").Inc()
		return ErrQueueClosed
	}
	select {
	case p.queue <- task:
		p.m.enqueueTotal.WithLabelValues(backendMemory, task.Topic, "ok").Inc()
		p.m.pending.WithLabelValues(backendMemory).Set(float64(len(p.queue)))
		return nil
	default:
		p.m.enqueueTotal.WithLabelValues(backendMemory, task.Topic, "full").Inc()
		return ErrQueueFull
	}
}

// Close stops accepting tasks, lets workers drain the buffer and waits for
// them until ctx expires. Pending retry sleeps are abandoned.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	close(p.stop)
	started := p.started
	p.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for task := range p.queue {
		p.m.pending.WithLabelValues(backendMemory).Set(float64(len(p.queue)))
		p.run(ctx, task)
	}
}

func (p *Pool) run(ctx context.Context, task Task) {
	log := p.opts.Logger
	for {
		err := p.dispatchOnce(ctx, task)
		if err == nil {
			return
		}
		if !p.opts.Retry.ShouldRetry(err, task.Attempt) {
			p.m.deadTotal.WithLabelValues(backendMemory, task.Topic).Inc()
			log.WithError(err).WithFields(taskFields(task)).Warn("taskqueue: task failed terminally")
			return
		}

		delay := p.opts.Retry.Backoff(task.Attempt) + p.jitter()
		log.WithError(err).WithFields(taskFields(task)).WithField("retry_in", delay.String()).Info("taskqueue: task will be retried")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-p.stop:
			timer.Stop()
			log.WithFields(taskFields(task)).Warn("taskqueue: retry abandoned on shutdown")
			return
		}
		task.Attempt++
	}
}

func (p *Pool) dispatchOnce(ctx context.Context, task Task) (err error) {
	dispatchCtx := ctx
	if p.opts.DispatchTimeout > 0 {
		var cancel context.CancelFunc
		dispatchCtx, cancel = context.WithTimeout(ctx, p.opts.DispatchTimeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(errors.New("panic in task handler"))
			p.opts.Logger.WithField("panic", r).WithFields(taskFields(task)).Error("taskqueue: handler panicked")
		}
		result := "success"
		if err != nil {
			result = "failure"
		}
		p.m.recordDispatch(backendMemory, task.Topic, result, time.Since(start))
	}()

	return p.dispatcher.Dispatch(dispatchCtx, task)
}

func (p *Pool) jitter() time.Duration {
	p.randMu.Lock()
	defer p.randMu.Unlock()
	return jitter(p.opts.Rand, p.opts.Retry.JitterMax)
}
