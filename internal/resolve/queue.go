package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"deadwax/internal/config"
	"deadwax/internal/logging"
	"deadwax/internal/services"
)

const (
	defaultRateInterval = 1050 * time.Millisecond
	defaultWaitLimit    = 60 * time.Second
)

// requestState tracks where a queued call is in its lifecycle.
type requestState int32

const (
	stateQueued requestState = iota
	stateDispatched
	stateCompleted
	stateFailed
)

type request struct {
	key   string
	run   func(context.Context) (any, error)
	state atomic.Int32

	done  chan struct{}
	value any
	err   error
}

// Queue serializes outbound catalog calls behind a single dispatch worker.
// The worker dequeues FIFO and sleeps a fixed interval after every dispatch,
// so the public rate budget holds no matter how many scan workers are
// blocked waiting. Calls are coalesced by key: a submit for a key that is
// already queued or in flight attaches to the existing call, and every
// waiter receives the one shared result.
type Queue struct {
	interval  time.Duration
	waitLimit time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	inflight map[string]*request
	fifo     []*request

	wake chan struct{}
	stop chan struct{}
	done chan struct{}

	closeOnce sync.Once
	baseCtx   context.Context
	baseStop  context.CancelFunc

	dispatched atomic.Int64
	completed  atomic.Int64
	failed     atomic.Int64
	timedOut   atomic.Int64
	attached   atomic.Int64
}

// QueueStats is a point-in-time snapshot for the progress surface.
type QueueStats struct {
	Depth      int
	Dispatched int64
	Completed  int64
	Failed     int64
	TimedOut   int64
	Attached   int64
}

// NewQueue creates the dispatcher and starts its worker. Callers must Close
// it when done.
func NewQueue(cfg *config.Config, logger *slog.Logger) *Queue {
	interval := defaultRateInterval
	if cfg != nil && cfg.Resolve.RateIntervalMS > 0 {
		interval = time.Duration(cfg.Resolve.RateIntervalMS) * time.Millisecond
	}
	waitLimit := defaultWaitLimit
	if cfg != nil && cfg.Resolve.QueueTimeoutSeconds > 0 {
		waitLimit = time.Duration(cfg.Resolve.QueueTimeoutSeconds) * time.Second
	}
	baseCtx, baseStop := context.WithCancel(context.Background())
	q := &Queue{
		interval:  interval,
		waitLimit: waitLimit,
		logger:    logging.NewComponentLogger(logger, "resolve.queue"),
		inflight:  make(map[string]*request),
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		baseCtx:   baseCtx,
		baseStop:  baseStop,
	}
	go q.worker()
	return q
}

// Submit runs fn through the dispatch worker and blocks for the shared
// result. The wait is bounded: on expiry the caller gets a timeout error and
// stops waiting, while the call itself stays queued for any other waiters.
func (q *Queue) Submit(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	q.mu.Lock()
	select {
	case <-q.stop:
		q.mu.Unlock()
		return nil, services.Wrap(services.ErrTransient, "resolve", "queue", "queue closed", nil)
	default:
	}
	req, ok := q.inflight[key]
	if ok {
		q.attached.Add(1)
	} else {
		req = &request{
			key:  key,
			run:  fn,
			done: make(chan struct{}),
		}
		q.inflight[key] = req
		q.fifo = append(q.fifo, req)
		select {
		case q.wake <- struct{}{}:
		default:
		}
	}
	q.mu.Unlock()

	timer := time.NewTimer(q.waitLimit)
	defer timer.Stop()
	select {
	case <-req.done:
		return req.value, req.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		q.timedOut.Add(1)
		q.logger.Warn("queue wait timed out",
			logging.String("key", key),
			logging.String("state", stateName(requestState(req.state.Load()))),
			logging.String("wait", q.waitLimit.String()))
		return nil, services.WithCode(services.CodeMetadataTimeout,
			services.Wrap(services.ErrTimeout, "resolve", "queue",
				fmt.Sprintf("no result for %q within %s", key, q.waitLimit), nil))
	}
}

// Stats snapshots queue counters.
func (q *Queue) Stats() QueueStats {
	q.mu.Lock()
	depth := len(q.fifo)
	q.mu.Unlock()
	return QueueStats{
		Depth:      depth,
		Dispatched: q.dispatched.Load(),
		Completed:  q.completed.Load(),
		Failed:     q.failed.Load(),
		TimedOut:   q.timedOut.Load(),
		Attached:   q.attached.Load(),
	}
}

// Close stops the worker and fails every call that was still waiting for
// dispatch.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.stop)
		q.baseStop()
		<-q.done

		q.mu.Lock()
		pending := q.fifo
		q.fifo = nil
		for _, req := range pending {
			delete(q.inflight, req.key)
		}
		q.mu.Unlock()
		for _, req := range pending {
			req.err = services.Wrap(services.ErrTransient, "resolve", "queue", "queue closed", nil)
			req.state.Store(int32(stateFailed))
			close(req.done)
		}
	})
}

func (q *Queue) worker() {
	defer close(q.done)
	for {
		req := q.next()
		if req == nil {
			return
		}
		req.state.Store(int32(stateDispatched))
		q.dispatched.Add(1)

		// The correlation id ties this dispatch to any provider logs that
		// derive their logger from the same context.
		runCtx := services.WithRequestID(q.baseCtx, uuid.NewString()[:8])
		value, err := req.run(runCtx)

		q.mu.Lock()
		req.value = value
		req.err = err
		delete(q.inflight, req.key)
		q.mu.Unlock()

		if err != nil {
			req.state.Store(int32(stateFailed))
			q.failed.Add(1)
			logging.WithContext(runCtx, q.logger).Debug("dispatch failed",
				logging.String("key", req.key), logging.Error(err))
		} else {
			req.state.Store(int32(stateCompleted))
			q.completed.Add(1)
		}
		close(req.done)

		select {
		case <-time.After(q.interval):
		case <-q.stop:
			return
		}
	}
}

// next pops the FIFO head, blocking until work arrives or the queue stops.
func (q *Queue) next() *request {
	for {
		q.mu.Lock()
		if len(q.fifo) > 0 {
			req := q.fifo[0]
			q.fifo = q.fifo[1:]
			q.mu.Unlock()
			return req
		}
		q.mu.Unlock()
		select {
		case <-q.stop:
			return nil
		case <-q.wake:
		}
	}
}

// submit adapts Queue.Submit to a typed thunk.
func submit[T any](ctx context.Context, q *Queue, key string, fn func(context.Context) (T, error)) (T, error) {
	value, err := q.Submit(ctx, key, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	result, ok := value.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("queue result for %q: unexpected type %T", key, value)
	}
	return result, nil
}

func stateName(s requestState) string {
	switch s {
	case stateQueued:
		return "queued"
	case stateDispatched:
		return "dispatched"
	case stateCompleted:
		return "completed"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
