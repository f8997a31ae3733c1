package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SyncFunc persists whatever state it reads at call time.
type SyncFunc func(ctx context.Context) error

// ThrottleRegistry hands out one ThrottleHandle per key.
type ThrottleRegistry struct {
	ctx     context.Context
	leading bool
	logger  zerolog.Logger

	mu      sync.Mutex
	handles map[int64]*ThrottleHandle
}

// NewThrottleRegistry creates a registry whose timer-fired callbacks run with ctx.
// With leading set, an invoke runs the callback immediately when the previous
// run completed at least one interval ago; otherwise every burst waits for
// the trailing edge of its window.
func NewThrottleRegistry(ctx context.Context, leading bool, logger zerolog.Logger) *ThrottleRegistry {
	return &ThrottleRegistry{
		ctx:     ctx,
		leading: leading,
		logger:  logger,
		handles: make(map[int64]*ThrottleHandle),
	}
}

// Ensure returns the handle for key, creating it on first use.
// Later calls with the same key get the existing handle; their interval and fn are ignored.
func (r *ThrottleRegistry) Ensure(key int64, interval time.Duration, fn SyncFunc) *ThrottleHandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handles[key]; ok {
		return h
	}
	h := &ThrottleHandle{
		key:      key,
		interval: interval,
		fn:       fn,
		leading:  r.leading,
		ctx:      r.ctx,
		logger:   r.logger,
	}
	h.idle = sync.NewCond(&h.mu)
	r.handles[key] = h
	return h
}

// Evict drops the handle for key. Pending executions are cancelled and
// later Invoke calls on the dropped handle do nothing.
func (r *ThrottleRegistry) Evict(key int64) {
	r.mu.Lock()
	h, ok := r.handles[key]
	delete(r.handles, key)
	r.mu.Unlock()

	if ok {
		h.close()
	}
}

// RetryFailed invokes every handle whose last run returned an error.
func (r *ThrottleRegistry) RetryFailed() {
	for _, h := range r.snapshot() {
		if h.Failed() {
			h.Invoke()
		}
	}
}

// Flush runs every armed, pending or failed handle right away and waits for all of them.
func (r *ThrottleRegistry) Flush(ctx context.Context) {
	var wg sync.WaitGroup
	for _, h := range r.snapshot() {
		wg.Add(1)
		go func(h *ThrottleHandle) {
			defer wg.Done()
			h.flush(ctx)
		}(h)
	}
	wg.Wait()
}

func (r *ThrottleRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

func (r *ThrottleRegistry) snapshot() []*ThrottleHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	handles := make([]*ThrottleHandle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	return handles
}

// ThrottleHandle coalesces invocations for one key into bounded-frequency,
// non-overlapping executions of its SyncFunc.
type ThrottleHandle struct {
	key      int64
	interval time.Duration
	fn       SyncFunc
	leading  bool
	ctx      context.Context
	logger   zerolog.Logger

	mu       sync.Mutex
	idle     *sync.Cond
	timer    *time.Timer
	running  bool
	pending  bool
	closed   bool
	failed   bool
	lastDone time.Time
}

func (h *ThrottleHandle) Key() int64 { return h.key }

// Failed reports whether the most recent execution returned an error.
func (h *ThrottleHandle) Failed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failed
}

// Invoke schedules an execution. Calls that land while an execution is armed
// are absorbed by it; calls that land while one is running produce a single
// trailing execution one interval after it completes.
func (h *ThrottleHandle) Invoke() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	if h.running {
		h.pending = true
		return
	}
	if h.timer != nil {
		return
	}

	delay := h.interval
	if h.leading {
		delay = 0
		if !h.lastDone.IsZero() {
			delay = h.interval - time.Since(h.lastDone)
		}
	}
	if delay <= 0 {
		h.running = true
		go h.run(h.ctx)
		return
	}
	h.timer = time.AfterFunc(delay, h.fire)
}

func (h *ThrottleHandle) fire() {
	h.mu.Lock()
	h.timer = nil
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.pending = false
	h.mu.Unlock()

	h.run(h.ctx)
}

func (h *ThrottleHandle) run(ctx context.Context) {
	start := time.Now()
	err := h.call(ctx)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.running = false
	h.lastDone = time.Now()
	h.failed = err != nil
	if err != nil {
		h.logger.Error().Err(err).Int64("job_id", h.key).Msg("throttled sync failed")
	} else {
		h.logger.Debug().Int64("job_id", h.key).Dur("took", time.Since(start)).Msg("throttled sync done")
	}

	if h.pending && !h.closed {
		h.pending = false
		h.timer = time.AfterFunc(h.interval, h.fire)
	}
	h.idle.Broadcast()
}

func (h *ThrottleHandle) call(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("sync panicked: %v", rec)
		}
	}()
	return h.fn(ctx)
}

func (h *ThrottleHandle) flush(ctx context.Context) {
	h.mu.Lock()
	for {
		if h.timer != nil && h.timer.Stop() {
			h.timer = nil
			h.pending = true
		}
		// a non-nil timer that could not be stopped is already firing
		if !h.running && h.timer == nil {
			break
		}
		h.idle.Wait()
	}
	if h.closed || (!h.pending && !h.failed) {
		h.mu.Unlock()
		return
	}
	h.pending = false
	h.running = true
	h.mu.Unlock()

	h.run(ctx)
}

func (h *ThrottleHandle) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	h.pending = false
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.idle.Broadcast()
}
