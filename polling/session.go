// Package polling drives background sessions that poll an asynchronous job
// until it reaches a terminal state or runs out of attempts.
package polling

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	x402 "github.com/castlens/x402client"
)

// Fetcher performs one poll request. A returned error is treated as
// transient and the session keeps polling.
type Fetcher func(ctx context.Context) (*x402.Envelope, error)

type settings struct {
	config   Config
	observer Observer
	logger   *zap.Logger
	jobKey   string
}

// Option configures a session
type Option func(*settings)

// WithConfig sets the backoff and attempt budget.
func WithConfig(cfg Config) Option {
	return func(s *settings) {
		s.config = cfg
	}
}

// WithObserver registers the observer notified on status changes.
func WithObserver(o Observer) Option {
	return func(s *settings) {
		s.observer = o
	}
}

// WithLogger sets the session logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithJobKey seeds the job key reported before the backend sends one.
func WithJobKey(jobKey string) Option {
	return func(s *settings) {
		s.jobKey = jobKey
	}
}

// Handle controls a detached polling session. It satisfies
// x402.SessionHandle.
type Handle[T any] struct {
	id       string
	cancel   context.CancelFunc
	done     chan struct{}
	observer Observer

	canceled atomic.Bool

	mu       sync.Mutex
	jobKey   string
	status   x402.JobStatus
	value    T
	err      error
	stale    T
	hasStale bool
}

var _ x402.SessionHandle = (*Handle[struct{}])(nil)

// Start launches a session on its own goroutine. The session stops when
// parent is canceled, Cancel is called, or a terminal state is reached.
func Start[T any](parent context.Context, fetch Fetcher, opts ...Option) *Handle[T] {
	s := settings{config: DefaultConfig(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&s)
	}
	s.config = s.config.WithDefaults()

	ctx, cancel := context.WithCancel(parent)
	h := &Handle[T]{
		id:       uuid.NewString(),
		cancel:   cancel,
		done:     make(chan struct{}),
		observer: s.observer,
		jobKey:   s.jobKey,
		status:   x402.JobPending,
	}

	go h.run(ctx, fetch, s)
	return h
}

// ID returns the session identifier.
func (h *Handle[T]) ID() string { return h.id }

// Done is closed once the session has stopped.
func (h *Handle[T]) Done() <-chan struct{} { return h.done }

// Cancel stops the session. Once Cancel returns no new observer call
// starts; a call already running may finish. Cancel may be called from
// inside Notify.
func (h *Handle[T]) Cancel() {
	h.canceled.Store(true)
	h.cancel()
}

// Wait blocks until the session stops or ctx is done and returns the final
// value or the terminal error.
func (h *Handle[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.value, h.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Latest returns the most recent stale value delivered by an updating
// response, if any.
func (h *Handle[T]) Latest() (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stale, h.hasStale
}

// JobKey returns the last job key seen.
func (h *Handle[T]) JobKey() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.jobKey
}

// Status returns the last job status seen.
func (h *Handle[T]) Status() x402.JobStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

func (h *Handle[T]) notify(status, jobKey, message string) {
	if h.canceled.Load() || h.observer == nil {
		return
	}
	h.observer.Notify(status, jobKey, message)
}

func (h *Handle[T]) record(status x402.JobStatus, jobKey string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if status != x402.JobNone {
		h.status = status
	}
	if jobKey != "" {
		h.jobKey = jobKey
	}
	return h.jobKey
}

func (h *Handle[T]) finish(value T, err error) {
	h.mu.Lock()
	h.value = value
	h.err = err
	h.mu.Unlock()
}

func (h *Handle[T]) run(ctx context.Context, fetch Fetcher, s settings) {
	defer close(h.done)
	defer h.cancel()

	var zero T
	logger := s.logger.With(zap.String("session_id", h.id))
	backoff := NewBackoff(s.config)
	refreshed := false
	var waited time.Duration

	logger.Debug("polling session started", zap.String("job_key", s.jobKey), zap.Int("max_attempts", s.config.MaxAttempts))

	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		wait := backoff.Next()
		waited += wait
		if !sleep(ctx, wait) {
			logger.Debug("polling session canceled", zap.Int("attempt", attempt))
			h.finish(zero, ctx.Err())
			return
		}

		env, err := fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				h.finish(zero, ctx.Err())
				return
			}
			logger.Debug("poll attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		st := evaluate[T](env)
		jobKey := h.record(st.status, st.jobKey)

		switch st.kind {
		case stepContinue:
			if st.status.InFlight() {
				h.notify(string(st.status), jobKey, st.message)
			}
		case stepStale:
			h.mu.Lock()
			h.stale, h.hasStale = st.value, true
			h.mu.Unlock()
			h.notify(string(x402.JobUpdating), jobKey, st.message)
			if !refreshed {
				refreshed = true
				backoff.Reset()
				attempt = 0
			}
		case stepDone:
			logger.Debug("polling session completed", zap.Int("attempt", attempt), zap.String("job_key", jobKey))
			h.finish(st.value, nil)
			h.notify(string(x402.JobCompleted), jobKey, st.message)
			return
		case stepFailed:
			logger.Info("polled job failed", zap.String("job_key", jobKey), zap.Error(st.err))
			h.finish(zero, st.err)
			h.notify(string(x402.JobFailed), jobKey, st.message)
			return
		}
	}

	jobKey := h.JobKey()
	err := x402.NewPaymentError(x402.ErrCodePollingExhausted,
		fmt.Sprintf("job did not complete within approximately %s; it may still be processing, try again later", waited.Round(time.Second)),
		nil).
		WithDetail("job_key", jobKey).
		WithDetail("attempts", s.config.MaxAttempts)
	logger.Info("polling attempts exhausted", zap.String("job_key", jobKey), zap.Int("attempts", s.config.MaxAttempts))
	h.finish(zero, err)
	h.notify(StatusExhausted, jobKey, err.Message)
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

type stepKind int

const (
	stepContinue stepKind = iota
	stepStale
	stepDone
	stepFailed
)

type step[T any] struct {
	kind    stepKind
	status  x402.JobStatus
	jobKey  string
	message string
	value   T
	err     error
}

// evaluate classifies one poll response.
func evaluate[T any](env *x402.Envelope) step[T] {
	if !env.Success {
		msg := env.ErrorMessage()
		if info, ok := x402.ParseJobStatusError(msg, ""); ok && x402.ParseJobStatus(string(info.Status)) != x402.JobFailed {
			return step[T]{kind: stepContinue, status: x402.ParseJobStatus(string(info.Status)), jobKey: info.JobKey, message: info.Message}
		}
		if x402.IsLegacyPending(msg) {
			return step[T]{kind: stepContinue, status: x402.JobPending, message: msg}
		}
		return step[T]{
			kind:    stepFailed,
			status:  x402.JobFailed,
			message: msg,
			err:     x402.NewPaymentError(x402.ErrCodeJobFailed, msg, nil),
		}
	}

	if !env.HasData() {
		return step[T]{kind: stepContinue}
	}

	state := x402.DecodeJobState(env.Data)
	out := step[T]{status: state.Status, jobKey: state.JobKey, message: state.Message}

	switch state.Status {
	case x402.JobPending, x402.JobProcessing:
		out.kind = stepContinue
	case x402.JobCompleted:
		out.kind = stepContinue
		if !state.HasResultFields() {
			return out
		}
		if v, err := x402.DecodeResult[T](state.Payload); err == nil {
			out.kind, out.value = stepDone, v
		}
	case x402.JobFailed:
		out.kind = stepFailed
		out.message = state.FailureMessage()
		out.err = x402.NewPaymentError(x402.ErrCodeJobFailed, out.message, nil).WithDetail("job_key", state.JobKey)
	case x402.JobUpdating:
		out.kind = stepContinue
		if state.Inner == nil {
			return out
		}
		if v, err := x402.DecodeResult[T](state.Inner); err == nil {
			out.kind, out.value = stepStale, v
		}
	default:
		v, err := x402.DecodeResult[T](env.Data)
		if err != nil {
			out.kind = stepFailed
			out.err = x402.NewPaymentError(x402.ErrCodeMalformedResponse, "failed to decode job result", err)
			return out
		}
		out.kind, out.value = stepDone, v
	}
	return out
}
