package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	x402 "github.com/castlens/x402client"
	"github.com/castlens/x402client/polling"
)

// Result is a successful dispatch. When Stale is set Value came from an
// updating response and Refresh polls for the fresh value in the background.
type Result[T any] struct {
	Value   T
	Stale   bool
	Refresh *polling.Handle[T]
}

type dispatchSettings struct {
	observer polling.Observer
}

// DispatchOption configures a single dispatch
type DispatchOption func(*dispatchSettings)

// WithSessionObserver overrides the client observer for sessions started
// by this dispatch.
func WithSessionObserver(o polling.Observer) DispatchOption {
	return func(s *dispatchSettings) {
		s.observer = o
	}
}

// Dispatch calls endpoint and decodes the result as T.
//
// A 402 is answered once with a signed payment. A pending or processing job
// returns a *x402.JobInFlightError immediately while a detached session keeps
// polling; use PendingHandle to reach it. An updating job returns the stale
// value with Stale set.
func Dispatch[T any](ctx context.Context, c *Client, endpoint x402.Endpoint, body []byte, opts ...DispatchOption) (*Result[T], error) {
	var settings dispatchSettings
	for _, opt := range opts {
		opt(&settings)
	}

	logger := c.logger.With(zap.String("endpoint", endpoint.Name()), zap.String("method", endpoint.Method()))

	raw, err := c.send(ctx, endpoint, body, "")
	if err != nil {
		return nil, err
	}

	if raw.StatusCode == http.StatusPaymentRequired {
		required, err := x402.ParsePaymentRequired(raw.Body)
		if err != nil {
			return nil, err
		}
		raw, err = c.negotiate(ctx, required, endpoint, body)
		if err != nil {
			return nil, err
		}
		if raw.StatusCode == http.StatusPaymentRequired {
			logger.Warn("payment was not accepted")
			return nil, rejectedPayment(raw.Body)
		}
	}

	if raw.StatusCode != http.StatusOK {
		return nil, x402.NewPaymentError(x402.ErrCodeUnexpectedStatus,
			fmt.Sprintf("HTTP error! status: %d", raw.StatusCode), nil).
			WithDetail("status", raw.StatusCode)
	}

	env, err := x402.DecodeEnvelope(raw.Body)
	if err != nil {
		return nil, err
	}

	return interpret[T](c, endpoint, body, env, settings, logger)
}

// Resume starts a detached session for a job reported earlier, for example
// one restored from a job store.
func Resume[T any](c *Client, endpoint x402.Endpoint, body []byte, jobKey string, opts ...DispatchOption) *polling.Handle[T] {
	var settings dispatchSettings
	for _, opt := range opts {
		opt(&settings)
	}
	return startSession[T](c, endpoint, body, jobKey, settings)
}

// PendingHandle returns the detached session carried by a JobInFlightError.
func PendingHandle[T any](err error) (*polling.Handle[T], bool) {
	var inFlight *x402.JobInFlightError
	if !errors.As(err, &inFlight) || inFlight.Session == nil {
		return nil, false
	}
	h, ok := inFlight.Session.(*polling.Handle[T])
	return h, ok
}

func interpret[T any](c *Client, endpoint x402.Endpoint, body []byte, env *x402.Envelope, settings dispatchSettings, logger *zap.Logger) (*Result[T], error) {
	if !env.Success {
		msg := env.ErrorMessage()
		if info, ok := x402.ParseJobStatusError(msg, ""); ok && info.Status != x402.JobFailed {
			return nil, inFlight[T](c, endpoint, body, info.Status, info.JobKey, info.Message, settings, logger)
		}
		if x402.IsLegacyPending(msg) {
			return nil, inFlight[T](c, endpoint, body, x402.JobPending, "", msg, settings, logger)
		}
		return nil, x402.NewPaymentError(x402.ErrCodeAPI, msg, nil)
	}

	if !env.HasData() {
		return nil, x402.NewPaymentError(x402.ErrCodeMalformedResponse, "response has no data", nil)
	}

	state := x402.DecodeJobState(env.Data)
	switch state.Status {
	case x402.JobPending, x402.JobProcessing:
		return nil, inFlight[T](c, endpoint, body, state.Status, state.JobKey, state.Message, settings, logger)

	case x402.JobCompleted:
		if state.HasResultFields() {
			if v, err := x402.DecodeResult[T](state.Payload); err == nil {
				return &Result[T]{Value: v}, nil
			}
		}
		logger.Debug("completed job has no final result yet", zap.String("job_key", state.JobKey))
		return nil, inFlight[T](c, endpoint, body, x402.JobProcessing, state.JobKey, state.Message, settings, logger)

	case x402.JobFailed:
		return nil, x402.NewPaymentError(x402.ErrCodeJobFailed, state.FailureMessage(), nil).
			WithDetail("job_key", state.JobKey)

	case x402.JobUpdating:
		if state.Inner != nil {
			if v, err := x402.DecodeResult[T](state.Inner); err == nil {
				h := startSession[T](c, endpoint, body, state.JobKey, settings)
				logger.Debug("serving stale result while refreshing",
					zap.String("job_key", state.JobKey), zap.String("session_id", h.ID()))
				return &Result[T]{Value: v, Stale: true, Refresh: h}, nil
			}
		}
		return nil, inFlight[T](c, endpoint, body, x402.JobUpdating, state.JobKey, state.Message, settings, logger)
	}

	v, err := x402.DecodeResult[T](env.Data)
	if err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeMalformedResponse, "failed to decode response data", err)
	}
	return &Result[T]{Value: v}, nil
}

func inFlight[T any](c *Client, endpoint x402.Endpoint, body []byte, status x402.JobStatus, jobKey, message string, settings dispatchSettings, logger *zap.Logger) error {
	h := startSession[T](c, endpoint, body, jobKey, settings)
	logger.Info("job in flight, polling in background",
		zap.String("status", string(status)),
		zap.String("job_key", jobKey),
		zap.String("session_id", h.ID()))
	return &x402.JobInFlightError{
		Status:  status,
		JobKey:  jobKey,
		Message: message,
		Session: h,
	}
}

func startSession[T any](c *Client, endpoint x402.Endpoint, body []byte, jobKey string, settings dispatchSettings) *polling.Handle[T] {
	observer := c.observer
	if settings.observer != nil {
		observer = settings.observer
	}

	body = append([]byte(nil), body...)
	fetch := func(ctx context.Context) (*x402.Envelope, error) {
		return c.fetchEnvelope(ctx, endpoint, body)
	}

	h := polling.Start[T](c.ctx, fetch,
		polling.WithConfig(c.pollConfig),
		polling.WithObserver(observer),
		polling.WithLogger(c.logger.With(zap.String("endpoint", endpoint.Name()))),
		polling.WithJobKey(jobKey))
	c.track(h)
	return h
}

func rejectedPayment(body []byte) error {
	msg := "payment was not accepted"
	if required, err := x402.ParsePaymentRequired(body); err == nil && required.Error != "" {
		msg = required.Error
	}
	return x402.NewPaymentError(x402.ErrCodeUnexpectedStatus, msg, nil).
		WithDetail("status", http.StatusPaymentRequired)
}
