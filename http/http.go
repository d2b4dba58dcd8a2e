// Package http implements the client side of the x402 payment flow over
// HTTP: plain requests, 402 negotiation with a wallet signature, and
// detached polling of asynchronous backend jobs. Paywall is the matching
// server side used by the gin and net/http middlewares.
package http

import (
	"errors"

	x402 "github.com/castlens/x402client"
)

// InFlight reports whether err signals a job that is still running.
func InFlight(err error) (*x402.JobInFlightError, bool) {
	var inFlight *x402.JobInFlightError
	if errors.As(err, &inFlight) {
		return inFlight, true
	}
	return nil, false
}
