package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	x402 "github.com/castlens/x402client"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 10 << 20

// RawResponse is a fully read HTTP response.
type RawResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// send issues one request for endpoint. paymentHeader is attached as
// X-PAYMENT when non-empty. Failures to reach the server are transport
// errors; any status code is returned as a RawResponse.
func (c *Client) send(ctx context.Context, endpoint x402.Endpoint, body []byte, paymentHeader string) (*RawResponse, error) {
	if endpoint.HasBody() && body == nil {
		body = endpoint.DefaultBody()
	}
	if !endpoint.HasBody() {
		body = nil
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, endpoint.Method(), endpoint.URL(c.baseURL), reader)
	if err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeTransport, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if paymentHeader != "" {
		req.Header.Set(x402.PaymentHeader, paymentHeader)
	}
	if c.signer != nil {
		c.signer.Sign(req, body)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeTransport, "request failed", err).
			WithDetail("endpoint", endpoint.Name())
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeTransport, "failed to read response body", err)
	}

	c.logger.Debug("request completed",
		zap.String("endpoint", endpoint.Name()),
		zap.String("method", endpoint.Method()),
		zap.Int("status", resp.StatusCode),
		zap.Bool("paid", paymentHeader != ""),
		zap.Int("payment_header_len", len(paymentHeader)))

	return &RawResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// fetchEnvelope re-issues the request for a polling attempt. Anything other
// than a decodable 200 envelope is reported as an error so the session
// treats it as transient.
func (c *Client) fetchEnvelope(ctx context.Context, endpoint x402.Endpoint, body []byte) (*x402.Envelope, error) {
	raw, err := c.send(ctx, endpoint, body, "")
	if err != nil {
		return nil, err
	}
	if raw.StatusCode != http.StatusOK {
		return nil, x402.NewPaymentError(x402.ErrCodeUnexpectedStatus,
			fmt.Sprintf("poll returned status %d", raw.StatusCode), nil)
	}
	return x402.DecodeEnvelope(raw.Body)
}
