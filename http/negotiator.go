package http

import (
	"context"

	"go.uber.org/zap"

	x402 "github.com/castlens/x402client"
	"github.com/castlens/x402client/mechanisms/evm"
)

// negotiate answers a 402 challenge: it signs a TransferWithAuthorization
// for the first accepted requirement and retries the request with the
// X-PAYMENT header. The retried response is returned as is.
func (c *Client) negotiate(ctx context.Context, required x402.PaymentRequired, endpoint x402.Endpoint, body []byte) (*RawResponse, error) {
	payer, err := x402.CheckPayer(ctx, c.wallet)
	if err != nil {
		return nil, err
	}

	selected, err := x402.SelectPaymentRequirements(required)
	if err != nil {
		return nil, err
	}
	selected = selected.WithResource(endpoint.URL(c.baseURL))

	prepared, err := c.builder.Prepare(selected, payer)
	if err != nil {
		return nil, err
	}
	sent := false
	defer func() {
		if !sent {
			c.builder.Release(prepared)
		}
	}()

	logger := c.logger.With(
		zap.String("endpoint", endpoint.Name()),
		zap.String("network", selected.Network.String()),
		zap.String("nonce", prepared.Authorization.Nonce))
	if amount, err := evm.FormatAmount(selected.MaxAmountRequired, evm.DefaultDecimals); err == nil {
		logger = logger.With(zap.String("amount", amount))
	}
	logger.Info("payment required, requesting signature")

	signature, err := c.wallet.SignTypedData(ctx, prepared.TypedData)
	if err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeSigningFailed, "wallet failed to sign payment authorization", err)
	}
	if signature == "" {
		return nil, x402.NewPaymentError(x402.ErrCodeSigningFailed, "wallet returned an empty signature", nil)
	}

	header, err := x402.EncodePaymentHeader(prepared.Payload(signature))
	if err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeSigningFailed, "failed to encode payment header", err)
	}

	sent = true
	resp, err := c.send(ctx, endpoint, body, header)
	if err != nil {
		return nil, err
	}
	logger.Debug("paid request completed", zap.Int("status", resp.StatusCode))
	return resp, nil
}
