package gin

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	x402 "github.com/castlens/x402client"
	x402http "github.com/castlens/x402client/http"
)

// PayerKey is the gin context key holding the verified payer address.
const PayerKey = "x402_payer"

// PaymentMiddlewareOptions is the options for the PaymentMiddleware.
type PaymentMiddlewareOptions struct {
	Description       string
	MimeType          string
	MaxTimeoutSeconds int
	Resource          string
	ResourceRootURL   string
	Network           string
	Logger            *zap.Logger
	Nonces            *x402.NonceRegistry
	Now               func() time.Time
	Bypass            func(c *gin.Context) bool
}

// Options is the type for the options for the PaymentMiddleware.
type Options func(*PaymentMiddlewareOptions)

// WithDescription is an option for the PaymentMiddleware to set the description.
func WithDescription(description string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.Description = description
	}
}

// WithMimeType is an option for the PaymentMiddleware to set the mime type.
func WithMimeType(mimeType string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.MimeType = mimeType
	}
}

// WithMaxTimeoutSeconds is an option for the PaymentMiddleware to set the max timeout seconds.
func WithMaxTimeoutSeconds(maxTimeoutSeconds int) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.MaxTimeoutSeconds = maxTimeoutSeconds
	}
}

// WithResource is an option for the PaymentMiddleware to set the resource.
func WithResource(resource string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.Resource = resource
	}
}

// WithResourceRootURL sets the scheme and host prepended to the request path
// to form the resource.
func WithResourceRootURL(resourceRootURL string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.ResourceRootURL = strings.TrimRight(resourceRootURL, "/")
	}
}

// WithNetwork is an option for the PaymentMiddleware to set the network explicitly.
func WithNetwork(network string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.Network = network
	}
}

// WithLogger sets the middleware logger.
func WithLogger(logger *zap.Logger) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.Logger = logger
	}
}

// WithNonceRegistry shares the replay registry between middlewares.
func WithNonceRegistry(registry *x402.NonceRegistry) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.Nonces = registry
	}
}

// WithClock overrides the time used to check validity windows.
func WithClock(now func() time.Time) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.Now = now
	}
}

// WithBypass lets requests for which fn returns true through without
// payment, e.g. status checks for a job that was already paid for.
func WithBypass(fn func(c *gin.Context) bool) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.Bypass = fn
	}
}

// PaymentMiddleware is the Gin middleware for a resource server using the
// x402 exact scheme. amount is in token units (ex: "0.01" for 1 cent of USDC).
// It panics when the network, amount or address is invalid.
func PaymentMiddleware(amount string, address string, opts ...Options) gin.HandlerFunc {
	options := &PaymentMiddlewareOptions{
		MaxTimeoutSeconds: x402.DefaultMaxTimeoutSeconds,
		Network:           "base-sepolia",
		Logger:            zap.NewNop(),
		Now:               time.Now,
	}
	for _, opt := range opts {
		opt(options)
	}

	paywall, err := x402http.NewPaywall(x402http.PaywallConfig{
		Amount:            amount,
		PayTo:             address,
		Network:           options.Network,
		Description:       options.Description,
		MimeType:          options.MimeType,
		MaxTimeoutSeconds: options.MaxTimeoutSeconds,
		Nonces:            options.Nonces,
		Now:               options.Now,
		Logger:            options.Logger,
	})
	if err != nil {
		panic(err)
	}

	return func(c *gin.Context) {
		if options.Bypass != nil && options.Bypass(c) {
			c.Next()
			return
		}

		resource := options.Resource
		if resource == "" {
			resource = options.ResourceRootURL + c.Request.URL.EscapedPath()
		}

		payer, err := paywall.Verify(c.GetHeader(x402.PaymentHeader), resource)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, paywall.Challenge(resource, err.Error()))
			return
		}

		c.Set(PayerKey, payer)
		c.Next()
	}
}
