package stdlib

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	x402 "github.com/castlens/x402client"
	x402http "github.com/castlens/x402client/http"
)

type payerKey struct{}

// PayerFromContext returns the verified payer address stored by
// PaymentMiddleware.
func PayerFromContext(ctx context.Context) (string, bool) {
	payer, ok := ctx.Value(payerKey{}).(string)
	return payer, ok
}

// PaymentMiddlewareOptions is the options for the PaymentMiddleware.
type PaymentMiddlewareOptions struct {
	Description       string
	MimeType          string
	MaxTimeoutSeconds int
	CustomPaywallHTML string
	Resource          string
	ResourceRootURL   string
	Network           string
	Logger            *zap.Logger
	Nonces            *x402.NonceRegistry
	Now               func() time.Time
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

// WithCustomPaywallHTML is an option for the PaymentMiddleware to set the custom paywall HTML.
func WithCustomPaywallHTML(customPaywallHTML string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.CustomPaywallHTML = customPaywallHTML
	}
}

// WithResource is an option for the PaymentMiddleware to set the resource.
func WithResource(resource string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.Resource = resource
	}
}

// WithResourceRootURL is an option for the PaymentMiddleware to set the resource root URL.
func WithResourceRootURL(resourceRootURL string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.ResourceRootURL = strings.TrimRight(resourceRootURL, "/")
	}
}

// WithNetwork is an option for the PaymentMiddleware to set the network (chain).
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

// PaymentMiddleware is the Go standard library middleware for a resource
// server using the x402 exact scheme. amount is in token units (ex: "0.01"
// for 1 cent of USDC). It panics when the network, amount or address is
// invalid.
func PaymentMiddleware(amount string, address string, opts ...Options) func(http.Handler) http.Handler {
	options := &PaymentMiddlewareOptions{
		MaxTimeoutSeconds: x402.DefaultMaxTimeoutSeconds,
		Network:           "base-sepolia",
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

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resource := options.Resource
			if resource == "" {
				resource = options.ResourceRootURL + r.URL.EscapedPath()
			}

			header := r.Header.Get(x402.PaymentHeader)
			if header == "" && isWebBrowser(r) {
				html := options.CustomPaywallHTML
				if html == "" {
					html = getPaywallHtml(options)
				}
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.WriteHeader(http.StatusPaymentRequired)
				_, _ = w.Write([]byte(html))
				return
			}

			payer, err := paywall.Verify(header, resource)
			if err != nil {
				writePaymentRequiredResponse(w, paywall.Challenge(resource, err.Error()))
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), payerKey{}, payer)))
		})
	}
}

func isWebBrowser(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html") &&
		strings.Contains(r.Header.Get("User-Agent"), "Mozilla")
}

// writePaymentRequiredResponse writes a payment required response with the given challenge.
func writePaymentRequiredResponse(w http.ResponseWriter, required x402.PaymentRequired) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	_ = json.NewEncoder(w).Encode(required)
}

// getPaywallHtml is the default paywall HTML for the PaymentMiddleware.
func getPaywallHtml(options *PaymentMiddlewareOptions) string {
	if options.Description != "" {
		return "<html><body>Payment Required: " + htmlEscape(options.Description) + "</body></html>"
	}
	return "<html><body>Payment Required</body></html>"
}

var htmlReplacer = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&#34;", "'", "&#39;")

func htmlEscape(s string) string {
	return htmlReplacer.Replace(s)
}
