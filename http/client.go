package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	x402 "github.com/castlens/x402client"
	"github.com/castlens/x402client/mechanisms/evm"
	"github.com/castlens/x402client/polling"
)

// DefaultTimeout is the per-request timeout of the default HTTP client.
const DefaultTimeout = 30 * time.Second

// Client issues endpoint calls against one backend, answering 402
// challenges with the configured wallet and polling asynchronous jobs in
// detached sessions.
type Client struct {
	baseURL    string
	httpClient *http.Client
	wallet     x402.Wallet
	logger     *zap.Logger
	pollConfig polling.Config
	observer   polling.Observer
	signer     *RequestSigner
	builder    *evm.AuthorizationBuilder
	nonces     *x402.NonceRegistry

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]x402.SessionHandle
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithWallet sets the wallet used to answer 402 challenges.
func WithWallet(wallet x402.Wallet) ClientOption {
	return func(c *Client) {
		c.wallet = wallet
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPollConfig sets the backoff and attempt budget of polling sessions.
func WithPollConfig(cfg polling.Config) ClientOption {
	return func(c *Client) {
		c.pollConfig = cfg
	}
}

// WithObserver sets the default observer for polling sessions.
func WithObserver(o polling.Observer) ClientOption {
	return func(c *Client) {
		c.observer = o
	}
}

// WithRequestSigner enables HMAC request authentication.
func WithRequestSigner(s *RequestSigner) ClientOption {
	return func(c *Client) {
		c.signer = s
	}
}

// WithNonceRegistry shares a nonce registry across clients.
func WithNonceRegistry(registry *x402.NonceRegistry) ClientOption {
	return func(c *Client) {
		c.nonces = registry
	}
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     zap.NewNop(),
		pollConfig: polling.DefaultConfig(),
		ctx:        ctx,
		cancel:     cancel,
		sessions:   make(map[string]x402.SessionHandle),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.nonces == nil {
		c.nonces = x402.NewNonceRegistry()
	}
	c.builder = evm.NewAuthorizationBuilder(evm.WithNonceRegistry(c.nonces))
	return c
}

// BaseURL returns the backend base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ActiveSessions returns the number of detached sessions still running.
func (c *Client) ActiveSessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// Close cancels every detached polling session. The client must not be
// used afterwards.
func (c *Client) Close() {
	c.cancel()

	c.mu.Lock()
	sessions := make([]x402.SessionHandle, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.Unlock()

	for _, s := range sessions {
		s.Cancel()
	}
}

func (c *Client) track(s x402.SessionHandle) {
	c.mu.Lock()
	c.sessions[s.ID()] = s
	c.mu.Unlock()

	go func() {
		<-s.Done()
		c.mu.Lock()
		delete(c.sessions, s.ID())
		c.mu.Unlock()
	}()
}
