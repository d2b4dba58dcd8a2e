package gin

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMockPayTo receives payments when MockConfig.PayTo is empty.
const DefaultMockPayTo = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"

// MockConfig configures a MockBackend.
type MockConfig struct {
	// PayTo receives payments; Price is in token units.
	PayTo   string
	Price   string
	Network string
	// ResourceRootURL is the externally visible scheme and host.
	ResourceRootURL string
	// PendingPolls is how many polls a job answers pending/processing
	// before it completes.
	PendingPolls int
	// RefreshAfter serves a completed job older than this as updating and
	// recomputes it. Zero disables refreshes.
	RefreshAfter time.Duration
	Logger       *zap.Logger
	Now          func() time.Time
}

type mockJob struct {
	key         string
	kind        string
	query       string
	polls       int
	generation  int
	completedAt time.Time
	result      gin.H
}

// MockBackend simulates the analysis API: paid lookups start asynchronous
// jobs that are polled to completion, chat endpoints answer directly.
type MockBackend struct {
	cfg MockConfig

	mu   sync.Mutex
	jobs map[string]*mockJob
}

// NewMockBackend creates a backend with defaults: DefaultMockPayTo,
// base-sepolia, 0.001 USDC and two in-flight polls per job.
func NewMockBackend(cfg MockConfig) *MockBackend {
	if cfg.PayTo == "" {
		cfg.PayTo = DefaultMockPayTo
	}
	if cfg.Network == "" {
		cfg.Network = "base-sepolia"
	}
	if cfg.Price == "" {
		cfg.Price = "0.001"
	}
	if cfg.PendingPolls <= 0 {
		cfg.PendingPolls = 2
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &MockBackend{cfg: cfg, jobs: make(map[string]*mockJob)}
}

// Router builds the gin engine serving the API under /api.
func (m *MockBackend) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	paid := PaymentMiddleware(m.cfg.Price, m.cfg.PayTo,
		WithNetwork(m.cfg.Network),
		WithResourceRootURL(m.cfg.ResourceRootURL),
		WithMimeType("application/json"),
		WithLogger(m.cfg.Logger),
		WithClock(m.cfg.Now),
		WithBypass(m.jobExists))

	api := r.Group("/api")
	for _, kind := range []string{"profiles", "social", "mbti"} {
		kind := kind
		api.GET("/"+kind+"/:query", paid, func(c *gin.Context) { m.serveJob(c, kind, c.Param("query")) })
		api.GET("/"+kind+"/username/:query", paid, func(c *gin.Context) { m.serveJob(c, kind, c.Param("query")) })
	}
	api.POST("/chat/create", m.createChat)
	api.POST("/chat/message", paid, m.chatMessage)
	return r
}

// Jobs returns the number of jobs the backend knows.
func (m *MockBackend) Jobs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

func jobKind(kind string) string {
	if kind == "profiles" {
		return "profile"
	}
	return kind
}

func (m *MockBackend) jobExists(c *gin.Context) bool {
	if c.Request.Method != http.MethodGet {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jobs[m.keyFor(c)]
	return ok
}

func (m *MockBackend) keyFor(c *gin.Context) string {
	return c.Request.URL.EscapedPath()
}

func (m *MockBackend) serveJob(c *gin.Context, kind, query string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.cfg.Now()
	path := m.keyFor(c)
	job, ok := m.jobs[path]
	if !ok {
		job = &mockJob{key: jobKind(kind) + ":" + query, kind: jobKind(kind), query: query}
		m.jobs[path] = job
		m.cfg.Logger.Debug("job created", zap.String("job_key", job.key))
		c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{
			"status": "pending", "job_key": job.key, "message": "Job queued",
		}})
		return
	}

	if job.result == nil {
		job.polls++
		if job.polls < m.cfg.PendingPolls {
			c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{
				"status": "processing", "job_key": job.key, "message": "Analyzing " + job.query,
			}})
			return
		}
		job.generation++
		job.result = gin.H{
			"status":   "completed",
			"job_key":  job.key,
			"kind":     job.kind,
			"username": job.query,
			"summary":  job.kind + " analysis for " + job.query,
			"version":  job.generation,
		}
		job.completedAt = now
	}

	if m.cfg.RefreshAfter > 0 && now.Sub(job.completedAt) >= m.cfg.RefreshAfter {
		stale := job.result
		job.result, job.polls = nil, 0
		c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{
			"status": "updating", "job_key": job.key, "message": "Refreshing analysis", "data": stale,
		}})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": job.result})
}

func (m *MockBackend) createChat(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"session_id": uuid.NewString()}})
}

func (m *MockBackend) chatMessage(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id"`
		Message   string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "session_id and message are required"})
		return
	}
	payer, _ := c.Get(PayerKey)
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{
		"session_id": req.SessionID,
		"reply":      "You said: " + req.Message,
		"payer":      payer,
	}})
}
