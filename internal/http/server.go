package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"subtrack/internal/cache"
	"subtrack/internal/core"
	"subtrack/internal/log"
	"subtrack/internal/metrics"
	"subtrack/internal/middleware/ratelimit"
	"subtrack/internal/middleware/security"
	"subtrack/internal/middleware/trace"
	"subtrack/internal/notify"
	"subtrack/internal/scheduler"
	"subtrack/internal/services"
)

// SubscriptionService is what the handlers need from the service layer.
type SubscriptionService interface {
	Create(ctx context.Context, in services.SubscriptionInput) (core.Subscription, scheduler.Outcome, error)
	Replace(ctx context.Context, id string, in services.SubscriptionInput) (core.Subscription, scheduler.Outcome, error)
	Delete(ctx context.Context, id string) ([]core.Subscription, error)
	List(ctx context.Context) ([]core.Subscription, error)
	Resync(ctx context.Context) services.ResyncResult
	Summary(ctx context.Context, now time.Time) (core.Summary, error)
}

// Deps are the collaborators the server cannot run without, plus optional
// metrics, logger and readiness probe.
type Deps struct {
	Service  SubscriptionService
	Notifier notify.Notifier
	Metrics  *metrics.Collector
	Logger   *log.Logger
	// Ready is polled by /readyz; nil always reports ready.
	Ready func(ctx context.Context) error
}

type Server struct {
	http.Server

	svc      SubscriptionService
	notifier notify.Notifier
	metrics  *metrics.Collector
	ready    func(ctx context.Context) error

	validator    *requestValidator
	limiter      *ratelimit.Limiter
	detector     *security.Detector
	summaryCache *cache.LRUCache[SummaryResponse]
	cacheManager *cache.Manager

	loc      *time.Location
	currency string
	now      func() time.Time

	shutdownOnce sync.Once
}

type settings struct {
	loc            *time.Location
	currency       string
	now            func() time.Time
	summaryTTL     time.Duration
	requestsPerMin int
	proxies        []string
}

type Option func(*settings)

// WithLocation sets the zone days-left and the summary window are counted in.
func WithLocation(loc *time.Location) Option {
	return func(s *settings) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithCurrency(symbol string) Option {
	return func(s *settings) { s.currency = symbol }
}

func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// WithSummaryTTL bounds how long a cached summary is served. Zero disables caching.
func WithSummaryTTL(ttl time.Duration) Option {
	return func(s *settings) { s.summaryTTL = ttl }
}

func WithRateLimit(requestsPerMinute int) Option {
	return func(s *settings) { s.requestsPerMin = requestsPerMinute }
}

// WithTrustedProxies adds CIDRs whose forwarded headers are believed.
func WithTrustedProxies(cidrs ...string) Option {
	return func(s *settings) { s.proxies = append(s.proxies, cidrs...) }
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps, opts ...Option) (*Server, error) {
	cfg := settings{
		loc:            time.Local,
		currency:       scheduler.DefaultCurrency,
		now:            time.Now,
		summaryTTL:     30 * time.Second,
		requestsPerMin: ratelimit.DefaultConfig().RequestsPerMinute,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	detector, err := security.NewDetector(cfg.proxies...)
	if err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.Config{Handler: slog.Default().Handler(), Component: log.ComponentHTTP})
	}

	s := &Server{
		svc:          deps.Service,
		notifier:     deps.Notifier,
		metrics:      deps.Metrics,
		ready:        deps.Ready,
		validator:    newRequestValidator(),
		limiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.requestsPerMin}),
		detector:     detector,
		cacheManager: cache.NewManager(),
		loc:          cfg.loc,
		currency:     cfg.currency,
		now:          cfg.now,
	}
	if cfg.summaryTTL > 0 {
		s.summaryCache = cache.NewLRUCache[SummaryResponse](8, cfg.summaryTTL)
		s.cacheManager.Register(s.summaryCache)
		s.cacheManager.StartCleanup(time.Minute)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.metrics.Handler())

	mux.HandleFunc("GET /api/subscriptions", s.handleList)
	mux.HandleFunc("POST /api/subscriptions", s.handleCreate)
	mux.HandleFunc("PUT /api/subscriptions/{id}", s.handleReplace)
	mux.HandleFunc("DELETE /api/subscriptions/{id}", s.handleDelete)
	mux.HandleFunc("POST /api/resync", s.handleResync)
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/notifications", s.handleNotifications)
	mux.HandleFunc("POST /api/notifications/permission", s.handlePermission)

	handler := trace.CapturePattern(mux)
	handler = s.limiter.Middleware(detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").Write(w)
	})(handler)
	handler = detector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = log.RequestIDMiddleware(trace.RequestIDFromRequest)(handler)

	var observer trace.Observer
	if s.metrics != nil {
		observer = s.metrics
	}
	handler = trace.NewMiddleware(detector.ExtractClientIP, observer).Middleware(handler)
	handler = log.Middleware(logger)(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) summaryKey(now time.Time) string {
	return now.In(s.loc).Format(time.DateOnly)
}

func (s *Server) invalidateSummary() {
	if s.summaryCache != nil {
		s.summaryCache.Clear()
	}
}
