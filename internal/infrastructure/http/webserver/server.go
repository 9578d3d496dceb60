// Package webserver provides the canvas UI and its JSON proxy API
package webserver

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/kbcanvas/kbcanvas/internal/domain/preference"
	"github.com/kbcanvas/kbcanvas/internal/infrastructure/config"
	"github.com/kbcanvas/kbcanvas/internal/infrastructure/monitoring"
	"github.com/kbcanvas/kbcanvas/internal/ports/inbound"
	"github.com/kbcanvas/kbcanvas/internal/ports/outbound"
	"github.com/kbcanvas/kbcanvas/pkg/healthcheck"
)

//go:embed templates/*
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

type contextKey string

const sessionContextKey contextKey = "session"

// WebServer serves the canvas page, its HTMX partials and the JSON API
type WebServer struct {
	config          *config.Config
	logger          *zap.Logger
	server          *http.Server
	router          *chi.Mux
	handler         http.Handler
	images          inbound.ImageService
	recommendations inbound.RecommendationService
	assets          outbound.AssetStore
	sessions        *SessionStore
	healthCheck     *healthcheck.HealthCheck
	metrics         *monitoring.MetricsCollector
	templates       *template.Template
}

// NewWebServer creates a new web server instance. Sessions that expire
// release the image they were displaying.
func NewWebServer(
	cfg *config.Config,
	log *zap.Logger,
	images inbound.ImageService,
	recommendations inbound.RecommendationService,
	assets outbound.AssetStore,
	sessions *SessionStore,
	healthCheck *healthcheck.HealthCheck,
	metrics *monitoring.MetricsCollector,
) (*WebServer, error) {
	templates, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	s := &WebServer{
		config:          cfg,
		logger:          log.Named("web"),
		images:          images,
		recommendations: recommendations,
		assets:          assets,
		sessions:        sessions,
		healthCheck:     healthCheck,
		metrics:         metrics,
		templates:       templates,
	}

	sessions.OnExpire(func(session *Session) {
		images.Release(context.Background(), session.Image)
	})

	s.router = s.setupRoutes()
	s.handler = otelhttp.NewHandler(s.router, "kbcanvas.web")
	s.server = &http.Server{
		Addr:         cfg.Address(),
		Handler:      s.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// Handler returns the root HTTP handler
func (s *WebServer) Handler() http.Handler {
	return s.handler
}

func (s *WebServer) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if s.metrics != nil && s.config.Monitoring.EnableMetrics {
		r.Use(s.metrics.HTTPMiddleware)
	}
	r.Use(s.securityHeadersMiddleware)

	staticFiles, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFiles))))

	r.Get("/health", s.healthCheck.Handler())
	r.Get("/ready", s.healthCheck.ReadinessHandler())
	r.Get("/live", s.healthCheck.LivenessHandler())
	if s.metrics != nil && s.config.Monitoring.EnableMetrics {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Get("/assets/{id}", s.handleAsset)

	r.Group(func(r chi.Router) {
		r.Use(s.sessionMiddleware)

		r.Get("/", s.handleHome)

		r.Route("/htmx", func(r chi.Router) {
			r.Use(s.rateLimit())

			r.Post("/generate", s.handleHTMXGenerate)
			r.Post("/preferences", s.handleHTMXPreferences)
			r.Post("/recommendations", s.handleHTMXRecommendations)
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		// cors treats an empty origin list as "*", so same-origin only unless configured
		if len(s.config.Server.AllowedOrigins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: s.config.Server.AllowedOrigins,
				AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
				AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
				ExposedHeaders: []string{"X-Knowledge-Match", "X-Request-ID"},
				MaxAge:         300,
			}))
		}
		r.Use(s.rateLimit())

		r.Post("/images", s.handleAPIImage)
		r.Post("/recommendations", s.handleAPIRecommendations)
		r.Get("/knowledge", s.handleAPIKnowledge)
	})

	return r
}

// Start starts the HTTP server
func (s *WebServer) Start() error {
	s.logger.Info("Starting web server",
		zap.String("address", s.server.Addr),
		zap.String("mode", "HTMX-templates"),
	)

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the web server, waiting at most
// server.shutdown_timeout for in-flight requests
func (s *WebServer) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down web server...")

	ctx, cancel := s.shutdownContext(ctx)
	defer cancel()

	return s.server.Shutdown(ctx)
}

func (s *WebServer) shutdownContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.Server.ShutdownTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
}

// parseTemplates parses all HTML templates from the embedded filesystem.
// A template is named after its file without the .html suffix.
func parseTemplates() (*template.Template, error) {
	funcMap := template.FuncMap{
		"joinPreferences": preference.Join,
		"percent": func(v *float64) string {
			if v == nil {
				return ""
			}
			return fmt.Sprintf("%.0f%%", *v*100)
		},
	}

	tmpl := template.New("").Funcs(funcMap)

	err := fs.WalkDir(templatesFS, "templates", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || !strings.HasSuffix(path, ".html") {
			return nil
		}

		content, err := templatesFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read template %s: %w", path, err)
		}

		name := strings.TrimSuffix(strings.TrimPrefix(path, "templates/"), ".html")
		if _, err := tmpl.New(name).Parse(string(content)); err != nil {
			return fmt.Errorf("failed to parse template %s: %w", name, err)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk templates: %w", err)
	}

	return tmpl, nil
}

// Middleware

func (s *WebServer) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := s.sessions.Get(r)
		if err != nil {
			session = s.sessions.New()
			s.sessions.Save(w, session)
		}

		ctx := context.WithValue(r.Context(), sessionContextKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(r *http.Request) *Session {
	session, _ := r.Context().Value(sessionContextKey).(*Session)
	return session
}

func (s *WebServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("remote_addr", r.RemoteAddr),
		}
		if traceID := monitoring.TraceIDFromContext(r.Context()); traceID != "" {
			fields = append(fields, zap.String("trace_id", traceID))
		}

		s.logger.Info("HTTP request", fields...)
	})
}

func (s *WebServer) rateLimit() func(http.Handler) http.Handler {
	if !s.config.RateLimit.Enable {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return httprate.Limit(
		s.config.RateLimit.Requests,
		s.config.RateLimit.Window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(s.handleRateLimited),
	)
}

// securityHeadersMiddleware adds security headers to all responses
func (s *WebServer) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")

		csp := "default-src 'self'; " +
			"script-src 'self' https://unpkg.com; " +
			"style-src 'self' 'unsafe-inline'; " +
			"img-src 'self' data:; " +
			"connect-src 'self'; " +
			"frame-ancestors 'none'; " +
			"base-uri 'none'; " +
			"object-src 'none';"
		w.Header().Set("Content-Security-Policy", csp)

		if s.config.IsProduction() {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		next.ServeHTTP(w, r)
	})
}
