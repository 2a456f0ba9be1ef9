package security

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/ZanzyTHEbar/karma-passport/internal/errors"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Config holds HTTP hardening configuration
type Config struct {
	// AllowedOrigins restricts CORS; empty permits every origin
	AllowedOrigins []string      `yaml:"allowed_origins"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	EnableHSTS     bool          `yaml:"enable_hsts"`
}

// DefaultConfig returns the defaults the dashboard is served with
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:   64 << 10,
		RequestTimeout: 10 * time.Second,
	}
}

var corsHeaders = []string{
	"Origin",
	"Content-Type",
	"Content-Length",
	"Accept",
	"Accept-Encoding",
	"Accept-Language",
	"Authorization",
	"Cache-Control",
	"X-Requested-With",
	"X-Request-ID",
}

// Middleware provides the HTTP hardening middleware set
type Middleware struct {
	config Config
}

// NewMiddleware creates a new security middleware instance
func NewMiddleware(config Config) *Middleware {
	return &Middleware{config: config}
}

// CORS permits cross-origin requests with credentials. Without configured
// origins the request origin is echoed back for every caller.
func (m *Middleware) CORS() gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     corsHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	if len(m.config.AllowedOrigins) > 0 {
		cfg.AllowOrigins = m.config.AllowedOrigins
	} else {
		cfg.AllowOriginFunc = func(string) bool { return true }
	}

	handler := cors.New(cfg)
	return func(c *gin.Context) {
		requested := c.GetHeader("Access-Control-Request-Headers")
		if c.Request.Method != http.MethodOptions || requested == "" {
			handler(c)
			return
		}
		c.Writer = &preflightWriter{ResponseWriter: c.Writer, requested: requested}
		handler(c)
	}
}

// preflightWriter echoes the requested headers into an approved preflight
// response, since cors.Config can only list allowed headers up front.
type preflightWriter struct {
	gin.ResponseWriter
	requested string
	applied   bool
}

func (w *preflightWriter) apply() {
	if w.applied {
		return
	}
	w.applied = true
	h := w.Header()
	if h.Get("Access-Control-Allow-Origin") == "" {
		return
	}
	h.Set("Access-Control-Allow-Headers", w.requested)
	h.Add("Vary", "Access-Control-Request-Headers")
}

func (w *preflightWriter) WriteHeaderNow() {
	w.apply()
	w.ResponseWriter.WriteHeaderNow()
}

func (w *preflightWriter) Write(data []byte) (int, error) {
	w.apply()
	return w.ResponseWriter.Write(data)
}

func (w *preflightWriter) WriteString(s string) (int, error) {
	w.apply()
	return w.ResponseWriter.WriteString(s)
}

// SecurityHeaders adds security headers to responses
func (m *Middleware) SecurityHeaders(c *gin.Context) {
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("X-Frame-Options", "DENY")
	c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
	c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

	// swagger UI needs inline scripts, the JSON API needs nothing
	if !strings.HasPrefix(c.Request.URL.Path, "/swagger") {
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	}

	if m.config.EnableHSTS || c.Request.TLS != nil {
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	c.Next()
}

// ValidateContentType rejects request bodies that are not JSON
func (m *Middleware) ValidateContentType(c *gin.Context) {
	if c.Request.ContentLength == 0 && c.GetHeader("Content-Type") == "" {
		c.Next()
		return
	}

	contentType := strings.ToLower(c.GetHeader("Content-Type"))
	if !strings.HasPrefix(contentType, "application/json") {
		appErr := apperrors.NewValidationError("Unsupported content type", contentType)
		appErr.HTTPStatus = http.StatusUnsupportedMediaType
		apperrors.Respond(c, appErr)
		c.Abort()
		return
	}

	c.Next()
}

// LimitBody caps the request body size
func (m *Middleware) LimitBody(c *gin.Context) {
	if m.config.MaxBodyBytes > 0 && c.Request.Body != nil {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, m.config.MaxBodyBytes)
	}
	c.Next()
}

// RequestTimeout bounds the request context
func (m *Middleware) RequestTimeout(c *gin.Context) {
	if m.config.RequestTimeout <= 0 {
		c.Next()
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), m.config.RequestTimeout)
	defer cancel()

	c.Request = c.Request.WithContext(ctx)
	c.Header("X-Timeout", strconv.Itoa(int(m.config.RequestTimeout.Seconds())))

	c.Next()
}
