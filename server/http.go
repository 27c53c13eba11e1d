package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"session-gateway/gateway"
	"session-gateway/message"
	"session-gateway/middleware"
)

// maxBodyBytes bounds a create-session body; 65535 long ids fit comfortably.
const maxBodyBytes = 8 << 20

type HTTPOptions struct {
	Name        string
	Destination string
	Logger      *zap.Logger
	Gatherer    prometheus.Gatherer // nil disables /metrics
}

// NewHTTPHandler builds the gin router serving h.
//
//	POST /create_session  JSON SessionRequest → JSON SessionResponse
//	GET  /healthz
//	GET  /metrics         when opts.Gatherer is set
func NewHTTPHandler(h middleware.HandlerFunc, opts HTTPOptions) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	router.POST("/create_session", func(c *gin.Context) {
		if c.ContentType() != binding.MIMEJSON {
			c.JSON(http.StatusUnsupportedMediaType, message.Failure("expected Content-Type: application/json"))
			return
		}
		raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
		if err != nil {
			status := http.StatusBadRequest
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			c.JSON(status, message.Failure("invalid request body: "+err.Error()))
			return
		}
		req, err := decodeSessionRequest(raw)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, errInvalidFields) {
				status = http.StatusUnprocessableEntity
			}
			c.JSON(status, message.Failure("invalid request body: "+err.Error()))
			return
		}

		resp, err := h(middleware.WithTransport(c.Request.Context(), "http"), req)
		if err != nil {
			c.JSON(statusFor(err), message.Failure(err.Error()))
			return
		}
		c.JSON(http.StatusOK, resp)
	})

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"name":        opts.Name,
			"destination": opts.Destination,
		})
	})

	if opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	return router
}

// statusFor maps a handler error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, gateway.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, middleware.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, middleware.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		// includes *gateway.TransportInitError
		return http.StatusInternalServerError
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		level := zap.DebugLevel
		if status >= 500 {
			level = zap.ErrorLevel
		} else if status >= 400 {
			level = zap.WarnLevel
		}
		if ce := logger.Check(level, "http_request"); ce != nil {
			ce.Write(
				zap.String("method", c.Request.Method),
				zap.String("path", path),
				zap.Int("status", status),
				zap.Duration("duration", time.Since(start)),
				zap.String("client_ip", c.ClientIP()),
				zap.Int("bytes", c.Writer.Size()))
		}
	}
}
