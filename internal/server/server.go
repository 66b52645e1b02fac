package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"trip-planner/internal/handlers"
	"trip-planner/internal/metrics"
)

// Server wraps the HTTP server and all dependencies
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	addr       string
	closeFn    func() error
}

// Config holds server configuration
type Config struct {
	Addr    string // e.g., "127.0.0.1:8080" or "127.0.0.1:0" for random port
	Handler *handlers.Handler
	// Close runs after the HTTP server has shut down
	Close func() error
}

// New creates a server (does not start it)
func New(cfg Config) (*Server, error) {
	if cfg.Handler == nil || cfg.Handler.Pipeline == nil {
		return nil, fmt.Errorf("server needs a handler with a pipeline")
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(cfg.Handler),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Geocoding is rate limited, so a large batch can take minutes
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		addr:       cfg.Addr,
		closeFn:    cfg.Close,
	}, nil
}

// NewRouter configures all HTTP routes
func NewRouter(handler *handlers.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), loggingMiddleware(), corsMiddleware())

	r.GET("/health", handler.HandleHealthCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api/v1")
	{
		api.POST("/geocode", handler.HandleGeocode)
		api.POST("/geocode/fix", handler.HandleFix)
		api.GET("/geocode/search", handler.HandleAddressSearch)
		api.POST("/cluster", handler.HandleCluster)
		api.POST("/routes", handler.HandleRoutes)
		api.POST("/plan", handler.HandlePlan)
	}

	return r
}

// Start starts the server and returns the actual address (useful for random port)
func (s *Server) Start() (string, error) {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen: %w", err)
	}

	s.listener = listener
	actualAddr := listener.Addr().String()
	log.Printf("Starting server on %s", actualAddr)

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("Server error: %v", err)
		}
	}()

	return actualAddr, nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	if s.closeFn != nil {
		return s.closeFn()
	}
	return nil
}

func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		log.Printf("[HTTP] %s %s %d %v", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		// Only allow localhost origins
		if origin == "" ||
			strings.HasPrefix(origin, "http://localhost:") ||
			strings.HasPrefix(origin, "http://127.0.0.1:") {
			if origin != "" {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Access-Control-Allow-Credentials", "true")
			}
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}
