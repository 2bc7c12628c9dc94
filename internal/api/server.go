package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cinepay/internal/config"
	"cinepay/internal/handlers"
	"cinepay/internal/middleware"
)

// Server is the webhook ingress HTTP server
type Server struct {
	router *gin.Engine
	config *config.Config
	stack  *Stack
}

func NewServer(cfg *config.Config) (*Server, error) {
	stack, err := NewStack(cfg)
	if err != nil {
		return nil, err
	}
	return newServer(cfg, stack), nil
}

func newServer(cfg *config.Config, stack *Stack) *Server {
	gin.SetMode(cfg.GinMode)

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.Logger())

	server := &Server{
		router: router,
		config: cfg,
		stack:  stack,
	}
	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	var h *handlers.Handlers
	if s.stack.DB != nil {
		h = handlers.NewHandlers(s.stack.Reconciler, s.stack.DB)
	} else {
		h = handlers.NewHandlers(s.stack.Reconciler, nil)
	}

	wh := s.router.Group("/webhook")
	{
		wh.POST("/rapikom", h.RapikomWebhook)
		wh.GET("/status", h.WebhookStatus)
		wh.POST("/retry/:webhookId", h.RetryWebhook)
	}

	s.router.GET("/health", s.poolCheck, h.Health)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// poolCheck logs pool pressure before the health response is built
func (s *Server) poolCheck(c *gin.Context) {
	if s.stack.DB != nil {
		s.stack.DB.WarnOnPressure()
	}
	c.Next()
}

// Run starts the HTTP server
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.config.Port))
}

// GetRouter returns the router for tests and http.Server
func (s *Server) GetRouter() http.Handler {
	return s.router
}

// Cleanup closes the server's connections
func (s *Server) Cleanup() error {
	return s.stack.Close()
}
