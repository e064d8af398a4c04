package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"wagerbook/config"
	"wagerbook/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
)

// Services bundles what the HTTP handlers call into
type Services struct {
	Users      service.UserService
	Wagers     service.WagerService
	Wallet     service.WalletService
	Reconciler service.Reconciler
	Disputes   service.DisputeMediator
}

// Server serves the public HTTP API
type Server struct {
	config   *config.Config
	services Services
	validate *validator.Validate
	engine   *gin.Engine
	http     *http.Server
}

// NewServer creates the router with every route registered
func NewServer(cfg *config.Config, services Services) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config:   cfg,
		services: services,
		validate: validator.New(),
		engine:   gin.New(),
	}
	s.engine.Use(gin.Recovery(), requestLogger())
	s.registerRoutes()

	s.http = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := s.engine.Group("/v1")
	v1.POST("/webhooks/fiat", s.fiatWebhook)
	v1.POST("/users", s.registerUser)

	authed := v1.Group("", userAuth())
	authed.GET("/me", s.me)

	wallet := authed.Group("/wallet")
	wallet.GET("/balance", s.balance)
	wallet.GET("/transactions", s.history)
	wallet.POST("/withdrawals", s.withdraw)
	wallet.POST("/deposits", s.deposit)

	wagers := authed.Group("/wagers")
	wagers.POST("", s.createWager)
	wagers.GET("", s.listWagers)
	wagers.GET("/invite/:code", s.findByInvite)
	wagers.POST("/invite/:code/join", s.joinByInvite)
	wagers.GET("/:id", s.getWager)
	wagers.PATCH("/:id", s.updateWager)
	wagers.DELETE("/:id", s.deleteWager)
	wagers.POST("/:id/join", s.joinWager)
	wagers.POST("/:id/claim", s.claimPrize)
	wagers.POST("/:id/accept", s.acceptClaim)
	wagers.POST("/:id/contest", s.contestClaim)

	authed.POST("/disputes/:id/messages", s.postDisputeMessage)

	admin := v1.Group("/admin", adminAuth(s.config.AdminAPIKey))
	admin.POST("/wagers/:id/resolve", s.resolveDispute)
	admin.POST("/disputes/:id/messages", s.postAdminMessage)
}

// Handler exposes the router for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until the context is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", s.http.Addr).Info("HTTP server listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	log.Info("HTTP server stopped")
	return nil
}
