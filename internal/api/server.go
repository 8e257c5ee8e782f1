// Package api serves the SOS endpoints over HTTP.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/lifeline/internal/channel"
	"github.com/zulandar/lifeline/internal/models"
	"github.com/zulandar/lifeline/internal/sos"
	"gorm.io/gorm"
)

// Service is the lifecycle surface the handlers call. *sos.Manager
// implements it.
type Service interface {
	Trigger(ctx context.Context, req sos.TriggerRequest) (*sos.TriggerResult, error)
	Resolve(ctx context.Context, eventID, userID string) (*models.SOSEvent, error)
	History(ctx context.Context, userID string) ([]models.SOSEvent, error)
}

// StartOpts holds configuration for the API server.
type StartOpts struct {
	Service        Service
	DB             *gorm.DB
	Feed           *sos.Feed        // optional, enables /api/sos/stream
	Channels       []channel.Client // reported by /healthz
	Port           int
	IdentityHeader string
	Out            io.Writer
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(opts StartOpts) (*gin.Engine, error) {
	if opts.Service == nil {
		return nil, fmt.Errorf("api: service is required")
	}
	if opts.DB == nil {
		return nil, fmt.Errorf("api: db is required")
	}
	if opts.IdentityHeader == "" {
		opts.IdentityHeader = "X-User-ID"
	}

	router := gin.New()
	router.Use(requestLogger(), gin.Recovery())
	registerRoutes(router, opts)
	return router, nil
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	router, err := NewRouter(opts)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Lifeline listening on http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
