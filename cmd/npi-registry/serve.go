package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/npiregistry/npiregistry/internal/health"
	"github.com/npiregistry/npiregistry/internal/platform/auth"
	"github.com/npiregistry/npiregistry/internal/platform/db"
	"github.com/npiregistry/npiregistry/internal/platform/middleware"
	"github.com/npiregistry/npiregistry/internal/registry"
	"github.com/npiregistry/npiregistry/pkg/pagination"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the read API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			return runServer(ctx, a)
		},
	}
}

func newServer(a *app) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(a.pool))
	e.GET("/health/import", health.NewReporter(a.logger, a.cfg.HealthMinProviders).Handler(a.pool))
	e.GET("/metrics", a.metrics.Handler())

	api := e.Group("/api/v1")
	if a.cfg.AuthEnabled() {
		api.Use(auth.JWTMiddleware(auth.JWTConfig{
			Secret:   []byte(a.cfg.APIJWTSecret),
			Issuer:   a.cfg.APIJWTIssuer,
			Audience: a.cfg.APIJWTAudience,
		}))
	} else {
		a.logger.Warn().Msg("API_JWT_SECRET not set; read API is unauthenticated")
	}

	svc := registry.NewService(
		registry.NewProviderRepoPG(a.pool),
		registry.NewTaxonomyRepoPG(a.pool),
		registry.NewDirectoryRepoPG(a.pool),
		pagination.Limits{Default: a.cfg.APIDefaultLimit, Max: a.cfg.APIMaxLimit},
	)
	registry.NewHandler(svc).RegisterRoutes(api)
	return e
}

func runServer(ctx context.Context, a *app) error {
	e := newServer(a)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + a.cfg.Port
		a.logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	a.logger.Info().Msg("server stopped")
	return nil
}
