package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	grpcMetrics "replyBandit/app/echo-server/metrics"
	"replyBandit/app/echo-server/router"
	"replyBandit/internal/grpcapi"
	"replyBandit/internal/middleware"
	"replyBandit/internal/rest"
	"replyBandit/pkg/config"
	"replyBandit/pkg/logger"
	"replyBandit/pkg/metrics"
	"replyBandit/pkg/utils"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

var registerMetrics sync.Once

// NewEcho builds the HTTP server for app.
func NewEcho(cfg *config.Config, app *App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// HTTP error handler
	e.HTTPErrorHandler = middleware.ErrorHandler

	// Global middleware
	e.Use(echomiddleware.Recover())
	e.Use(middleware.TraceID())
	e.Use(middleware.Metrics())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, middleware.HeaderTraceID},
	}))

	authRequired, adminOnly := middleware.Passthrough(), middleware.Passthrough()
	if cfg.JWT.Enabled {
		utils.SetJWTConfig(cfg.JWT.SecretKey, cfg.JWT.Issuer)
		authRequired, adminOnly = middleware.AuthMiddleware(), middleware.AdminOnly()
	}

	banditHandler := rest.NewBanditHandler(app.Service)
	adminHandler := rest.NewBanditAdminHandler(app.Service)

	api := e.Group("/api/v1")
	router.SetBanditRoutes(api, banditHandler, authRequired)
	router.SetBanditAdminRoutes(api, adminHandler, authRequired, adminOnly)
	router.SetMetricsRoute(e)
	router.SetHealthRoute(e)

	return e
}

func NewGRPC(app *App) *grpc.Server {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(
		grpcMetrics.UnaryServerInterceptor(),
		grpcapi.TraceInterceptor(),
	))
	grpcapi.Register(s, grpcapi.NewServer(app.Service))
	return s
}

// Run serves HTTP (and gRPC when a port is configured) until ctx is
// cancelled, then shuts both down within cfg.Server.ShutdownTimeout.
func Run(ctx context.Context, cfg *config.Config) error {
	registerMetrics.Do(func() {
		metrics.Init()
		grpcMetrics.Init()
	})

	app, err := Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("Failed to close resources", "error", err)
		}
	}()

	var gs *grpc.Server
	var lis net.Listener
	if cfg.Server.GRPCPort != "" {
		lis, err = net.Listen("tcp", fmt.Sprintf(":%s", cfg.Server.GRPCPort))
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		gs = NewGRPC(app)
	}

	e := NewEcho(cfg, app)
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		logger.Info("Server starting", "address", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if gs != nil {
		g.Go(func() error {
			logger.Info("gRPC server starting", "address", lis.Addr().String())
			if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if gs != nil {
			stopped := make(chan struct{})
			go func() {
				gs.GracefulStop()
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-shutdownCtx.Done():
				gs.Stop()
			}
		}
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}

		if cfg.Storage.Snapshots != "memory" {
			if _, err := app.Service.SaveSnapshot(shutdownCtx); err != nil {
				logger.Warn("Final snapshot failed", "error", err)
			}
		}
		return nil
	})

	err = g.Wait()
	logger.Info("Server stopped")
	return err
}
