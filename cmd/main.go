package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wicaksana/swara/adapters/gemini"
	"github.com/wicaksana/swara/adapters/portaudio"
	"github.com/wicaksana/swara/domain/repositories"
	"github.com/wicaksana/swara/internal/auth"
	"github.com/wicaksana/swara/internal/config"
	"github.com/wicaksana/swara/internal/engine"
	"github.com/wicaksana/swara/internal/monitor"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Initialize adapters
	dialer, err := gemini.NewDialer(logger)
	if err != nil {
		logger.Fatal("Failed to create Gemini dialer", zap.Error(err))
	}

	devices, err := portaudio.NewProvider(logger)
	if err != nil {
		logger.Fatal("Failed to initialize audio devices", zap.Error(err))
	}
	defer devices.Close()

	// Initialize the session controller
	ctrl := engine.NewController(engine.ControllerConfig{
		Channel: repositories.ChannelConfig{
			Model:             cfg.Model,
			Voice:             cfg.Voice,
			SystemInstruction: cfg.SystemInstruction,
		},
		TalkMode: cfg.TalkMode,
		Volume:   cfg.Volume,
	}, dialer, devices, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan struct{})
	go func() {
		ctrl.Run(ctx)
		close(runDone)
	}()

	// Optional monitor surface
	var server *monitor.Server
	if cfg.MonitorAddr != "" {
		var issuer *auth.TokenIssuer
		if cfg.MonitorSecret != "" {
			issuer, err = auth.NewTokenIssuer(cfg.MonitorSecret, 24*time.Hour)
			if err != nil {
				logger.Fatal("Failed to create token issuer", zap.Error(err))
			}
		}

		hub := monitor.NewHub(ctrl, logger)
		go hub.Run()

		server = monitor.NewServer(ctrl, hub, issuer, logger)
		go func() {
			if err := server.Start(cfg.MonitorAddr); err != nil && err != http.ErrServerClosed {
				logger.Fatal("shutting down the monitor server", zap.Error(err))
			}
		}()
		logger.Info("Monitor started", zap.String("addr", cfg.MonitorAddr))
	}

	ctrl.Start()
	logger.Info("Voice session starting",
		zap.String("model", cfg.Model),
		zap.String("talkMode", cfg.TalkMode.String()))

	// Wait for interrupt signal to gracefully shut down
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	ctrl.Shutdown()
	select {
	case <-runDone:
	case <-time.After(10 * time.Second):
		logger.Warn("Controller did not stop in time")
	}

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Monitor server forced to shutdown", zap.Error(err))
		}
	}

	logger.Info("Exited")
}
