package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Community-of-Gia-Lai-Team/ai-statefultask/internal/api"
	"github.com/Community-of-Gia-Lai-Team/ai-statefultask/internal/config"
	"github.com/Community-of-Gia-Lai-Team/ai-statefultask/internal/engine"
	"github.com/Community-of-Gia-Lai-Team/ai-statefultask/internal/events"
	"github.com/Community-of-Gia-Lai-Team/ai-statefultask/internal/logger"
	"github.com/Community-of-Gia-Lai-Team/ai-statefultask/internal/timer"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(cfg.LogLevel, os.Getenv("ENV") != "production")

	log := logger.Get()
	log.Info().Msg("Starting engined...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Timer service backs every YieldMs sleep
	timerService := timer.NewService(cfg.Timer.Granularity)
	timerService.Start(ctx)
	engine.SetTimerScheduler(timerService)

	// Event bus receives every task state transition
	bus := events.NewMemoryBus()
	events.BridgeEngineHooks(bus)

	// Construct engines, one host goroutine each
	engines := make([]*engine.Engine, 0, len(cfg.Engines))
	var hosts sync.WaitGroup
	for _, ec := range cfg.Engines {
		e := engine.NewEngine(ec.Name)
		if ec.MaxDuration > 0 {
			e.SetMaxDuration(ec.MaxDuration)
		}
		engines = append(engines, e)

		hosts.Add(1)
		go func(e *engine.Engine) {
			defer hosts.Done()
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				e.Mainloop()
			}
		}(e)

		log.Info().
			Str("engine", e.Name()).
			Dur("max_duration", ec.MaxDuration).
			Msg("engine started")
	}

	// Admin server
	server := api.NewServer(cfg, engines, bus)
	server.Start(ctx)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("admin server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("admin server failed")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down engined...")

	cancel()

	// Release parked mainloops so the host goroutines observe the
	// cancelled context
	for _, e := range engines {
		e.WakeUp()
	}
	hosts.Wait()

	// Kill whatever is still queued
	for _, e := range engines {
		e.Flush()
	}

	timerService.Stop()
	server.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("admin server shutdown error")
	}

	_ = bus.Close()

	log.Info().Msg("engined stopped")
}
