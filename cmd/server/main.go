// Relay server - serves the voice chat page and brokers websocket sessions to OpenAI
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GriffinCanCode/voicerelay/internal/config"
	"github.com/GriffinCanCode/voicerelay/internal/health"
	"github.com/GriffinCanCode/voicerelay/internal/metrics"
	"github.com/GriffinCanCode/voicerelay/internal/openai"
	"github.com/GriffinCanCode/voicerelay/internal/orchestrator"
	"github.com/GriffinCanCode/voicerelay/internal/orchestrator/spool"
	"github.com/GriffinCanCode/voicerelay/internal/orchestrator/vad"
	"github.com/GriffinCanCode/voicerelay/internal/resilience"
	"github.com/GriffinCanCode/voicerelay/internal/server"
)

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	hooks := []openai.Option{openai.WithBreakerHook(m.BreakerHook())}
	var hs *health.Server
	if cfg.HealthAddr != "" {
		hs = health.New(openai.Services)
		hooks = append(hooks, openai.WithBreakerHook(hs.Hook()))
	}

	client := openai.New(cfg.OpenAIAPIKey, append(hooks,
		openai.WithBaseURL(cfg.OpenAIBaseURL),
		openai.WithModels(openai.Models{
			Chat:   cfg.ChatModel,
			Speech: cfg.SpeechModel,
			TTS:    cfg.TTSModel,
			Voice:  cfg.TTSVoice,
		}),
		openai.WithSystemPrompt(cfg.SystemPrompt),
		openai.WithBreakerConfig(resilience.ProfileConfig(cfg.BreakerProfile)),
		openai.WithMetrics(m),
	)...)

	gate, err := vad.New(vad.Config{
		Threshold:   cfg.VADThreshold,
		SampleRate:  cfg.VADSampleRate,
		FrameLength: cfg.VADFrameLength,
		HopLength:   cfg.VADHopLength,
	})
	if err != nil {
		slog.Error("invalid voice gate", "error", err)
		os.Exit(1)
	}
	slog.Info("voice gate ready", "threshold", gate.Threshold(), "sample_rate", cfg.VADSampleRate)

	store, err := spool.New(cfg.SpoolDir)
	if err != nil {
		slog.Error("failed to create spool", "dir", cfg.SpoolDir, "error", err)
		os.Exit(1)
	}
	m.RegisterSpool(store.InUse)

	orch, err := orchestrator.New(orchestrator.Deps{
		Gate:      gate,
		Speech:    client,
		Dialogue:  client,
		Narration: client,
		Spool:     store,
		Metrics:   m,
	}, orchestrator.Options{
		Greeting:        cfg.Greeting,
		UpstreamTimeout: cfg.UpstreamTimeout,
	})
	if err != nil {
		slog.Error("failed to create orchestrator", "error", err)
		os.Exit(1)
	}

	srv := server.New(orch, server.Config{
		MaxMessageBytes:   cfg.MaxMessageBytes,
		QueueSize:         cfg.QueueSize,
		RateLimitMessages: cfg.RateLimitMessages,
		RateLimitWindow:   cfg.RateLimitWindow,
		Metrics:           m,
	})

	// Hijacked websocket connections ignore server timeouts; only the
	// header read is bounded.
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("relay server starting", "http", cfg.HTTPAddr, "spool", store.Dir())
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			slog.Info("metrics listener starting", "addr", cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	if hs != nil {
		lis, err := net.Listen("tcp", cfg.HealthAddr)
		if err != nil {
			slog.Error("failed to listen for health checks", "addr", cfg.HealthAddr, "error", err)
			os.Exit(1)
		}
		go func() {
			slog.Info("health listener starting", "addr", cfg.HealthAddr)
			if err := hs.Serve(lis); err != nil {
				slog.Error("health server error", "error", err)
			}
		}()
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...", "connections", srv.Connections())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if hs != nil {
		hs.Stop()
	}
	srv.CloseAll()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	if err := srv.Drain(shutdownCtx); err != nil {
		slog.Warn("sessions still open at exit", "connections", srv.Connections())
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}

	slog.Info("shutdown complete")
}
