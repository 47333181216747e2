package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"segmentd/internal/config"
	"segmentd/internal/device"
	"segmentd/internal/httpapi"
	"segmentd/internal/registry"
	"segmentd/internal/scheduler"
)

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func main() {
	// Flags with environment variable defaults
	addr := flag.String("addr", envStr("SEGMENTD_ADDR", ":8080"), "HTTP listen address, e.g. :8080")
	configPath := flag.String("config", envStr("SEGMENTD_CONFIG", "segmentd.yaml"), "Config file (.yaml/.json/.toml)")
	workers := flag.Int("workers", 0, "Concurrent inference workers (0=config/default)")
	defaultModel := flag.String("default-model", envStr("SEGMENTD_DEFAULT_MODEL", ""), "Default model name when request omits model")
	warmup := flag.Bool("warmup", envBool("SEGMENTD_WARMUP", true), "Run one inference per model at startup")
	pretty := flag.Bool("pretty-log", envBool("SEGMENTD_PRETTY_LOG", false), "Human-readable log output")
	corsEnabled := flag.Bool("cors", envBool("SEGMENTD_CORS", false), "Enable permissive CORS for browser clients")
	shutdownTimeout := flag.Duration("shutdown-timeout", 10*time.Second, "Grace period for in-flight requests on shutdown")
	flag.Parse()

	var out = zerolog.New(os.Stderr)
	if *pretty {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	logger := out.With().Timestamp().Str("service", "segmentd").Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config %s: %v", *configPath, err)
	}
	if len(cfg.Models) == 0 {
		log.Fatalf("config %s declares no models", *configPath)
	}
	if *addr == ":8080" && cfg.Addr != "" {
		*addr = cfg.Addr
	}
	if *workers != 0 {
		cfg.Workers = *workers
	}
	if *defaultModel != "" {
		cfg.DefaultModel = *defaultModel
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = cfg.Models[0].Name
	}
	// Config zero means "unset"; a negative value disables the limit.
	if cfg.MemoryLimitGB == 0 {
		cfg.MemoryLimitGB = 4.0
	} else if cfg.MemoryLimitGB < 0 {
		cfg.MemoryLimitGB = 0
	}

	reg, err := registry.FromConfig(cfg.Models, registry.StubBinder)
	if err != nil {
		log.Fatalf("failed to load models: %v", err)
	}

	dev := device.Discover()
	logger.Info().
		Str("device", dev.Name()).
		Bool("accelerator", dev.Available()).
		Int("models", reg.Len()).
		Msg("starting")

	schedCfg := scheduler.Config{
		Workers:          cfg.Workers,
		DefaultTimeout:   time.Duration(cfg.DefaultTimeoutS * float64(time.Second)),
		MemoryLimitBytes: uint64(cfg.MemoryLimitGB * float64(1<<30)),
		StreamIsolation:  cfg.StreamIsolation == nil || *cfg.StreamIsolation,
		Monitoring:       cfg.Monitoring == nil || *cfg.Monitoring,
		MaxQueueDelay:    time.Duration(cfg.MaxQueueDelayMs * float64(time.Millisecond)),
		MaxQueueSize:     cfg.MaxQueueSize,
		SampleInterval:   time.Duration(cfg.SampleIntervalMs) * time.Millisecond,
		DefaultModel:     cfg.DefaultModel,
	}
	svc := scheduler.NewService(schedCfg, reg, dev, logger)
	svc.Start()
	if *warmup {
		svc.Warmup(context.Background())
	}

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetLogger(logger)
	httpapi.SetBaseContext(baseCtx)
	if *corsEnabled {
		httpapi.SetCORSOptions(true,
			[]string{"*"},
			[]string{http.MethodGet, http.MethodPost, http.MethodOptions},
			[]string{"Content-Type", "X-Log-Level"},
		)
	}

	mux := httpapi.NewMux(svc)
	srv := &http.Server{Addr: *addr, Handler: mux}

	go func() {
		logger.Info().Str("addr", *addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info().Msg("shutdown signal received")
	cancelBase()
	ctx, cancel := context.WithTimeout(context.Background(), *shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown error")
	}
	svc.Shutdown(true, *shutdownTimeout)
}
