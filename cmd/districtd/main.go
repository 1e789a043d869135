package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/edgemaps/districtd/internal/engine"
	"github.com/edgemaps/districtd/internal/metrics"
	"github.com/edgemaps/districtd/internal/server"
	"github.com/edgemaps/districtd/internal/store"

	_ "net/http/pprof"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultListenAddr  = ":8090"
	defaultMetricsAddr = ":8091"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.ShowVersion {
		fmt.Printf("version: %s, commit: %s, date: %s\n", version, commit, date)
		return nil
	}

	log := newLogger(cfg.Verbose)

	// Start pprof server
	if cfg.EnablePprof {
		go func() {
			log.Info("starting pprof server", "address", "localhost:6060")
			err := http.ListenAndServe("localhost:6060", nil)
			if err != nil {
				log.Error("failed to start pprof server", "error", err)
			}
		}()
	}

	// Start prometheus metrics server
	if cfg.MetricsAddr != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", cfg.MetricsAddr)
			if err != nil {
				log.Error("Failed to start prometheus metrics server listener", "error", err)
				os.Exit(1)
			}
			log.Info("Prometheus metrics server listening", "address", listener.Addr().String())
			http.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, nil); err != nil {
				log.Error("Failed to start prometheus metrics server", "error", err)
				os.Exit(1)
			}
		}()
	}

	st, err := store.Open(store.Config{Logger: log, Path: cfg.StorePath})
	if err != nil {
		return fmt.Errorf("failed to open district store: %w", err)
	}

	eng, err := engine.New(engine.Config{
		Logger:      log,
		Store:       st,
		LRUCapacity: cfg.LRUCapacity,
		BatchMax:    cfg.BatchMax,
	})
	if err != nil {
		return fmt.Errorf("failed to create lookup engine: %w", err)
	}

	srv, err := server.New(log, server.Config{
		Engine:           eng,
		ResponseCacheTTL: cfg.ResponseCacheTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.ListenAddr, err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ctx, listener)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	// The HTTP server drains first, then the engine lets in-flight lookups
	// finish and closes the store.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 35*time.Second)
	defer shutdownCancel()
	if err := eng.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("engine shutdown failed: %w", err)
	}
	return nil
}

type Config struct {
	ShowVersion bool
	Verbose     bool
	EnablePprof bool
	MetricsAddr string

	StorePath  string
	ListenAddr string

	LRUCapacity      *int
	BatchMax         int
	ResponseCacheTTL time.Duration
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}
func getenvBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
func getenvInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return i, nil
}

func loadConfig() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	var cacheTTLSeconds int

	flag.BoolVar(&cfg.ShowVersion, "version", false, "show version and exit")
	flag.BoolVar(&cfg.Verbose, "verbose", getenvBool("VERBOSE", false), "verbose mode - show debug logs (env: VERBOSE)")
	flag.BoolVar(&cfg.EnablePprof, "enable-pprof", false, "enable pprof server")

	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", getenv("METRICS_ADDR", defaultMetricsAddr), "address to listen on for prometheus metrics (env: METRICS_ADDR)")
	flag.StringVar(&cfg.StorePath, "store-path", getenv("STORE_PATH", ""), "path to the built district store (env: STORE_PATH)")
	flag.StringVar(&cfg.ListenAddr, "listen-addr", getenv("LISTEN_ADDR", defaultListenAddr), "http listen address (env: LISTEN_ADDR)")

	flag.Parse()

	if cfg.ShowVersion {
		return cfg, nil
	}

	var err error
	// LRU_CAPACITY=0 turns the geometry cache off; leaving it unset keeps
	// the engine default.
	if v, ok := os.LookupEnv("LRU_CAPACITY"); ok && v != "" {
		capacity, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LRU_CAPACITY=%q: %w", v, err)
		}
		cfg.LRUCapacity = &capacity
	}
	cfg.BatchMax, err = getenvInt("BATCH_MAX", 0)
	if err != nil {
		return Config{}, err
	}
	cacheTTLSeconds, err = getenvInt("RESPONSE_CACHE_TTL_SECONDS", 0)
	if err != nil {
		return Config{}, err
	}
	cfg.ResponseCacheTTL = time.Duration(cacheTTLSeconds) * time.Second

	if cfg.StorePath == "" {
		return Config{}, fmt.Errorf("store path is empty (set STORE_PATH or --store-path)")
	}

	return cfg, nil
}

func newLogger(verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				t := a.Value.Time().UTC()
				a.Value = slog.StringValue(formatRFC3339Millis(t))
			}
			if s, ok := a.Value.Any().(string); ok && s == "" {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func formatRFC3339Millis(t time.Time) string {
	t = t.UTC()
	base := t.Format("2006-01-02T15:04:05")
	ms := t.Nanosecond() / 1_000_000
	return fmt.Sprintf("%s.%03dZ", base, ms)
}
