package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/filmfeed/gateway/internal/api"
	"github.com/filmfeed/gateway/internal/auth"
	"github.com/filmfeed/gateway/internal/config"
	"github.com/filmfeed/gateway/internal/gateway"
	"github.com/filmfeed/gateway/internal/stats"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	signingKey     string
	rateWindow     time.Duration
	rateMax        int
	allowedOrigins stringSliceFlag
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&signingKey, "signing-key", defaultSigningKey, "base64 encoded signing key")
	flag.DurationVar(&rateWindow, "rate-limit-window", config.DefaultRateLimitWindow, "sliding window for per-user rate limiting")
	flag.IntVar(&rateMax, "rate-limit-max", config.DefaultRateLimitMax, "max events per user per window")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[gateway] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, signingKey, allowedOrigins, rateWindow, rateMax)
	if err != nil {
		logger.Fatal("config:", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	gw, err := gateway.NewGateway(logger, statsUpdater, gateway.Options{
		RateLimitWindow: cfg.RateLimitWindow,
		RateLimitMax:    cfg.RateLimitMax,
	})
	if err != nil {
		logger.Fatal("new gateway:", err)
	}

	authn := auth.NewAuthenticator(cfg.SigningKey)

	srv := api.NewServer(mux, logger, gw, authn, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down gateway...")
	if err := gw.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("gateway shutdown:", err)
	}

	logger.Println("shutdown complete")
}
