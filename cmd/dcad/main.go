package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"xaumdca/config"
	"xaumdca/observability/logging"
	"xaumdca/services/dcad/keeper"
	"xaumdca/services/dcad/node"
	"xaumdca/services/dcad/server"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "dcad.yaml", "path to dcad configuration file (.yaml or .toml)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("dcad: load config: %v", err)
	}
	env := cfg.Service.Env
	if override := strings.TrimSpace(os.Getenv("DCA_ENV")); override != "" {
		env = override
	}
	logger, closer := logging.SetupWithFile(cfg.Service.Name, env, logging.FileSink{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	defer closer.Close()

	n, err := node.New(cfg, logger)
	if err != nil {
		log.Fatalf("dcad: build node: %v", err)
	}
	defer n.Close()

	srv, err := server.New(server.Config{
		ListenAddress:   cfg.Service.ListenAddress,
		ReadTimeout:     cfg.Service.ReadTimeout.Duration,
		ShutdownTimeout: cfg.Service.ShutdownTimeout.Duration,
		RateLimit: server.RateLimit{
			RequestsPerSecond: cfg.Service.RateLimit.RequestsPerSecond,
			Burst:             cfg.Service.RateLimit.Burst,
		},
	}, n, logger)
	if err != nil {
		log.Fatalf("dcad: build server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	if cfg.Keeper.Enabled {
		k := keeper.New(n, keeper.Config{
			Interval:    cfg.Keeper.Interval.Duration,
			PageSize:    cfg.Keeper.PageSize,
			SlippageBps: cfg.Keeper.SlippageBps,
		}, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := k.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("keeper stopped", "error", err)
			}
		}()
	}

	logger.Info("dcad starting", "ledgers", len(n.Ledgers()), "keeper", cfg.Keeper.Enabled)
	if err := srv.Run(ctx); err != nil {
		logger.Error("query api stopped", "error", err)
		stop()
	}
	wg.Wait()
	logger.Info("dcad stopped")
}
