package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"ncstreamer/config"
	"ncstreamer/internal/api"
	"ncstreamer/internal/app"
	"ncstreamer/internal/infra/encoder"
	"ncstreamer/internal/logging"
	"ncstreamer/internal/repo"
	"ncstreamer/internal/transport/ws"
	"ncstreamer/pkg/provider"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "ncstreamer:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	// 1. Config
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}

	log := logging.New(cfg.Log.Debug)
	defer log.Sync()

	// 2. Settings
	var settings repo.SettingsRepo
	if cfg.Storage.InMemory {
		log.Info("using in-memory settings")
		settings, err = repo.NewMemoryRepo()
	} else {
		log.Info("opening settings database", zap.String("path", cfg.Storage.Path))
		settings, err = repo.NewSQLiteRepo(cfg.Storage.Path)
	}
	if err != nil {
		return fmt.Errorf("open settings: %w", err)
	}
	defer settings.Close()
	if cfg.Streaming.DesignatedUser != "" {
		if err := settings.Set(repo.KeyDesignatedUser, cfg.Streaming.DesignatedUser); err != nil {
			log.Warn("store designated user", zap.Error(err))
		}
	}

	// 3. Infrastructure
	log.Info("provider client", zap.String("url", cfg.Provider.URL))
	p := provider.NewClient(cfg.Provider.URL, cfg.Provider.Token)
	engine := encoder.NewLogging(log.Named("encoder"))

	// 4. Application service
	exit := make(chan struct{})
	svc := app.NewService(settings, p, engine, cfg.Quality(), func() { close(exit) }, log.Named("app"))

	// 5. Remote control server
	remoteLog := log.Named("remote")
	srv := ws.NewServer(svc, ws.Options{
		Workers:      cfg.Server.Workers,
		QueueSize:    cfg.Server.QueueSize,
		ReadLimit:    cfg.Server.ReadLimit,
		WriteTimeout: cfg.Server.WriteTimeout,
		FrameRate:    rate.Limit(cfg.Server.FrameRate),
		FrameBurst:   cfg.Server.FrameBurst,
		LogPath:      cfg.Log.Path,
		LogDebug:     cfg.Log.Debug,
		Logger:       remoteLog,
	})
	router := api.NewRouter(api.NewHandler(srv, cfg, remoteLog))
	if err := srv.Setup(cfg.Addr(), router); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case s := <-sig:
		log.Info("signal received", zap.Stringer("signal", s))
	case <-exit:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if engine.Running() {
		if err := engine.Stop(ctx); err != nil {
			log.Warn("stop encoder", zap.Error(err))
		}
	}
	return srv.ShutDown(ctx)
}
