package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/urfave/cli/v3"
	"gopkg.in/natefinch/lumberjack.v2"

	"example.com/segdgate/internal/catalog"
	"example.com/segdgate/internal/common"
	"example.com/segdgate/internal/rules"
	"example.com/segdgate/internal/server"
)

const serviceType = "_segdd._tcp"

func setupLogging(cfg config) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxAge:     cfg.Log.MaxAgeDays,
		MaxBackups: cfg.Log.MaxBackups,
		Compress:   cfg.Log.Compress,
	}
	common.SetOutput(io.MultiWriter(os.Stdout, rotator))
	return nil
}

func serverOptions(cfg config) server.Options {
	opts := server.Options{
		StorageDir:     cfg.Storage,
		Decode:         server.DecodeOptions{Slack: cfg.Decode.Slack, StrictTail: cfg.Decode.StrictTail},
		RulePackIndex:  cfg.RulePackIndex,
		CacheBytes:     cfg.Cache.Bytes,
		UploadRate:     cfg.Upload.RatePerSec,
		UploadBurst:    cfg.Upload.Burst,
		MaxUploadBytes: cfg.Upload.MaxBytes,
	}
	for _, p := range cfg.RulePacks {
		opts.RulePacks = append(opts.RulePacks, server.PackEntry{ID: p.ID, Name: p.Name, Rules: p.Rules})
	}
	return opts
}

// advertise registers the daemon over mDNS so field laptops can find it.
func advertise(instance, addr string) (*zeroconf.Server, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("advertise addr %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("advertise port %q: %w", portStr, err)
	}
	return zeroconf.Register(instance, serviceType, "local.", port, []string{"path=/healthz"}, nil)
}

func run(ctx context.Context, configPath, addr string, readTimeout, writeTimeout time.Duration) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if addr != "" {
		cfg.Addr = addr
	}
	if err := os.MkdirAll(cfg.Storage, 0o755); err != nil {
		return fmt.Errorf("storage dir: %w", err)
	}
	if err := setupLogging(cfg); err != nil {
		return err
	}

	opts := serverOptions(cfg)
	if repo, err := rules.DefaultRepository(); err == nil {
		opts.Repository = repo
	} else {
		common.Logf("rule repository unavailable: %v", err)
	}
	if cfg.Catalog.Enabled {
		cat, err := catalog.OpenEnv(ctx)
		if err != nil {
			return fmt.Errorf("catalog: %w", err)
		}
		defer cat.Close()
		if err := cat.Init(ctx); err != nil {
			return fmt.Errorf("catalog init: %w", err)
		}
		opts.Catalog = cat
	}

	srv, err := server.NewServer(opts)
	if err != nil {
		return fmt.Errorf("server init: %w", err)
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      server.NewRouter(srv),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	if cfg.Advertise.Enabled {
		zc, err := advertise(cfg.Advertise.Instance, cfg.Addr)
		if err != nil {
			common.Logf("mdns advertise: %v", err)
		} else {
			defer zc.Shutdown()
			common.Logf("advertising %q as %s", cfg.Advertise.Instance, serviceType)
		}
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		common.Logf("segdd listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		common.Logf("shutdown: %v", err)
	}
	common.Logf("segdd stopped")
	return nil
}

func main() {
	var (
		configPath   string
		addr         string
		readTimeout  time.Duration
		writeTimeout time.Duration
	)
	app := &cli.Command{
		Name:  "segdd",
		Usage: "SEG-D decode and acceptance daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to configuration file", Value: "config/segdd.yaml", Destination: &configPath},
			&cli.StringFlag{Name: "addr", Usage: "listen address (overrides config)", Destination: &addr},
			&cli.DurationFlag{Name: "read-timeout", Usage: "HTTP read timeout", Value: 60 * time.Second, Destination: &readTimeout},
			&cli.DurationFlag{Name: "write-timeout", Usage: "HTTP write timeout", Value: 5 * time.Minute, Destination: &writeTimeout},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return run(ctx, configPath, addr, readTimeout, writeTimeout)
		},
	}
	if err := app.Run(context.Background(), os.Args); err != nil {
		common.Fatalf("segdd: %v", err)
	}
}
