// Command rpcd hosts the registry server, the topic server, or both.
//
//	rpcd -config rpcd.yaml -role all
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"mini-jsonrpc/config"
	"mini-jsonrpc/logger"
	"mini-jsonrpc/metrics"
	"mini-jsonrpc/registry"
	"mini-jsonrpc/server"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	roleRegistry = "registry"
	roleTopic    = "topic"
	roleAll      = "all"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration")
	role := flag.String("role", roleAll, "servers to run: registry, topic or all")
	logLevel := flag.String("log-level", "", "overrides log.level")
	flag.Parse()

	if err := run(*configPath, *role, *logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "rpcd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, role, logLevel string) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	switch role {
	case roleRegistry, roleTopic, roleAll:
	default:
		return fmt.Errorf("unknown role %q", role)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()
	log = log.With(zap.String("instance", nuid.Next()))
	zap.ReplaceGlobals(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []server.Option{
		server.WithCodec(cfg.CodecType()),
		server.WithMaxFrameSize(cfg.MaxFrameSize),
	}
	var closers []func() error

	if role == roleRegistry || role == roleAll {
		regOpts := append(opts, server.WithLogger(log.Named("registry")))
		if etcd := cfg.Registry.Etcd; len(etcd.Endpoints) > 0 {
			mirror, err := registry.NewEtcdMirror(etcd.Endpoints, etcd.LeaseTTL, log.Named("etcd"))
			if err != nil {
				return err
			}
			closers = append(closers, mirror.Close)
			regOpts = append(regOpts, server.WithMirror(mirror))
		}
		rs, err := server.NewRegistryServer(cfg.Registry.Listen, regOpts...)
		if err != nil {
			closeAll(closers, log)
			return err
		}
		closers = append([]func() error{rs.Close}, closers...)
	}
	if role == roleTopic || role == roleAll {
		ts, err := server.NewTopicServer(cfg.Topic.Listen, append(opts, server.WithLogger(log.Named("topic")))...)
		if err != nil {
			closeAll(closers, log)
			return err
		}
		closers = append([]func() error{ts.Close}, closers...)
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		hs := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
		g.Go(func() error {
			log.Info("serving metrics", zap.String("listen", cfg.Metrics.Listen))
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return hs.Shutdown(sctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		closeAll(closers, log)
		return nil
	})
	return g.Wait()
}

func closeAll(closers []func() error, log *zap.Logger) {
	for _, c := range closers {
		if err := c(); err != nil {
			log.Warn("close failed", zap.Error(err))
		}
	}
}
