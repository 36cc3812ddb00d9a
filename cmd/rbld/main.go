package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	rbld "github.com/rbld/rbld"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type options struct {
	logLevel string
	version  bool
}

const (
	defaultListenAddress = "0.0.0.0:8053"
	defaultUpstream      = "8.8.8.8:53"
)

func main() {
	var opt options
	cmd := &cobra.Command{
		Use:   "rbld <config> [<config>..]",
		Short: "Authoritative DNS front-end for DNS-based block-list queries",
		Long: `Authoritative DNS front-end for DNS-based block-list queries.

Answers single-RBL reverse-octet lookups, synthetic aggregate zones that
fan a query out to many RBLs under a deadline, and a locally administered
custom-RBL zone matched by CIDR. Anything else is forwarded to an
upstream recursive resolver.
`,
		Example: "  rbld config.toml",
		Args:    cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return start(opt, args)
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVarP(&opt.logLevel, "log-level", "l", "info", "log level: none, error, info, verbose")
	cmd.Flags().BoolVarP(&opt.version, "version", "v", false, "print version and exit")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func start(opt options, args []string) error {
	if opt.version {
		fmt.Println("rbld (development build)")
		return nil
	}
	if len(args) < 1 {
		return errors.New("not enough arguments: expected at least one config file")
	}

	level, ok := rbld.LevelFromName(opt.logLevel)
	if !ok {
		return fmt.Errorf("invalid log level: %q", opt.logLevel)
	}
	rbld.Log.SetLevel(level)

	cfg, err := loadConfig(args...)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	srv, maint, err := buildServer(cfg)
	if err != nil {
		return err
	}

	maintCtx, maintCancel := context.WithCancel(context.Background())
	go maint.Run(maintCtx)

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			rbld.Log.WithError(err).Error("server stopped")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	rbld.Log.Info("stopping")
	maintCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildServer(cfg config) (*rbld.Server, *rbld.Maintenance, error) {
	listenAddress := cfg.ListenAddress
	if listenAddress == "" {
		listenAddress = defaultListenAddress
	}

	upstreamAddr := cfg.Upstream
	if upstreamAddr == "" {
		upstreamAddr = defaultUpstream
	}
	upstream := rbld.NewDNSClient(upstreamAddr)

	var l1 rbld.CacheBackend
	if cfg.Cache.L1Capacity >= 0 {
		l1 = rbld.NewMemoryBackend(rbld.MemoryBackendOptions{
			Capacity: cfg.Cache.L1Capacity,
			GCPeriod: time.Duration(cfg.Cache.L1GCPeriod) * time.Second,
		})
	}

	// L2 is the authoritative tier and must never be nil; with no Redis
	// address configured it degrades to a second, unbounded in-memory
	// backend rather than leaving the cache without a durable tier.
	var l2 rbld.CacheBackend
	if cfg.Cache.RedisAddr != "" {
		l2 = rbld.NewRedisBackend(rbld.RedisBackendOptions{
			Options:   redis.Options{Addr: cfg.Cache.RedisAddr, DB: cfg.Cache.RedisDB},
			KeyPrefix: cfg.Cache.KeyPrefix,
		})
	} else {
		l2 = rbld.NewMemoryBackend(rbld.MemoryBackendOptions{})
	}
	cache := rbld.NewCache(l1, l2)

	rbls := make([]rbld.RBL, 0, len(cfg.RBLs))
	for _, r := range cfg.RBLs {
		rbls = append(rbls, rbld.RBL{Name: r.Name, Host: r.Host, Description: r.Description})
	}

	aggregates := make([]rbld.AggregateZone, 0, len(cfg.Aggregates))
	for _, a := range cfg.Aggregates {
		zone := rbld.AggregateZone{Domain: a.Domain, Description: a.Description, Rbls: a.Rbls}
		aggregates = append(aggregates, rbld.ExpandAggregateZone(zone, rbls))
	}

	customStore := rbld.NewCustomRBLStore()
	customStore.SetConfig(&rbld.CustomRBLConfig{
		ZoneName: cfg.CustomRBL.ZoneName,
		Enabled:  cfg.CustomRBL.Enabled,
	})

	registry := rbld.NewZoneRegistry(rbls, aggregates, customStore.Config())

	single := rbld.NewSingleRBLResolver(upstream, 0)
	cachedSingle := rbld.NewCachedSingleRBLResolver(single, cache)

	deadline := time.Duration(cfg.AggregateTimeoutMs) * time.Millisecond
	aggExecutor := rbld.NewAggregateExecutor(cachedSingle, deadline)

	forwarder := rbld.NewForwarder(upstream)

	srv := rbld.NewServer(listenAddress, registry, cachedSingle, aggExecutor, customStore, forwarder)

	go rbld.CheckAllRFC5782(context.Background(), upstream, rbls)

	return srv, rbld.NewMaintenance(cache), nil
}
