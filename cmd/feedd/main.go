package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"marketfeed/internal/dispatch"
	"marketfeed/internal/feed"
	"marketfeed/internal/obs"
	"marketfeed/internal/ops"
	"marketfeed/internal/registry"
	"marketfeed/internal/tokenref"
	"marketfeed/pkg/conn"
	"marketfeed/pkg/transport"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config")
	flag.Parse()

	if err := run(*configPath); err != nil {
		logs.Errorf("feedd: %v", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := ops.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Profiler.Enabled {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "feedd",
			ServerAddress:   cfg.Profiler.ServerAddress,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileInuseObjects,
			},
		})
		if err != nil {
			return err
		}
		defer func() { _ = profiler.Stop() }()
	}

	metrics := obs.NewMetrics()

	source, cleanup, err := buildTokenSource(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	tokens := tokenref.NewCache(source, cfg.Tokens.RefreshInterval.Std())
	if err := tokens.Refresh(ctx); err != nil {
		// A cold cache still serves once the next refresh succeeds.
		logs.Warnf("initial token refresh failed: %v", err)
	}
	go tokens.Run(ctx)

	subs := registry.New()
	prices := dispatch.NewPriceCache(dispatch.Throttle{
		MinInterval:  cfg.Dispatch.Throttle.MinInterval.Std(),
		MinChangePct: cfg.Dispatch.Throttle.MinChangePct,
	}, nil)
	outbox := dispatch.NewOutbox(logDeliverer{}, cfg.Dispatch.OutboxCapacity, metrics)

	var engine *dispatch.Engine
	sink := sinkFunc(func(sessionID string, pkt feed.Packet) {
		engine.OnPacket(sessionID, pkt)
	})

	manager, err := feed.NewManager(accountSpecs(cfg), func(acct feed.AccountSpec) (*feed.Session, error) {
		dialer := transport.NewWSDialer(cfg.Feed.Endpoint)
		dialer.ReadTimeout = cfg.Feed.ReadTimeout.Std()
		dialer.WriteTimeout = cfg.Feed.WriteTimeout.Std()
		return feed.NewSession(feed.Option{
			ID:        acct.ID,
			AccountID: acct.AccountID,
			Dialer:    dialer,
			Sink:      sink,
			Metrics:   metrics,
			Backoff: transport.Backoff{
				Min:    cfg.Feed.Backoff.Min.Std(),
				Max:    cfg.Feed.Backoff.Max.Std(),
				Factor: cfg.Feed.Backoff.Factor,
				Jitter: cfg.Feed.Backoff.Jitter,
			},
			WriteQueueSize: cfg.Feed.WriteQueueSize,
		})
	})
	if err != nil {
		return err
	}

	engine, err = dispatch.NewEngine(dispatch.EngineOption{
		Registry: subs,
		Tokens:   tokens,
		Wire:     manager,
		Cache:    prices,
		Outbox:   outbox,
		Metrics:  metrics,
	})
	if err != nil {
		return err
	}

	manager.Start(ctx)
	logs.Infof("feedd started: %d accounts, %d tokens", len(cfg.Accounts), tokens.Len())

	statsTicker := time.NewTicker(30 * time.Second)
	defer statsTicker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-sys.Shutdown():
			break loop
		case <-statsTicker.C:
			logStats(metrics, manager)
		}
	}

	logs.Info("feedd shutting down")
	manager.Shutdown()
	engine.Shutdown()
	return nil
}

func accountSpecs(cfg ops.Config) []feed.AccountSpec {
	specs := make([]feed.AccountSpec, 0, len(cfg.Accounts))
	for _, acct := range cfg.Accounts {
		specs = append(specs, feed.AccountSpec{
			ID:        acct.ID,
			AccountID: acct.AccountID,
			Exchanges: acct.Exchanges,
		})
	}
	return specs
}

func buildTokenSource(cfg ops.Config) (tokenref.Source, func(), error) {
	if cfg.Postgres.Host == "" {
		static := make(tokenref.StaticSource, 0, len(cfg.Tokens.Static))
		for _, entry := range cfg.Tokens.Static {
			static = append(static, tokenref.Token{
				ID:       entry.TokenID,
				Symbol:   entry.Symbol,
				Exchange: entry.Exchange,
				Active:   true,
			})
		}
		return static, func() {}, nil
	}

	client, err := conn.New(conn.Option{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		Database: cfg.Postgres.Database,
		SSLMode:  cfg.Postgres.SSLMode,
	})
	if err != nil {
		return nil, nil, err
	}
	store, err := tokenref.NewStore(client.DB())
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return store, func() { _ = client.Close() }, nil
}

func logStats(metrics *obs.Metrics, manager *feed.Manager) {
	snap := metrics.Read()
	logs.Infof("stats: frames=%d decode_errors=%d reconnects=%d drops=%d deliveries=%d",
		snap.Frames, snap.DecodeErrors, snap.Reconnects, snap.OutboxDrops, snap.Deliveries)
	for _, health := range manager.Health() {
		logs.Infof("session %s: state=%s registered=%d last_heartbeat=%s",
			health.ID, health.State, health.Registered, health.LastHeartbeat.Format(time.RFC3339))
	}
}

// sinkFunc adapts a closure to feed.Sink so the engine can be
// constructed after the sessions that feed it.
type sinkFunc func(sessionID string, pkt feed.Packet)

func (f sinkFunc) OnPacket(sessionID string, pkt feed.Packet) {
	f(sessionID, pkt)
}

// logDeliverer stands in for the client-facing transport, which attaches
// through dispatch.Deliverer.
type logDeliverer struct{}

func (logDeliverer) Deliver(subscriberID string, msg dispatch.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	logs.Debugf("deliver %s: %s", subscriberID, payload)
	return nil
}
