// Command quoter runs a single-symbol perpetual market-making agent.
//
// Architecture:
//
//	main.go              — entry point: loads config, wires the agent, waits for SIGINT/SIGTERM
//	engine/engine.go     — single-threaded core: readiness state machine + reconcile-and-flush loop
//	ladder/              — per-side ring buffer, order FSM, N-rung reconciliation
//	quote/quote.go       — inventory-skewed fair price and liquidity curve
//	exchange/            — venue REST client, WebSocket feeds, async dispatch worker pool
//	risk/manager.go      — independent PnL/price-shock kill switch
//	store/store.go       — JSON snapshot persistence (next_client_id, position, last auction id)
//	dashboard/           — read-only operator HTTP/WebSocket status server
//
// Exit codes: 0 on graceful shutdown, 1 on a fatal core invariant violation,
// 2 on config load/validation failure.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"perpquoter/internal/config"
	"perpquoter/internal/dashboard"
	"perpquoter/internal/engine"
	"perpquoter/internal/exchange"
	"perpquoter/internal/ladder"
	"perpquoter/internal/quote"
	"perpquoter/internal/risk"
	"perpquoter/internal/store"
	"perpquoter/pkg/money"
	"perpquoter/pkg/types"
)

func main() {
	var (
		configPath = flag.String("config", "configs/config.yaml", "path to config YAML")
		envPath    = flag.String("env", ".env", "path to .env file")
		logLevel   = flag.String("log-level", "", "override logging.level from config")
		dryRun     = flag.Bool("dry-run", false, "log intended place/cancel calls but never send them")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath, *envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(2)
	}
	if *dryRun {
		cfg.DryRun = true
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(2)
	}

	logger := newLogger(cfg.Logging)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snapStore, err := store.Open(cfg.Store.Path)
	if err != nil {
		logger.Error("failed to open snapshot store", "error", err)
		os.Exit(2)
	}
	defer snapStore.Close()

	prior, err := snapStore.Load()
	if err != nil {
		logger.Warn("failed to load prior snapshot, starting fresh", "error", err)
	}
	var seedClientID int64
	if prior != nil {
		seedClientID = prior.NextClientID
	}

	auth, err := exchange.NewAuth(*cfg)
	if err != nil {
		logger.Error("failed to build auth", "error", err)
		os.Exit(2)
	}

	client := exchange.NewClient(*cfg, auth, logger)
	dispatcher := exchange.NewDispatcher(4, logger)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	adapter := exchange.NewAdapter(client, dispatcher, *cfg, seedClientID, logger)
	if !cfg.DryRun {
		if err := adapter.Login(ctx); err != nil {
			logger.Error("failed to log in", "error", err)
			os.Exit(1)
		}
	}

	ladderCfg := ladder.Config{
		TargetNumOrders: cfg.Market.OrdersPerSide,
		TickJump:        money.FromFloat(cfg.Market.TickJump),
		MinOrderSize:    money.FromFloat(cfg.Market.MinOrderSize),
		MaxOrderSize:    money.FromFloat(cfg.Market.MaxOrderSize),
		HysteresisLow:   money.FromFloat(cfg.Market.HysteresisLow),
		HysteresisMin:   money.FromFloat(cfg.Market.HysteresisMin),
	}
	bidSide := ladder.NewSide(ladderCfg, types.BID, money.Zero, logger)
	askSide := ladder.NewSide(ladderCfg, types.ASK, money.Zero, logger)
	quoteLadder := ladder.NewLadder(bidSide, askSide, logger)

	quoteModel := quote.NewModel(quote.Config{
		TickJump:     money.FromFloat(cfg.Market.TickJump),
		MaxDiff:      money.FromFloat(cfg.Market.MaxDiff),
		MaxPosition:  money.FromFloat(cfg.Market.MaxPosition),
		MaxLiquidity: money.FromFloat(cfg.Market.MaxLiquidity),
		Spread:       money.FromFloat(cfg.Market.Spread),
	})

	agent := engine.NewAgent(engine.Config{
		Market: cfg.Market.Symbol,
		Spread: money.FromFloat(cfg.Market.Spread),
	}, quoteLadder, quoteModel, adapter, logger)

	riskManager := risk.NewManager(cfg.Risk, logger)
	go riskManager.Run(ctx)

	var dashSrv *dashboard.Server
	if cfg.Dashboard.Enabled {
		dashSrv = dashboard.NewServer(cfg.Dashboard, dashboardProvider{agent: agent, risk: riskManager, cfg: *cfg}, *cfg, logger)
		go func() {
			if err := dashSrv.Start(); err != nil {
				logger.Error("dashboard server failed", "error", err)
			}
		}()
		logger.Info("dashboard started", "addr", cfg.Dashboard.Addr)
	}

	venueFeed := exchange.NewVenueFeed(cfg.API.WSVenueURL, auth, logger)
	referenceFeed := exchange.NewReferenceFeed(cfg.ReferenceFeed.URL, logger)

	go func() {
		if err := venueFeed.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("venue feed stopped", "error", err)
		}
	}()
	go func() {
		if err := referenceFeed.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("reference feed stopped", "error", err)
		}
	}()

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}
	logger.Info("quoter started", "symbol", cfg.Market.Symbol, "dry_run", cfg.DryRun)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	fatalCh := make(chan error, 1)
	writeTicker := time.NewTicker(cfg.Store.WriteInterval)
	defer writeTicker.Stop()

	var broadcastTicker *time.Ticker
	var broadcastCh <-chan time.Time
	if dashSrv != nil {
		broadcastTicker = time.NewTicker(time.Second)
		defer broadcastTicker.Stop()
		broadcastCh = broadcastTicker.C
	}

	exitCode := 0
runLoop:
	for {
		select {
		case env := <-venueFeed.Envelopes():
			if err := agent.HandleEnvelope(ctx, env); err != nil {
				logger.Error("fatal core error", "error", err)
				fatalCh <- err
			}

		case tick := <-referenceFeed.Ticks():
			// While the kill switch's cooldown runs, no reconciliation pass
			// is made, so nothing new is placed.
			if !riskManager.IsKillSwitchActive() {
				if err := agent.HandleReferenceTick(ctx, tick); err != nil {
					logger.Error("fatal core error", "error", err)
					fatalCh <- err
				}
			}
			riskManager.Report(risk.PnLReport{
				Position:       agent.Snapshot().Position,
				ReferencePrice: tick.Price,
				UnrealizedPnL:  quoteModel.UnrealizedPnL(tick.Price),
				Timestamp:      time.Now(),
			})

		case res := <-dispatcher.Results():
			agent.HandleDispatchResult(res)

		case sig := <-riskManager.KillCh():
			logger.Error("kill switch triggered, cancelling everything", "reason", sig.Reason)
			agent.CancelEverything(ctx)

		case <-writeTicker.C:
			writeSnapshot(snapStore, agent, adapter, logger)

		case <-broadcastCh:
			snap := dashboard.BuildSnapshot(agent.Snapshot(), riskManager.Snapshot(), *cfg, time.Now())
			dashSrv.Broadcast(snap)

		case err := <-fatalCh:
			_ = err
			exitCode = 1
			break runLoop

		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig.String())
			break runLoop
		}
	}

	agent.CancelEverything(context.Background())
	writeSnapshot(snapStore, agent, adapter, logger)

	if dashSrv != nil {
		if err := dashSrv.Stop(); err != nil {
			logger.Error("failed to stop dashboard", "error", err)
		}
	}

	cancel()
	os.Exit(exitCode)
}

func writeSnapshot(s *store.Store, agent *engine.Agent, adapter *exchange.Adapter, logger *slog.Logger) {
	snap := agent.Snapshot()
	err := s.Save(store.Snapshot{
		NextClientID:  adapter.PeekNextClientID(),
		Position:      snap.Position,
		LastAuctionID: snap.LastAuctionID,
	})
	if err != nil {
		logger.Error("failed to write snapshot", "error", err)
	}
}

type dashboardProvider struct {
	agent *engine.Agent
	risk  *risk.Manager
	cfg   config.Config
}

func (p dashboardProvider) DashboardSnapshot() dashboard.Snapshot {
	return dashboard.BuildSnapshot(p.agent.Snapshot(), p.risk.Snapshot(), p.cfg, time.Now())
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
