// pyperliquidity — an automated market maker for a single Hyperliquid spot
// market, maintaining a HIP-2 style geometric ladder of post-only orders.
//
// Architecture:
//
//	main.go                — entry point: CLI, config, credentials, logging, signals
//	engine/engine.go       — orchestrator: startup seeding, tick loop, event routing, reconciliation
//	quoting/quoting.go     — pure mapping: inventory + grid + boundary → desired order set
//	differ/differ.go       — pure diff: desired vs resting → {modifies, places, cancels}
//	emitter/emitter.go     — budget-gated batch dispatcher; the only mutating exchange I/O
//	orderstate/            — dual-indexed resting-order tracker: OID swaps, fill dedup, reconciliation
//	inventory/             — token/USDC balances with effective = min(allocated, account)
//	ratelimit/             — local mirror of the exchange's volume-priced request budget
//	grid/                  — immutable geometric price ladder with level lookup
//	hyperliquid/           — REST + WS clients and action signing
//	journal/               — optional SQLite fill/emit history
//
// How it makes money:
//
//	The bot rests one tranche-sized order on every affordable grid level:
//	asks from the boundary (the lowest resting ask) up, bids from the level
//	below it down. When the lowest ask fills, the boundary moves up one
//	level and the bid ladder, funded with the proceeds, starts at the level
//	the filled ask vacated.
//
// Usage:
//
//	PYPERLIQUIDITY_PRIVATE_KEY=... PYPERLIQUIDITY_WALLET=... \
//	  pyperliquidity run --config config.toml
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

	"github.com/joho/godotenv"

	"github.com/AlliedToasters/pyperliquidity/internal/config"
	"github.com/AlliedToasters/pyperliquidity/internal/engine"
	"github.com/AlliedToasters/pyperliquidity/internal/hyperliquid"
	"github.com/AlliedToasters/pyperliquidity/internal/journal"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 || args[0] != "run" {
		fmt.Fprintln(os.Stderr, "usage: pyperliquidity run --config <path>")
		return 1
	}

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "path to config.toml")
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}
	if *cfgPath == "" {
		fmt.Fprintln(os.Stderr, "usage: pyperliquidity run --config <path>")
		return 1
	}

	// A local .env is a convenience; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config validation failed:\n%s\n", err)
		return 1
	}
	creds, err := config.LoadCredentials()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	logger := newLogger(cfg.Logging)

	baseURL := hyperliquid.MainnetAPIURL
	wsURL := hyperliquid.MainnetWSURL
	if cfg.Market.Testnet {
		baseURL = hyperliquid.TestnetAPIURL
		wsURL = hyperliquid.TestnetWSURL
	}

	signer, err := hyperliquid.NewSigner(creds.PrivateKey, cfg.Market.Testnet)
	if err != nil {
		logger.Error("failed to initialize signer", "error", err)
		return 1
	}

	info := hyperliquid.NewInfo(baseURL, logger)
	exchange := hyperliquid.NewExchange(baseURL, signer, logger)
	feed := hyperliquid.NewWSFeed(wsURL, logger)

	var jnl engine.Journal
	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path, cfg.Market.Coin, logger)
		if err != nil {
			logger.Error("failed to open journal", "path", cfg.Journal.Path, "error", err)
			return 1
		}
		defer j.Close()
		jnl = j
	}

	eng := engine.New(engine.Params{
		Coin:              cfg.Market.Coin,
		StartPx:           cfg.Strategy.StartPx,
		NOrders:           cfg.Strategy.NOrders,
		OrderSz:           cfg.Strategy.OrderSz,
		NSeededLevels:     cfg.Strategy.NSeededLevels,
		Address:           creds.Wallet,
		Interval:          time.Duration(cfg.Tuning.IntervalS * float64(time.Second)),
		DeadZoneBps:       cfg.Tuning.DeadZoneBps,
		PriceToleranceBps: cfg.Tuning.PriceToleranceBps,
		SizeTolerancePct:  cfg.Tuning.SizeTolerancePct,
		ReconcileEvery:    cfg.Tuning.ReconcileEvery,
		MinNotional:       cfg.Tuning.MinNotional,
		AllocatedToken:    cfg.Allocation.AllocatedToken,
		AllocatedUSDC:     cfg.Allocation.AllocatedUSDC,
		Info:              info,
		Exchange:          exchange,
		Feed:              feed,
		Journal:           jnl,
		Logger:            logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	go func() {
		if err := feed.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("websocket feed error", "error", err)
		}
	}()

	logger.Info("starting market maker",
		"coin", cfg.Market.Coin,
		"wallet", creds.Wallet,
		"testnet", cfg.Market.Testnet,
		"n_orders", cfg.Strategy.NOrders,
		"order_sz", cfg.Strategy.OrderSz,
	)

	if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("engine stopped", "error", err)
		return 1
	}

	feed.Close()
	logger.Info("shutdown complete")
	return 0
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	var handler slog.Handler
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
