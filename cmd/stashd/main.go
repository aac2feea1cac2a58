package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"
	"time"

	"stashbox/config"
	"stashbox/core/events"
	coretypes "stashbox/core/types"
	"stashbox/crypto"
	"stashbox/native/liquidity"
	"stashbox/native/savings"
	"stashbox/observability"
	"stashbox/observability/logging"
	"stashbox/rpc"
	statesavings "stashbox/state/savings"
	"stashbox/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	memDB := flag.Bool("memdb", false, "DEV ONLY: use an in-memory database")
	devYieldBps := flag.Int64("dev-yield-bps", 0, "DEV ONLY: accrue simulated venue fees at this rate per interval, in basis points of deployed liquidity")
	devYieldInterval := flag.Duration("dev-yield-interval", 10*time.Second, "DEV ONLY: interval between simulated fee accruals")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	env := strings.TrimSpace(os.Getenv("STASHBOX_ENV"))
	logger := logging.Setup("stashd", env, cfg.LogFile)

	var db storage.Database
	if *memDB {
		db = storage.NewMemDB()
	} else {
		ldb, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			panic(fmt.Sprintf("Failed to open database: %v", err))
		}
		defer ldb.Close()
		db = ldb
	}

	store, err := statesavings.NewStore(db)
	if err != nil {
		panic(fmt.Sprintf("Failed to open state store: %v", err))
	}

	allocs, err := cfg.Allocations()
	if err != nil {
		panic(fmt.Sprintf("Failed to parse dev allocations: %v", err))
	}
	if err := store.EnsureGenesis(cfg.Admin(), cfg.PositionLowerBound, cfg.PositionUpperBound, allocs); err != nil {
		panic(fmt.Sprintf("Failed to initialise genesis state: %v", err))
	}

	moduleAddr := crypto.DeriveModuleAddress("savings")
	venueAddr := crypto.DeriveModuleAddress("liquidity-venue")

	venue := liquidity.NewDevVenue(venueAddr)
	settler, err := liquidity.NewSettler(venue, venueAddr, moduleAddr)
	if err != nil {
		panic(fmt.Sprintf("Failed to create settler: %v", err))
	}
	venue.SetUnlockHandler(settler)

	engine, err := savings.NewEngine(moduleAddr)
	if err != nil {
		panic(fmt.Sprintf("Failed to create savings engine: %v", err))
	}
	engine.SetState(store)
	engine.SetSettler(settler)
	engine.SetEmitter(observability.NewMetricsEmitter(&logEmitter{logger: logger}))

	if *devYieldBps > 0 {
		go runDevYield(logger, engine, venue, venueAddr, *devYieldBps, *devYieldInterval)
	}

	logger.Info("starting JSON-RPC server",
		slog.String("addr", cfg.RPCAddress),
		slog.String("network", cfg.NetworkName),
		slog.String("admin", cfg.AdminAddress),
	)
	server := rpc.NewServer(engine, cfg.RateLimitPerSecond, cfg.RateLimitBurst)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// logEmitter writes every committed ledger event to the structured log.
type logEmitter struct {
	logger *slog.Logger
}

func (l *logEmitter) Emit(evt events.Event) {
	if l == nil || l.logger == nil || evt == nil {
		return
	}
	payloader, ok := evt.(interface{ Event() *coretypes.Event })
	if !ok {
		l.logger.Info(evt.EventType())
		return
	}
	payload := payloader.Event()
	if payload == nil {
		return
	}
	attrs := make([]any, 0, len(payload.Attributes))
	for key, value := range payload.Attributes {
		attrs = append(attrs, slog.String(key, value))
	}
	l.logger.Info(payload.Type, attrs...)
}

// runDevYield periodically accrues simulated fees on the dev venue so yield
// flows without external trading activity. Each tick mints the fee amount onto
// the venue account first: accrued fees are paid out of that account, and
// without the matching credit every distribution would eat into the tokens
// backing deposited principal.
func runDevYield(logger *slog.Logger, engine *savings.Engine, venue *liquidity.DevVenue, venueAddr crypto.Address, bps int64, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		pos, err := engine.Position()
		if err != nil || pos == nil || pos.Liquidity.Sign() == 0 {
			continue
		}
		fees := new(big.Int).Mul(pos.Liquidity, big.NewInt(bps))
		fees.Div(fees, big.NewInt(10_000))
		if fees.Sign() == 0 {
			continue
		}
		if err := engine.CreditAccount(venueAddr, fees); err != nil {
			logger.Error("funding simulated venue fees failed", slog.Any("error", err))
			continue
		}
		venue.AccrueFees(fees)
		logger.Debug("accrued simulated venue fees", slog.String("amount", fees.String()))
	}
}
