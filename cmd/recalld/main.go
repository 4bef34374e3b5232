// Recall ledger daemon.
//
// Usage:
//
//	recalld [--testnet --faucet ...]  Run the ledger and its RPC server
//	recalld --help                    Show help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Klingon-tech/klingnet-recall/config"
	"github.com/Klingon-tech/klingnet-recall/internal/ledger"
	"github.com/Klingon-tech/klingnet-recall/internal/log"
	"github.com/Klingon-tech/klingnet-recall/internal/rpc"
	"github.com/Klingon-tech/klingnet-recall/internal/storage"
)

const version = "0.1.0"

func main() {
	flags, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		config.PrintUsage()
		os.Exit(2)
	}
	if flags.Help {
		config.PrintUsage()
		return
	}
	if flags.Version {
		fmt.Printf("recalld %s\n", version)
		return
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := log.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		fmt.Fprintf(os.Stderr, "Error: init logging: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		log.Error().Err(err).Msg("Ledger stopped with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	db, err := storage.NewBadger(cfg.LedgerDir())
	if err != nil {
		return fmt.Errorf("open ledger db: %w", err)
	}
	defer db.Close()

	l := ledger.New(storage.NewPrefixDB(db, []byte(string(cfg.Network)+"/")), ledger.Options{
		FeeRate:   cfg.Ledger.FeeRate,
		Faucet:    cfg.Ledger.Faucet,
		FaucetMax: cfg.Ledger.FaucetMax,
	})

	info, err := l.Info()
	if err != nil {
		return fmt.Errorf("read ledger: %w", err)
	}
	log.Info().
		Str("network", string(cfg.Network)).
		Str("datadir", cfg.DataDir).
		Uint64("sequence", info.Sequence).
		Int("instances", info.Instances).
		Str("state_root", info.StateRoot.String()).
		Msg("Ledger opened")

	if !cfg.RPC.Enabled {
		log.Warn().Msg("RPC disabled, ledger is idle")
		waitForSignal()
		return nil
	}

	server := rpc.New(fmt.Sprintf("%s:%d", cfg.RPC.Addr, cfg.RPC.Port), cfg.Network, l, cfg.RPC)
	if err := server.Start(); err != nil {
		return fmt.Errorf("start rpc: %w", err)
	}

	waitForSignal()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		log.Warn().Err(err).Msg("RPC shutdown")
	}
	log.Info().Msg("Ledger stopped")
	return nil
}

func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}
