// Copyright (c) 2025 The StakeHub developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/stakehub/stakehub/api"
	"github.com/stakehub/stakehub/genesis"
	"github.com/stakehub/stakehub/kv"
	"github.com/stakehub/stakehub/log"
	"github.com/stakehub/stakehub/metrics"
	"github.com/stakehub/stakehub/remote"
	"github.com/stakehub/stakehub/state"
	"github.com/stakehub/stakehub/vault"
)

var version = "0.1.0"

var logger = log.WithContext("pkg", "main")

func main() {
	app := cli.App{
		Version:   version,
		Name:      "stakehub",
		Usage:     "liquid staking vault node",
		Copyright: "2025 The StakeHub developers",
		Flags: []cli.Flag{
			dataDirFlag,
			genesisFlag,
			apiAddrFlag,
			verbosityFlag,
			jsonLogsFlag,
			enableMetricsFlag,
			metricsAddrFlag,
			blockIntervalFlag,
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initLogger(ctx *cli.Context) {
	level := verbosityToLevel(ctx.Int(verbosityFlag.Name))
	var handler slog.Handler
	if ctx.Bool(jsonLogsFlag.Name) || !isatty.IsTerminal(os.Stderr.Fd()) {
		handler = log.NewJSONHandler(os.Stderr, level)
	} else {
		handler = log.NewTextHandler(os.Stderr, level)
	}
	log.SetDefault(handler)
}

func verbosityToLevel(v int) slog.Level {
	switch {
	case v <= 0:
		return log.LevelCrit
	case v == 1:
		return log.LevelError
	case v == 2:
		return log.LevelWarn
	case v == 3:
		return log.LevelInfo
	case v == 4:
		return log.LevelDebug
	default:
		return log.LevelTrace
	}
}

func run(ctx *cli.Context) error {
	initLogger(ctx)

	if ctx.Bool(enableMetricsFlag.Name) {
		metrics.InitializePrometheusMetrics()
		go func() {
			addr := ctx.String(metricsAddrFlag.Name)
			logger.Info("metrics server listening", "addr", addr)
			if err := http.ListenAndServe(addr, metrics.HTTPHandler()); err != nil {
				logger.Error("metrics server failed", "err", err)
			}
		}()
	}

	genesisPath := ctx.String(genesisFlag.Name)
	if genesisPath == "" {
		return cli.NewExitError("--genesis is required", 1)
	}
	cfg, err := genesis.LoadFile(genesisPath)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	vaultCfg, err := cfg.VaultConfig()
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	initParams, err := cfg.InitParams()
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	dataDir := ctx.String(dataDirFlag.Name)
	db, err := kv.NewLevelDB(filepath.Join(dataDir, "state.db"), kv.Options{
		CacheSize:              128,
		OpenFilesCacheCapacity: 512,
	})
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer db.Close()

	// local runs speak to a simulated remote layer; the bridge to the real
	// one slots in behind the same two interfaces
	sim := remote.NewSim(vaultCfg.RemoteAccount)
	reader, err := remote.NewCachedReader(sim, 1024)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	st := state.New(db)
	v := vault.New(st, reader, sim, vaultCfg)

	initialized, err := isInitialized(v, initParams)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	if !initialized {
		if err := v.Initialize(initParams); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		if err := v.Commit(); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		logger.Info("initialized fresh vault", "owner", initParams.Owner)
	}

	go api.Serve(ctx.String(apiAddrFlag.Name), api.New(v)) //nolint:errcheck

	interval := ctx.Uint64(blockIntervalFlag.Name)
	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	logger.Info("stakehub started",
		"version", version, "vault", vaultCfg.VaultAddress, "remote", vaultCfg.RemoteAccount)
	for {
		select {
		case <-ticker.C:
			sim.CommitBlock()
		case sig := <-quit:
			logger.Info("shutting down", "signal", sig.String())
			return nil
		}
	}
}

// isInitialized checks whether genesis has already been applied, by probing
// for the owner role it would have granted.
func isInitialized(v *vault.Vault, p vault.InitParams) (bool, error) {
	return v.IsOwner(p.Owner)
}
