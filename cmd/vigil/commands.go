package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/loykin/vigil"
	"github.com/loykin/vigil/internal/config"
	"github.com/loykin/vigil/internal/heartbeat"
	"github.com/loykin/vigil/internal/history/clickhouse"
	"github.com/loykin/vigil/internal/logger"
	"github.com/loykin/vigil/internal/monitor"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var f RunFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one monitor instance until SIGINT/SIGTERM",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(f)
		},
	}
	cmd.Flags().StringVarP(&f.ConfigPath, "config", "c", "", "TOML config file")
	cmd.Flags().StringVar(&f.WorkDir, "workdir", "", "shared heartbeat directory")
	cmd.Flags().StringVar(&f.SessionID, "session-id", "", "session id (default: random uuid)")
	cmd.Flags().BoolVar(&f.Debug, "debug", false, "mark this instance as running under a debugger")
	cmd.Flags().DurationVar(&f.HeartbeatInterval, "heartbeat-interval", 0, "heartbeat write interval")
	cmd.Flags().DurationVar(&f.CheckInterval, "check-interval", 0, "sibling check interval")
	cmd.Flags().DurationVar(&f.CrashThreshold, "crash-threshold", 0, "staleness before a sibling counts as crashed")
	cmd.Flags().StringVar(&f.ServeAddr, "serve", "", "listen address for the diagnostics HTTP server")
	cmd.Flags().StringVar(&f.StoreDriver, "store-driver", "", "bookkeeping store driver (sqlite, postgres)")
	cmd.Flags().StringVar(&f.StoreDSN, "store-dsn", "", "bookkeeping store DSN")
	return cmd
}

func runMonitor(f RunFlags) error {
	cfg := &config.Config{}
	if f.ConfigPath != "" {
		loaded, err := config.Load(f.ConfigPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	applyRunFlags(cfg, f)
	if cfg.Monitor.WorkDir == "" {
		return fmt.Errorf("a working directory is required (--workdir or [monitor] workdir)")
	}

	log := logger.New(cfg.LoggerConfig())
	slog.SetDefault(log)

	var bookkeep vigil.Store
	if cfg.Store.Driver != "" || cfg.Store.DSN != "" {
		st, err := vigil.NewKVStore(cfg.Store.Driver, cfg.Store.DSN)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()
		bookkeep = st
	}

	var sinks []vigil.Sink
	if cfg.History.ClickHouseAddr != "" {
		sink, err := clickhouse.New(
			cfg.History.ClickHouseAddr,
			cfg.History.ClickHouseDatabase,
			cfg.History.ClickHouseUser,
			cfg.History.ClickHousePassword,
			cfg.History.ClickHouseTable,
		)
		if err != nil {
			return err
		}
		defer func() { _ = sink.Close() }()
		if err := sink.EnsureTable(context.Background()); err != nil {
			return err
		}
		sinks = append(sinks, sink)
	}

	if err := vigil.RegisterMetricsDefault(); err != nil {
		return err
	}

	mon, err := vigil.New(vigil.Config{
		WorkDir:           cfg.Monitor.WorkDir,
		SessionID:         cfg.Monitor.SessionID,
		IsDebug:           cfg.Monitor.Debug,
		HeartbeatInterval: cfg.Monitor.HeartbeatInterval,
		CheckInterval:     cfg.Monitor.CheckInterval,
		CrashThreshold:    cfg.Monitor.CrashThreshold,
		Sinks:             sinks,
		Bookkeep:          bookkeep,
		Logger:            log,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mon.Start(ctx); err != nil {
		return err
	}

	if addr := cfg.Server.Listen; addr != "" {
		srv, err := mon.NewHTTPServer(addr, cfg.Server.BasePath)
		if err != nil {
			return err
		}
		defer func() { _ = srv.Close() }()
		log.Info("diagnostics server listening", "addr", addr)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")
	return mon.Stop()
}

func applyRunFlags(cfg *config.Config, f RunFlags) {
	if f.WorkDir != "" {
		cfg.Monitor.WorkDir = f.WorkDir
	}
	if f.SessionID != "" {
		cfg.Monitor.SessionID = f.SessionID
	}
	if f.Debug {
		cfg.Monitor.Debug = true
	}
	if f.HeartbeatInterval > 0 {
		cfg.Monitor.HeartbeatInterval = f.HeartbeatInterval
	}
	if f.CheckInterval > 0 {
		cfg.Monitor.CheckInterval = f.CheckInterval
	}
	if f.CrashThreshold > 0 {
		cfg.Monitor.CrashThreshold = f.CrashThreshold
	}
	if f.ServeAddr != "" {
		cfg.Server.Listen = f.ServeAddr
	}
	if f.StoreDriver != "" {
		cfg.Store.Driver = f.StoreDriver
	}
	if f.StoreDSN != "" {
		cfg.Store.DSN = f.StoreDSN
	}
}

func newStatusCmd() *cobra.Command {
	var f StatusFlags
	cmd := &cobra.Command{
		Use:   "status",
		Short: "List heartbeat records in a shared directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printStatus(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.WorkDir, "workdir", "", "shared heartbeat directory")
	cmd.Flags().DurationVar(&f.CrashThreshold, "crash-threshold", monitor.DefaultThresholdMultiplier*monitor.DefaultHeartbeatInterval, "staleness used to classify records")
	_ = cmd.MarkFlagRequired("workdir")
	return cmd
}

func printStatus(cmd *cobra.Command, f StatusFlags) error {
	st := heartbeat.NewStore(f.WorkDir, slog.Default())
	recs, err := st.List()
	if err != nil {
		return err
	}
	now := time.Now()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SESSION\tPID\tLAST HEARTBEAT\tAGE\tDEBUG\tSTATE")
	for _, r := range recs {
		state := "alive"
		if r.Age(now) > f.CrashThreshold {
			state = "stale"
		}
		if r.IsDebug {
			state = "debug"
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%v\t%s\n",
			r.SessionID, r.PID,
			r.HeartbeatTime().Format(time.RFC3339),
			r.Age(now).Round(time.Second),
			r.IsDebug, state)
	}
	return w.Flush()
}

func newCleanCmd() *cobra.Command {
	var f CleanFlags
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove every heartbeat record from a shared directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			st := heartbeat.NewStore(f.WorkDir, slog.Default())
			if err := st.Clear(); err != nil {
				return err
			}
			cmd.Printf("cleared heartbeat records in %s\n", f.WorkDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&f.WorkDir, "workdir", "", "shared heartbeat directory")
	_ = cmd.MarkFlagRequired("workdir")
	return cmd
}
