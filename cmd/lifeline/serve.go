package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/zulandar/lifeline/internal/api"
	"github.com/zulandar/lifeline/internal/db"
	"github.com/zulandar/lifeline/internal/sweep"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the SOS API server",
		Long:  "Migrates the database, starts the stale-event sweep, and serves the SOS HTTP API until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides server.port)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	gormDB, err := connect(cfg)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(ctx, cfg, gormDB)
	defer a.Close()

	waitSweep := func() {}
	if cfg.Sweep.SweepEnabled() {
		waitSweep = startSweep(ctx, sweep.Opts{
			Sweeper:    a.manager,
			Schedule:   cfg.Sweep.Schedule,
			StaleAfter: cfg.Sweep.StaleAfter,
			RunAtStart: true,
			Lock:       sweep.NewLease(gormDB, "stale-sweep", replicaID(), 0),
		})
	}
	// Runs before a.Close: the sweep must stop before the relay and
	// database it uses are closed.
	defer func() {
		stop()
		waitSweep()
	}()

	if sinks := a.relay.Sinks(); len(sinks) > 0 {
		logrus.WithField("sinks", sinks).Info("relay: mirroring events")
	}

	err = api.Start(ctx, api.StartOpts{
		Service:        a.manager,
		DB:             gormDB,
		Feed:           a.feed,
		Channels:       a.channels(),
		Port:           cfg.Server.Port,
		IdentityHeader: cfg.Server.IdentityHeader,
		Out:            cmd.OutOrStdout(),
	})
	if err == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "Shut down.")
	}
	return err
}

// startSweep runs the stale sweep in the background until ctx is done.
// The returned func blocks until the sweep has returned.
func startSweep(ctx context.Context, opts sweep.Opts) (wait func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := sweep.Run(ctx, opts); err != nil {
			logrus.WithError(err).Error("sweep: not running")
		}
	}()
	return func() { <-done }
}

// replicaID names this process in the sweep lease.
func replicaID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "lifeline"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
