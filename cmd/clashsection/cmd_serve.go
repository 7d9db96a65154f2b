package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rogers-f/clash-section-engine/internal/ipc"
	"github.com/rogers-f/clash-section-engine/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API for the UI until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	s, err := openSession(true)
	if err != nil {
		return err
	}
	defer s.Close()

	log := logging.New("serve")
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runs := ipc.NewRunManager(s.bridge, nil)
	srv := ipc.NewServer(&ipc.Handler{
		Bridge:            s.bridge,
		Runs:              runs,
		MaxFailureDetails: cfg.MaxFailureDetails,
	}, cfg.ListenAddr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		runs.Run(gctx)
		return nil
	})
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		runs.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	log.Info("clash section engine listening", "addr", cfg.ListenAddr, "tests", len(s.bridge.Tests))
	return g.Wait()
}
