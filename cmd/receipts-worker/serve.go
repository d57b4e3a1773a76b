package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	coreasync "github.com/joseph-ayodele/receipts-ocr-worker/internal/core/async"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the worker as a long-lived gRPC service",
	Long: `Start the gRPC WorkerService (ProcessBatch, QueueStats, Enqueue,
ExportDeadLetters) with health and reflection, and trigger a batch every
POLL_INTERVAL. Set POLL_INTERVAL=0 to only process on request.`,
	Args: cobra.NoArgs,
	RunE: serve,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := buildWorker(ctx, cfg)
	if err != nil {
		return err
	}
	defer w.Close()

	q := coreasync.NewBatchQueue(w.proc, logger,
		coreasync.WithWorkers(cfg.Server.Workers),
		coreasync.WithRunTimeout(runTimeout()),
	)

	svc := server.NewWorkerService(w.proc, q, w.db.jobs, w.export, logger)
	gs, hs := server.NewGRPCServer(svc, logger)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return err
	}
	logger.Info("gRPC serving", "addr", lis.Addr().String(), "poll_interval", cfg.Server.PollInterval.String())

	serveErr := make(chan error, 1)
	go func() { serveErr <- gs.Serve(lis) }()

	if cfg.Server.PollInterval > 0 {
		go q.Tick(ctx, cfg.Server.PollInterval)
	}

	select {
	case <-ctx.Done():
	case err = <-serveErr:
		logger.Error("grpc serve", "error", err)
	}

	logger.Info("shutting down...")
	hs.Shutdown()
	gs.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	q.Shutdown(shutdownCtx)
	return err
}

// runTimeout gives one batch room for every job at JOB_TIMEOUT.
func runTimeout() time.Duration {
	return time.Duration(cfg.Queue.BatchSize+1) * cfg.Queue.JobTimeout
}
