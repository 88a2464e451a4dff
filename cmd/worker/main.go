package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Meugenn/knowledge-graph-sub001/internal/bootstrap"
	"github.com/Meugenn/knowledge-graph-sub001/internal/queue"
	"github.com/Meugenn/knowledge-graph-sub001/internal/timing"
	"github.com/Meugenn/knowledge-graph-sub001/internal/util"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/leaselock"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/logger"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	// Init rabbitmq
	conn, err := queue.Init(ctx)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "err", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, []string{queue.IngestQueue}); err != nil {
		logger.Fatal("Failed to declare queues", "err", err)
	}

	rt, err := bootstrap.Setup(ctx, bootstrap.Options{
		Publisher: queue.NewArtifactPublisher(ch),
	})
	if err != nil {
		logger.Fatal("Failed to set up scheduler", "err", err)
	}
	defer rt.Close()

	snapshotsDone := make(chan struct{})
	go func() {
		defer close(snapshotsDone)
		rt.RunSnapshots(ctx)
	}()

	if err := rt.Engine.Awaken(ctx); err != nil {
		if errors.Is(err, leaselock.ErrBusy) {
			logger.Fatal("Graph snapshot is owned by another scheduler", "err", err)
		}
		logger.Fatal("Failed to awaken scheduler", "err", err)
	}

	// Losing the lease means another process may write the snapshot now.
	if rt.Lease != nil {
		go func() {
			select {
			case <-ctx.Done():
			case <-rt.Lease.Lost():
				logger.Error("[Republic] Graph lease lost, shutting down", "err", rt.Lease.Err())
				stop()
			}
		}()
	}

	// Consumer channel with prefetch=1
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	logger.Info("Listening for messages", "queue", queue.IngestQueue)

	metricsEvery := util.GetEnvInt("AI_METRICS_EVERY", 10)
	processed := 0
	err = queue.Consume(ctx, consumerCh, queue.IngestQueue, func(ctx context.Context, body []byte) error {
		startTime := time.Now()

		n, err := queue.HandleIngest(rt.Engine, body)
		if err != nil {
			return err
		}

		logger.Info("Message processed successfully", "nodes", n, "duration", timing.Since(startTime))
		processed++
		if metricsEvery > 0 && processed%metricsEvery == 0 {
			rt.LogMetrics(timing.Millis)
		}
		return nil
	})
	if err != nil {
		logger.Error("Consumer stopped", "err", err)
	}

	logger.Info("Shutdown signal received, exiting...")

	sleepCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := rt.Engine.Sleep(sleepCtx); err != nil {
		logger.Error("[Republic] Failed to stop scheduler", "err", err)
	}
	rt.LogMetrics(timing.Millis)

	stop()
	<-snapshotsDone
}
