package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Meugenn/knowledge-graph-sub001/internal/bootstrap"
	"github.com/Meugenn/knowledge-graph-sub001/internal/queue"
	"github.com/Meugenn/knowledge-graph-sub001/internal/server"
	mid "github.com/Meugenn/knowledge-graph-sub001/internal/server/middleware"
	"github.com/Meugenn/knowledge-graph-sub001/internal/timing"
	"github.com/Meugenn/knowledge-graph-sub001/internal/util"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/logger"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/logger/console"

	"github.com/MicahParks/keyfunc/v3"
	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	// Artifact events are optional for the server
	var opts bootstrap.Options
	if util.GetEnvBool("PUBLISH_ARTIFACTS", false) {
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

		if err := queue.SetupQueues(ch, nil); err != nil {
			logger.Fatal("Failed to declare artifact exchange", "err", err)
		}
		opts.Publisher = queue.NewArtifactPublisher(ch)
	}

	rt, err := bootstrap.Setup(ctx, opts)
	if err != nil {
		logger.Fatal("Failed to set up scheduler", "err", err)
	}
	defer rt.Close()

	snapshotsDone := make(chan struct{})
	go func() {
		defer close(snapshotsDone)
		rt.RunSnapshots(ctx)
	}()

	app := &mid.App{
		Graph:          rt.Graph,
		Engine:         rt.Engine,
		Trism:          rt.Trism,
		BaseContext:    ctx,
		MasterAPIKey:   util.GetEnv("MASTER_API_KEY"),
		MasterUserID:   util.GetEnvString("MASTER_USER_ID", "master"),
		MasterUserRole: util.GetEnvString("MASTER_USER_ROLE", "admin"),
	}

	if authURL := util.GetEnv("AUTH_URL"); authURL != "" {
		k, err := keyfunc.NewDefault([]string{authURL + "/jwks"})
		if err != nil {
			logger.Fatal("Failed to load jwks keys", "err", err)
		}
		app.KeyFunc = k.Keyfunc
	} else {
		logger.Warn("[Server] AUTH_URL not set, only the master API key is accepted")
	}

	if util.GetEnvBool("AUTO_AWAKEN", false) {
		if err := rt.Engine.Awaken(ctx); err != nil {
			logger.Error("[Republic] Failed to awaken on start", "err", err)
		}
	}

	go func() {
		ticker := time.NewTicker(util.GetEnvDuration("AI_METRICS_INTERVAL", 5*time.Minute))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rt.LogMetrics(timing.Millis)
			}
		}
	}()

	e := server.New(app)
	if err := server.Run(ctx, e, util.GetEnvString("PORT", "8080")); err != nil {
		logger.Error("Server stopped", "err", err)
	}

	sleepCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := rt.Engine.Sleep(sleepCtx); err != nil {
		logger.Error("[Republic] Failed to stop scheduler", "err", err)
	}

	stop()
	<-snapshotsDone
	logger.Info("Shutdown complete")
}
