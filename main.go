package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsqio/go-nsq"

	"askdocs/internal/app"
	"askdocs/internal/config"
	"askdocs/internal/logger"
	"askdocs/internal/worker"
)

func main() {
	// Structured logger: JSON lines, correlation id pulled from context.
	log := slog.New(logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil)))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		slog.Error("failed to bootstrap dependencies", "error", err)
		os.Exit(1)
	}
	defer deps.DB.Close()

	a, err := app.New(cfg, deps.DB, deps.VectorStore, deps.Model, deps.NSQProducer, log)
	if err != nil {
		slog.Error("failed to build application", "error", err)
		os.Exit(1)
	}

	// Async indexing worker
	if cfg.EnableIndexWorker {
		consumer, err := nsq.NewConsumer(config.TopicIndexTask, config.ChannelIndexWorker, nsq.NewConfig())
		if err != nil {
			slog.Error("failed to create NSQ consumer", "error", err)
			os.Exit(1)
		}
		indexConsumer := worker.NewIndexConsumer(a.Indexer)
		consumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
			return indexConsumer.HandleMessage(m)
		}))
		if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
			slog.Error("failed to connect to NSQLookupd", "error", err)
			os.Exit(1)
		}
		defer consumer.Stop()
		slog.Info("index worker connected", "topic", config.TopicIndexTask, "channel", config.ChannelIndexWorker)
	}

	if !cfg.EnableAPI {
		// Worker-only mode: stay up until signalled.
		slog.Info("api disabled, running worker only")
		<-ctx.Done()
		return
	}

	if err := a.Run(ctx); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
