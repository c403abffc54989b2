package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/captiondesk/internal/bootstrap"
	"github.com/dharsanguruparan/captiondesk/internal/config"
	"github.com/dharsanguruparan/captiondesk/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := bootstrap.Logger(cfg, "captiondesk-worker")
	helper := log.NewHelper(logger)

	client, err := bootstrap.Client(cfg, logger)
	if err != nil {
		helper.Fatalf("init stt client: %v", err)
	}
	archiver, cleanup, err := bootstrap.Archiver(ctx, cfg, logger)
	if err != nil {
		helper.Fatalf("init archive: %v", err)
	}
	defer cleanup()

	server := asynq.NewServer(bootstrap.RedisOpt(cfg), asynq.Config{
		Concurrency: cfg.Workers,
	})
	processor := worker.NewProcessor(client, archiver, logger)
	mux := processor.Handler()

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	helper.Infof("worker started: api=%s redis=%s concurrency=%d archive=%t", cfg.APIBase, cfg.RedisAddr, cfg.Workers, archiver.Enabled())
	if err := server.Run(mux); err != nil {
		helper.Errorf("worker stopped: %v", err)
		cleanup()
		os.Exit(1)
	}
}
