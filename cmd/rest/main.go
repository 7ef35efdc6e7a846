package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"clinic-chat-be/internal/bootstrap"
	"clinic-chat-be/internal/config"
	"clinic-chat-be/internal/server"
	"clinic-chat-be/internal/tracer"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Load Configuration
	cfg := config.Load()

	// 2. Tracing
	shutdownTracer := tracer.InitTracer(cfg.Tracing)
	defer shutdownTracer(context.Background())

	// 3. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(cfg)
	if err != nil {
		log.Fatalf("Unable to bootstrap: %v", err)
	}
	defer container.Close()

	// 4. Background consumers
	if err := container.UnattendedService.Start(container.Subscriber); err != nil {
		log.Fatalf("Unable to subscribe unattended-session consumer: %v", err)
	}

	// 5. Server
	srv := server.New(cfg, container)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		container.WebSocketHub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return srv.Run()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Server stopped: %v", err)
	}
}
