package main

import (
	"TCCTransaction/log"
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCommand().ExecuteContext(ctx)
	_ = log.Sync()
	if err != nil {
		os.Exit(1)
	}
}
