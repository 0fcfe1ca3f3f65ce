package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alvmarrod/ticker-weaver/cmd/weaver/commands"
	"github.com/sirupsen/logrus"
)

func main() {
	// Configure logging
	logrus.SetLevel(logrus.InfoLevel)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// SIGINT/SIGTERM cancel the run; each command flushes what it holds
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	commands.ExecuteContext(ctx)
}
