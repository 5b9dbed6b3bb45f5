package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"porramusical/internal/cli"
)

const (
	releaseVersion = "0.1.0"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := &cli.Options{}
	cobra.CheckErr(cli.NewRootCmd(opts, releaseVersion).ExecuteContext(ctx))
}
