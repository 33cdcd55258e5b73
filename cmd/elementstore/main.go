// Command elementstore is the command line interface to the element store.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/roach88/elementstore/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
