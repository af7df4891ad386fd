package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"graphseed/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cli := newCLI(stdout, stderr)
	root := cli.rootCommand()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	cli.report(ctx, err)
	return app.ExitCode(err)
}
