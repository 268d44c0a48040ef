package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/NethermindEth/katana/node"
	_ "go.uber.org/automaxprocs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	newKatana := func(ctx context.Context, cfg *node.Config, version string) (Katana, error) {
		return node.New(ctx, cfg, version)
	}
	err := NewCmd(new(node.Config), newKatana).ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
	}
	stop()
	os.Exit(ExitCode(err))
}
