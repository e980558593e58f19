// Command regcrawler acquires ICT regulation documents from Indonesian
// government sources and keeps the relevant ones.
//
//	regcrawler run --source jdih-kominfo     run one source to completion
//	regcrawler run --all                     run every active source
//	regcrawler calibrate --source ID         trial fetch strategies
//	regcrawler serve                         ops API plus worker pool
//
// Configuration comes from --config (YAML) and REGCRAWLER_* environment
// variables. SIGINT and SIGTERM stop runs after the URL in flight.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/JakeFAU/tik-regcrawler/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cli.Execute(ctx, cli.DefaultFactory, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "regcrawler: %v\n", err)
		os.Exit(1)
	}
}
