// Command auction-client joins an auctioneer server as seller or buyer.
//
// Usage:
//
//	auction-client <host> <port> [--codec json|cbor]
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"auctioneer/internal/client"
	"auctioneer/internal/config"
	"auctioneer/utils"
)

func main() {
	cfg, err := config.LoadClient(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := utils.SetLogLevel(cfg.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(ctx, cfg, os.Stdin, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to server: %v\n", err)
		os.Exit(1)
	}

	if err := c.Run(ctx); err != nil {
		if errors.Is(err, client.ErrRefused) {
			fmt.Println("Server is busy. Try to connect again later.")
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
