package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"auctioneer/internal/config"
	"auctioneer/internal/server"
	"auctioneer/utils"
)

func main() {
	cfg, err := config.LoadServer(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\nusage: auctioneer <port> [flags]\n", err)
		os.Exit(2)
	}
	if err := utils.SetLogLevel(cfg.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	srv, err := server.New(cfg)
	if err != nil {
		utils.Fatal("Failed to configure server", map[string]any{"error": err.Error()})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Starting auction server on %s...\n", cfg.ListenAddr())
	if err := srv.Run(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Auction server failed: %v\n", err)
		os.Exit(1)
	}
}
