// Package main starts the checkout HTTP service process lifecycle.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	checkoutcmd "github.com/louisbranch/popup.city/internal/cmd/checkout"
	"github.com/louisbranch/popup.city/internal/platform/config"
)

func main() {
	cfg, err := checkoutcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	log.SetPrefix("[CHECKOUT] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := checkoutcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
