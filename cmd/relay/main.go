package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/SWAI-Ltd/Sealbox/internal/relay"
)

func main() {
	cfg, err := relay.LoadConfig()
	if err != nil {
		slog.Error("bad configuration", "err", err)
		os.Exit(1)
	}
	addr := flag.String("addr", cfg.ListenAddr, "QUIC listen address")
	statusAddr := flag.String("status-addr", cfg.StatusAddr, "HTTP status listen address (empty to disable)")
	advertise := flag.Bool("advertise", cfg.Advertise, "announce the relay via mDNS")
	flag.Parse()
	cfg.ListenAddr = *addr
	cfg.StatusAddr = *statusAddr
	cfg.Advertise = *advertise

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		cancel()
	}()

	srv, err := relay.Run(ctx, cfg)
	if err != nil {
		slog.Error("failed to start relay", "err", err)
		os.Exit(1)
	}
	if srv.StatusAddr() != "" {
		slog.Info("status endpoint up", "addr", srv.StatusAddr())
	}
	<-ctx.Done()
	slog.Info("relay shutting down")
}
