// Package main runs the station client: an interactive shell that drives
// the RFID reader and camera pipeline through the backend and logs what a
// user takes from or returns to the boxes.
package main

import (
	"bufio"
	"cmp"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/rfidvision/rfidlog/internal/client/api"
	"github.com/rfidvision/rfidlog/internal/client/storage"
	"github.com/rfidvision/rfidlog/internal/config"
	"github.com/rfidvision/rfidlog/internal/logger"
)

var (
	version   string
	buildDate string
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("rfidlog station\nVersion: %s\nBuild Date: %s\n", cmp.Or(version, "N/A"), cmp.Or(buildDate, "N/A"))
		return
	}

	opts, err := config.ParseClient(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(opts.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	zapLogger := log.Log

	httpClient, err := api.NewHTTPClient(opts.CertFile, opts.KeyFile, opts.CAFile, opts.RequestTimeout)
	if err != nil {
		zapLogger.Fatal("failed to set up HTTP client", zap.Error(err))
	}
	tlsCfg, err := api.NewTLSConfig(opts.CertFile, opts.KeyFile, opts.CAFile)
	if err != nil {
		zapLogger.Fatal("failed to set up TLS", zap.Error(err))
	}
	client := api.New(opts.BaseURL, httpClient, zapLogger).WithTimeout(opts.RequestTimeout)

	pending := storage.New(opts.PendingFile)
	if err := pending.Load(); err != nil {
		zapLogger.Fatal("failed to load pending logs", zap.Error(err), zap.String("path", opts.PendingFile))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := newStation(ctx, opts, client, tlsCfg, pending, os.Stdout, zapLogger)
	if err := st.startSession(); err != nil {
		zapLogger.Fatal("failed to start session", zap.Error(err))
	}
	defer st.endSession()

	if n := len(st.rec.Pending()); n > 0 {
		st.printf("%d submissions are pending, see 'pending'\n", n)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		st.repl(bufio.NewScanner(os.Stdin))
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
	st.printf("Bye\n")
}
