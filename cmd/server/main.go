// Package main runs the inventory backend: boxes, users and the log of
// what stations hand out and take back.
package main

import (
	"cmp"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/rfidvision/rfidlog/internal/config"
	"github.com/rfidvision/rfidlog/internal/db"
	"github.com/rfidvision/rfidlog/internal/logger"
	"github.com/rfidvision/rfidlog/internal/notify"
	"github.com/rfidvision/rfidlog/internal/repository"
	"github.com/rfidvision/rfidlog/internal/server/handler/http"
	"github.com/rfidvision/rfidlog/internal/service"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	options, err := config.ParseServer(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	postgresDB, err := db.InitPostgres(options.DatabaseDSN)
	if err != nil {
		zapLogger.Fatal("cannot init database", zap.Error(err))
	}
	defer postgresDB.Close()

	db.StartSoftDeleteCleaner(ctx, postgresDB, clockwork.NewRealClock(), options.CleanupInterval, options.Retention, zapLogger)

	// nil unless RabbitMQ is configured.
	var notifier service.Notifier
	if options.RabbitURL != "" {
		pub, err := notify.Dial(options.RabbitURL, options.LogQueue, zapLogger)
		if err != nil {
			zapLogger.Fatal("cannot connect to rabbitmq", zap.Error(err))
		}
		defer pub.Close()
		notifier = pub
	}

	boxService := service.NewBoxService(repository.NewPostgresBoxRepository(postgresDB))
	userService := service.NewUserService(repository.NewPostgresUserRepository(postgresDB))
	logService := service.NewLogService(repository.NewPostgresLogRepository(postgresDB), notifier, zapLogger)

	router := http.NewRouter(
		&http.BoxHandler{BoxService: boxService},
		&http.UserHandler{UserService: userService},
		&http.LogHandler{LogService: logService},
		zapLogger,
	)

	server := &nethttp.Server{
		Addr:              options.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	useTLS := options.TLSCert != "" && options.TLSKey != ""
	if useTLS {
		tlsConfig, err := serverTLS(options)
		if err != nil {
			zapLogger.Fatal("failed to configure TLS", zap.Error(err))
		}
		server.TLSConfig = tlsConfig
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("shutdown failed", zap.Error(err))
		}
	}()

	zapLogger.Info("starting server", zap.String("addr", options.Addr), zap.Bool("tls", useTLS))
	if useTLS {
		err = server.ListenAndServeTLS("", "")
	} else {
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		zapLogger.Fatal("server failed", zap.Error(err))
	}
	zapLogger.Info("server stopped")
}

// serverTLS loads the server key pair and, when a client CA is given,
// verifies station certificates that are presented.
func serverTLS(options *config.ServerOptions) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(options.TLSCert, options.TLSKey)
	if err != nil {
		return nil, fmt.Errorf("load server cert/key: %w", err)
	}
	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if options.ClientCA == "" {
		return cfg, nil
	}

	caCert, err := os.ReadFile(options.ClientCA)
	if err != nil {
		return nil, fmt.Errorf("read client CA: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("no certificates in %s", options.ClientCA)
	}
	cfg.ClientAuth = tls.VerifyClientCertIfGiven
	cfg.ClientCAs = pool
	return cfg, nil
}
