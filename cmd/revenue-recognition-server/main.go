package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iwvelando/revenue-recognition/internal/config"
	"github.com/iwvelando/revenue-recognition/internal/logging"
	"github.com/iwvelando/revenue-recognition/internal/server"
	"github.com/iwvelando/revenue-recognition/internal/store"
	"github.com/iwvelando/revenue-recognition/pkg/constants"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	configLocation := flag.String("config", constants.DefaultConfigFile, "path to configuration file")
	envLocation := flag.String("env", constants.DefaultEnvFile, "path to dotenv file loaded before the configuration")
	address := flag.String("address", "", "listen address override, e.g. :8080")
	maxUploadSize := flag.String("max-upload-size", "", "upload size limit override, e.g. 256K or 10M")
	logLevel := flag.String("log-level", "", "log level override (debug, info, warn, error)")
	flag.Parse()

	if err := config.LoadEnv(*envLocation); err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to load env file at %s\", \"error\": \"%v\"}\n", *envLocation, err)
		os.Exit(1)
	}

	conf, err := config.LoadConfiguration(*configLocation)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to load configuration at %s\", \"error\": \"%v\"}\n", *configLocation, err)
		os.Exit(1)
	}

	serverConf, err := server.NewConfig(conf)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"invalid server configuration\", \"error\": \"%v\"}\n", err)
		os.Exit(1)
	}
	if *address != "" {
		serverConf.Address = *address
	}
	if *maxUploadSize != "" {
		size, err := server.ParseSize(*maxUploadSize)
		if err != nil {
			fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"invalid -max-upload-size\", \"error\": \"%v\"}\n", err)
			os.Exit(1)
		}
		serverConf.SetUploadSizeBytes(size)
	}

	logger, err := logging.NewLogger(serverConf.Logging, *logLevel)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to initialize logger\", \"error\": \"%v\"}\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	for _, warning := range conf.ValidateConfiguration() {
		logger.Warn("Configuration warning: "+warning,
			zap.String("op", "main"),
		)
	}

	var runs server.RunStore
	if conf.Store.Path != "" {
		s, err := store.Open(conf.Store.Path, logger)
		if err != nil {
			logger.Fatal(fmt.Sprintf("failed to open run store at %s", conf.Store.Path),
				zap.String("op", "main"),
				zap.Error(err),
			)
		}
		defer func() {
			if err := s.Close(); err != nil {
				logger.Warn("failed to close run store",
					zap.String("op", "main"),
					zap.Error(err),
				)
			}
		}()
		runs = s
	}

	srv := &http.Server{
		Addr:              serverConf.Address,
		Handler:           server.NewHandler(logger, *conf, runs, serverConf.UploadSizeBytes(), version),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting revenue recognition server",
			zap.String("op", "main"),
			zap.String("address", serverConf.Address),
			zap.Int64("maxUploadSize", serverConf.UploadSizeBytes()),
			zap.Bool("store", runs != nil),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error",
				zap.String("op", "main"),
				zap.Error(err),
			)
			return
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received",
			zap.String("op", "main"),
		)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error",
			zap.String("op", "main"),
			zap.Error(err),
		)
		return
	}
	logger.Info("server stopped",
		zap.String("op", "main"),
	)
}
