package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/iwvelando/revenue-recognition/internal/config"
	"github.com/iwvelando/revenue-recognition/internal/ingest"
	"github.com/iwvelando/revenue-recognition/internal/logging"
	"github.com/iwvelando/revenue-recognition/internal/recognition"
	"github.com/iwvelando/revenue-recognition/internal/store"
	"github.com/iwvelando/revenue-recognition/pkg/constants"
	"github.com/iwvelando/revenue-recognition/pkg/output"
	"github.com/iwvelando/revenue-recognition/pkg/validation"
	"go.uber.org/zap"
)

func main() {
	// Process command line flags first to get config location
	configLocation := flag.String("config", constants.DefaultConfigFile, "path to configuration file")
	envLocation := flag.String("env", constants.DefaultEnvFile, "path to dotenv file loaded before the configuration")
	inputFlag := flag.String("input", "", "batch document override")
	outputFormatFlag := flag.String("output-format", "", "type of output override: pretty, csv, json")
	outputFlag := flag.String("output", "", "output file override (default stdout)")
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

	logger, err := logging.NewLogger(conf.Logging, *logLevel)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to initialize logger\", \"error\": \"%v\"}\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	// CLI overrides take precedence over config
	outputFormat := conf.Output.Format
	if *outputFormatFlag != "" {
		outputFormat = *outputFormatFlag
	}
	if outputFormat == "" {
		outputFormat = constants.OutputFormatPretty
	}
	if err := validation.ValidateOutputFormat(outputFormat); err != nil {
		logger.Fatal(err.Error(),
			zap.String("op", "main"),
		)
	}

	for _, warning := range conf.ValidateConfiguration() {
		logger.Warn("Configuration warning: "+warning,
			zap.String("op", "main"),
		)
	}

	inputPath := conf.Input.Path
	if *inputFlag != "" {
		inputPath = *inputFlag
	}
	if inputPath == "" {
		logger.Fatal("no batch document given; set input.path or pass -input",
			zap.String("op", "main"),
		)
	}

	batches, err := ingest.Load(inputPath)
	if err != nil {
		logger.Fatal(fmt.Sprintf("failed to load batches from %s", inputPath),
			zap.String("op", "main"),
			zap.Error(err),
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	results, err := recognition.Recognize(ctx, logger, *conf, batches)
	if err != nil {
		logger.Fatal("failed to recognize revenue",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}

	if conf.Store.Path != "" {
		saveRun(ctx, logger, conf, results)
	}

	outputFile := conf.Output.File
	if *outputFlag != "" {
		outputFile = *outputFlag
	}
	if err := writeResults(outputFile, outputFormat, results, output.NewLayout(conf.Fields)); err != nil {
		logger.Fatal("failed to write results",
			zap.String("op", "main"),
			zap.String("file", outputFile),
			zap.Error(err),
		)
	}
}

func saveRun(ctx context.Context, logger *zap.Logger, conf *config.Configuration, results []recognition.Result) {
	runs, err := store.Open(conf.Store.Path, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("failed to open run store at %s", conf.Store.Path),
			zap.String("op", "main"),
			zap.Error(err),
		)
	}
	defer func() {
		if err := runs.Close(); err != nil {
			logger.Warn("failed to close run store",
				zap.String("op", "main"),
				zap.Error(err),
			)
		}
	}()

	runID, err := runs.SaveRun(ctx, conf.Rate(), results)
	if err != nil {
		logger.Error("failed to store run",
			zap.String("op", "main"),
			zap.Error(err),
		)
		return
	}
	logger.Info(fmt.Sprintf("stored run %d", runID),
		zap.String("op", "main"),
		zap.String("store", conf.Store.Path),
	)
}

func writeResults(path, outputFormat string, results []recognition.Result, layout output.Layout) (err error) {
	var w io.Writer = os.Stdout
	if path != "" {
		f, createErr := os.Create(path)
		if createErr != nil {
			return createErr
		}
		defer func() {
			if closeErr := f.Close(); err == nil {
				err = closeErr
			}
		}()
		w = f
	}
	return output.Write(w, outputFormat, results, layout)
}
