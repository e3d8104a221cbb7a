package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/CTAG07/Weft/pkg/store"
	"github.com/CTAG07/Weft/pkg/weft"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// configPath is set from the -config flag before anything reads it.
var configPath = "./config.json"

func main() {
	var (
		flagConfig     = flag.String("config", "./config.json", "path to the JSON config file")
		flagRender     = flag.String("render", "", "render the template file to stdout and exit")
		flagData       = flag.String("data", "", "context file for -render (.json or .toml)")
		flagStrict     = flag.Bool("strict", false, "fail -render on unresolved context values")
		flagKeepIndent = flag.Bool("keep-indent", false, "keep leading whitespace of literal text in -render")
	)
	flag.Parse()
	configPath = *flagConfig

	if *flagRender != "" {
		if err := runRender(*flagRender, *flagData, *flagStrict, *flagKeepIndent); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	baseLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	actionChan := make(chan string, 1)

	go func() {
		osSignalChan := make(chan os.Signal, 1)
		signal.Notify(osSignalChan, syscall.SIGINT, syscall.SIGTERM)
		<-osSignalChan // Wait for a signal
		baseLogger.Info("OS signal received, initiating shutdown.")
		actionChan <- actionShutdown
	}()

	for {
		action, err := run(actionChan)
		if err != nil {
			baseLogger.Error("An error occurred during server run, shutting down.", "error", err)
			break
		}

		if action == actionRestart {
			baseLogger.Info("--- Server Restarting ---")
			continue
		} else {
			break
		}
	}

	baseLogger.Info("Weft has shut down.")
}

// runRender is the one-shot CLI mode: compile one template file, render it
// against an optional context file, and write the output to stdout.
func runRender(templatePath, dataPath string, strict, keepIndent bool) error {
	var opts []weft.Option
	if strict {
		opts = append(opts, weft.WithStrictErrors())
	}
	if keepIndent {
		opts = append(opts, weft.WithKeepIndentation())
	}

	renderer, err := weft.NewFromFile(templatePath, opts...)
	if err != nil {
		return err
	}

	templateContext := make(map[string]any)
	if dataPath != "" {
		switch strings.ToLower(filepath.Ext(dataPath)) {
		case ".toml":
			if _, err = toml.DecodeFile(dataPath, &templateContext); err != nil {
				return fmt.Errorf("failed to parse context file: %w", err)
			}
		case ".json":
			data, err := os.ReadFile(dataPath)
			if err != nil {
				return fmt.Errorf("failed to read context file: %w", err)
			}
			if err = json.Unmarshal(data, &templateContext); err != nil {
				return fmt.Errorf("failed to parse context file: %w", err)
			}
		default:
			return fmt.Errorf("unsupported context file extension '%s' (want .json or .toml)", filepath.Ext(dataPath))
		}
	}

	output, err := renderer.Render(templateContext)
	if err != nil {
		return err
	}
	_, err = os.Stdout.WriteString(output)
	return err
}

// run is the main loop that hosts the API server, and returns whenever the
// server is shutdown or restarted.
func run(actionChan chan string) (string, error) {

	config, err := LoadConfig(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to load configuration: %w", err)
	}

	var logLevel slog.Level
	switch strings.ToLower(config.Server.LogLevel) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	logger.Info("Starting server cycle...")

	if err = os.MkdirAll(config.Server.DataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := initDB(config.Server.DatabasePath)
	if err != nil {
		return "", fmt.Errorf("failed to initialize database: %w", err)
	}

	if err = store.SetupSchema(db); err != nil {
		_ = db.Close()
		return "", fmt.Errorf("failed to setup template schema: %w", err)
	}

	server, err := NewServer(config, logger, db, actionChan)
	if err != nil {
		_ = db.Close()
		return "", fmt.Errorf("failed to create server object: %w", err)
	}

	apiHttpServer := &http.Server{Addr: config.Server.ApiAddr, Handler: server.apiMux}

	go func() {
		logger.Info("Starting api server", "address", apiHttpServer.Addr)
		if err := apiHttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Api server failed", "error", err)
		}
	}()

	action := <-actionChan // Block here until API or OS signal sends an action.

	logger.Info("Stopping server for " + action + "...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = apiHttpServer.Shutdown(ctx); err != nil {
		logger.Error("Api server shutdown failed", "error", err)
	}
	logger.Info("HTTP server stopped.")

	server.Close()

	logger.Info("Closing database connection.")
	if err = db.Close(); err != nil {
		logger.Error("Failed to close database", "error", err)
	}

	return action, nil
}
