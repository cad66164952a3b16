package main

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/eduramirezh/adk-go/internal/llm"
	"github.com/eduramirezh/adk-go/internal/log"
	"github.com/eduramirezh/adk-go/internal/server"
)

func runServe(args []string, stderr io.Writer) int {
	var configPath, addr string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-config", "--config":
			i++
			if i >= len(args) {
				fmt.Fprintln(stderr, "-config requires a value")
				return exitUsage
			}
			configPath = args[i]
		case "-addr", "--addr":
			i++
			if i >= len(args) {
				fmt.Fprintln(stderr, "-addr requires a value")
				return exitUsage
			}
			addr = args[i]
		default:
			fmt.Fprintf(stderr, "unknown arg: %s\n", args[i])
			return exitUsage
		}
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	logger := log.New(cfg.Logging.Level)
	defer logger.Sync()

	ctx, cleanup := signalCancelContext()
	defer cleanup()

	// A server without provider adapters still serves sessions and
	// artifacts; generation requests fail per request.
	client, err := llm.NewFromEnv()
	if err != nil {
		logger.Warn("no provider adapters configured", zap.Error(err))
		client = llm.NewClient()
	}

	registry, err := modelRegistry(cfg)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}
	sessions, err := sessionService(cfg)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}
	defer closeQuietly(sessions)

	artifacts, err := artifactService(ctx, cfg)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}

	notifier, err := buildNotifier(cfg)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}
	defer notifier.Close()

	srv, err := server.New(server.Options{
		Config:    cfg,
		Logger:    logger,
		Client:    client,
		Registry:  registry,
		Sessions:  sessions,
		Artifacts: artifacts,
		Notifier:  notifier,
	})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}

	if err := srv.Serve(ctx, addr); err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}
	return exitOK
}
