package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/eduramirezh/adk-go/internal/config"
	"github.com/eduramirezh/adk-go/internal/version"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()

	if len(args) < 1 {
		usage(stderr)
		return exitUsage
	}

	switch args[0] {
	case "--version", "-v", "version":
		fmt.Fprintf(stdout, "adk %s\n", version.Version)
		return exitOK
	case "run":
		return runGenerate(args[1:], stdout, stderr)
	case "serve":
		return runServe(args[1:], stderr)
	case "models":
		return runModels(args[1:], stdout, stderr)
	default:
		usage(stderr)
		return exitUsage
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage:")
	fmt.Fprintln(w, "  adk version")
	fmt.Fprintln(w, "  adk run [-config <adk.yaml>] [-model <id>] [-session <id>] [-stream] <prompt>")
	fmt.Fprintln(w, "  adk serve [-config <adk.yaml>] [-addr <host:port>]")
	fmt.Fprintln(w, "  adk models [-registry <file.json>]")
}

func signalCancelContext() (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(context.Background())
	sigCh := make(chan os.Signal, 1)
	stopCh := make(chan struct{})
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for {
			select {
			case sig := <-sigCh:
				cancel(fmt.Errorf("stopped by signal %s", sig.String()))
			case <-stopCh:
				return
			}
		}
	}()
	cleanup := func() {
		signal.Stop(sigCh)
		close(stopCh)
		cancel(nil)
	}
	return ctx, cleanup
}

// loadConfig resolves the effective configuration: an explicit -config
// path must load, an adk.yaml in the working directory is picked up when
// present, and otherwise the built-in defaults apply.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if _, err := os.Stat("adk.yaml"); err != nil {
			return config.Defaults(), nil
		}
		path = "adk.yaml"
	}
	return config.Load(path)
}
