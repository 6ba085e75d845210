package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ironsheep/imagecell/internal/config"
	"github.com/ironsheep/imagecell/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Handle --version and -v flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("imagecell %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			fmt.Println("imagecell - MCP server for terminal image cells")
			fmt.Println()
			fmt.Println("Usage: imagecell [options]")
			fmt.Println()
			fmt.Println("Options:")
			fmt.Println("  --version, -v    Print version information")
			fmt.Println("  --help, -h       Print this help message")
			fmt.Println()
			fmt.Println("Configuration (later files override earlier ones):")
			fmt.Println("  ~/.config/imagecell/config.toml")
			fmt.Println("  ./imagecell.toml")
			fmt.Println()
			fmt.Println("Environment variables:")
			fmt.Println("  IMAGECELL_LOG_LEVEL=debug    Override the configured log level")
			fmt.Println()
			fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
			return
		}
	}

	if err := run(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	levelName := cfg.LogLevel
	if env := os.Getenv("IMAGECELL_LOG_LEVEL"); env != "" {
		levelName = env
	}
	level, err := config.ParseLevel(levelName)
	if err != nil {
		return err
	}

	// stdout is for MCP protocol
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	logger.Debug("starting imagecell", "version", Version, "built", BuildTime, "commit", GitCommit)

	server.Version = Version

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := server.New(cfg, logger)
	defer srv.Close()

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
