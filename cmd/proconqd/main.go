package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/proconq/proconq/internal/chat"
	"github.com/proconq/proconq/internal/config"
	"github.com/proconq/proconq/internal/creds"
	"github.com/proconq/proconq/internal/logger"
)

func main() {
	root := &cobra.Command{
		Use:   "proconqd [port]",
		Short: "proconq chat server",
		Args:  cobra.MaximumNArgs(1),
		RunE:  run,
	}

	root.Flags().String("config", "", "path to a YAML config file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// §6 "Server configuration": a single positional port argument,
	// defaulting to 50000; anything else is a usage error.
	if len(args) == 1 {
		port, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("port must be an integer, got %q", args[0])
		}
		cfg.Port = port
	}

	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	store, err := creds.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}
	defer store.Close()

	if cfg.AdminPassword != "" {
		if err := store.SeedAdmin(cfg.AdminPassword); err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
	} else {
		logger.Warn("no admin password configured, ADMIN will not be seeded")
	}

	srv := chat.NewServer(store, logger.Log)

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	defer ln.Close()

	banner := fmt.Sprintf("proconqd listening on %s", addr)
	if term.IsTerminal(int(os.Stdout.Fd())) {
		banner = "\033[1;32m" + banner + "\033[0m"
	}
	fmt.Println(banner)
	logger.Info("server started", "addr", addr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return ln.Close()
	case err := <-errCh:
		return err
	}
}
