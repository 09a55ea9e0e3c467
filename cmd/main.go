package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/sufyanAbbasi/efflux/internal/address"
	"github.com/sufyanAbbasi/efflux/internal/api/grpc/clients"
	"github.com/sufyanAbbasi/efflux/internal/config"
	"github.com/sufyanAbbasi/efflux/internal/node"
)

var (
	cfgFile string
	root    string
	debug   bool
	logFile string
	target  string
	service string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "effluxmon",
		Short: "Live monitor for a distributed efflux simulation",
	}
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to config file (default: configs/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&root, "root", "r", "", "Root peer address (overrides monitor.root)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable development logging")

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Run the monitor headless with its REST and gRPC APIs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(node.ModeHeadless)
		},
	}

	tuiCmd := &cobra.Command{
		Use:   "tui",
		Short: "Run the monitor with the terminal dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(node.ModeDashboard)
		},
	}
	tuiCmd.Flags().StringVar(&logFile, "log-file", filepath.Join(os.TempDir(), "effluxmon.log"), "Where logs go while the dashboard owns the terminal")

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Probe a running monitor's gRPC health service",
		RunE:  runHealth,
	}
	healthCmd.Flags().StringVarP(&target, "target", "t", "", "Monitor gRPC address (default: api.grpc)")
	healthCmd.Flags().StringVarP(&service, "service", "s", "", "Peer address to check (default: the root peer)")

	rootCmd.AddCommand(startCmd, tuiCmd, healthCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(mode node.Mode) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	if mode == node.ModeDashboard {
		cfg.OutputPaths = []string{logFile}
		cfg.ErrorOutputPaths = []string{logFile}
	}
	return cfg.Build()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	if root != "" {
		cfg.Monitor.Root = root
	}
	return cfg, nil
}

func run(mode node.Mode) error {
	// Set up logger
	logger, err := newLogger(mode)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer logger.Sync()

	// Load config
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctrl := node.NewController(cfg, mode, logger)
	return ctrl.Run(context.Background())
}

func runHealth(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(node.ModeHeadless)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer logger.Sync()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	addr := target
	if addr == "" {
		addr = cfg.API.GRPC
	}

	client, err := clients.NewHealthClient(addr, logger,
		clients.WithPeerNormalizer(address.Normalizer{Secure: cfg.Monitor.Secure}))
	if err != nil {
		return fmt.Errorf("health client: %w", err)
	}
	defer client.Close()

	status, err := client.Check(cmd.Context(), service)
	if err != nil {
		return fmt.Errorf("health check %s: %w", addr, err)
	}
	name := service
	if name == "" {
		name = "root"
	}
	fmt.Printf("%s: %s\n", name, status)
	if status != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%s is not serving", name)
	}
	return nil
}
