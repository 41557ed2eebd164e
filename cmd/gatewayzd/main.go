// Command gatewayzd runs the relay HTTP server: the aggregated model
// catalog and the streaming chat-completion proxy.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	relay "github.com/alpaca-network/gatewayz-relay"
	"github.com/alpaca-network/gatewayz-relay/gateways"
	"github.com/alpaca-network/gatewayz-relay/internal/cache"
	"github.com/alpaca-network/gatewayz-relay/internal/health"
	"github.com/alpaca-network/gatewayz-relay/internal/history"
	"github.com/alpaca-network/gatewayz-relay/internal/logging"
	"github.com/alpaca-network/gatewayz-relay/internal/version"

	// Register all relay metrics before the /metrics handler is mounted.
	_ "github.com/alpaca-network/gatewayz-relay/internal/metrics"
)

func main() {
	root := &cobra.Command{
		Use:           "gatewayzd",
		Short:         "Multi-gateway model aggregation and streaming completion relay",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), validateCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var (
		configPath string
		addr       string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the relay HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := relay.LoadConfig(configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, addr)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "relay.yaml", "path to the relay config file")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a relay configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if _, err := relay.LoadConfig(args[0]); err != nil {
				return err
			}
			fmt.Println("Config OK")
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(*cobra.Command, []string) {
			fmt.Println("gatewayzd", version.String())
		},
	}
}

// buildRegistry instantiates one gateway client per config entry.
func buildRegistry(cfg *relay.Config) (*gateways.Registry, error) {
	reg := gateways.NewRegistry()
	for _, g := range cfg.Gateways {
		var client gateways.Client
		switch g.Name {
		case "openrouter":
			client = gateways.NewOpenRouter(g.APIKey, g.BaseURL)
		case "portkey":
			client = gateways.NewPortkey(g.APIKey, g.BaseURL)
		case "featherless":
			client = gateways.NewFeatherless(g.APIKey, g.BaseURL)
		case "chutes":
			client = gateways.NewChutes(g.APIKey, g.BaseURL)
		case "groq":
			client = gateways.NewGroq(g.APIKey, g.BaseURL)
		case "openai":
			client = gateways.NewOpenAI(g.APIKey, g.BaseURL)
		case "vertex":
			ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: g.APIKey})
			client = gateways.NewVertex(g.Project, g.Region, ts, g.BaseURL)
		default:
			return nil, fmt.Errorf("unknown gateway: %s", g.Name)
		}
		reg.Register(client)
	}
	return reg, nil
}

// buildRecorder wires the usage store configured in cfg.History.
func buildRecorder(cfg *relay.Config) (history.Recorder, func() error, error) {
	var store history.Store
	var err error
	switch cfg.History.Driver {
	case "":
		return history.Discard{}, func() error { return nil }, nil
	case "sqlite":
		store, err = history.NewSQLiteStore(cfg.History.DSN)
	case "postgres":
		store, err = history.NewPostgresStore(cfg.History.DSN)
	default:
		return nil, nil, fmt.Errorf("unknown history driver: %s", cfg.History.Driver)
	}
	if err != nil {
		return nil, nil, err
	}
	async := history.NewAsync(store, 0)
	return async, async.Close, nil
}

func serve(ctx context.Context, cfg *relay.Config, addr string) error {
	reg, err := buildRegistry(cfg)
	if err != nil {
		return err
	}
	recorder, closeRecorder, err := buildRecorder(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeRecorder() }()

	tracker := health.NewTracker(health.Thresholds{})
	agg := relay.NewAggregator(reg, relay.AggregatorOptions{
		Budget: cfg.Aggregation.Budget(),
		Policy: cfg.Retry.Policy(),
		Cache:  cache.NewMemory(64, cfg.Aggregation.CacheTTL()),
		Health: tracker,
	})
	proxy := relay.NewCompletionProxy(reg, relay.ProxyOptions{
		Policy:           cfg.Retry.Policy(),
		FirstByteTimeout: cfg.Completion.FirstByteTimeout(),
		DefaultGateway:   cfg.Completion.DefaultGateway,
		Recorder:         recorder,
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      newRouter(agg, proxy),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming responses have no fixed bound
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		logging.Logger.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Logger.Error("shutdown error", "error", err)
		}
	}()

	logging.Logger.Info("gatewayzd listening",
		"version", version.Short(), "addr", addr, "gateways", reg.Len())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	logging.Logger.Info("server stopped")
	return nil
}
