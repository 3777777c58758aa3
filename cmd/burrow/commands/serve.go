package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dyluth/burrow/internal/config"
	"github.com/dyluth/burrow/internal/gateway"
	"github.com/dyluth/burrow/internal/identity"
	"github.com/dyluth/burrow/internal/printer"
	"github.com/dyluth/burrow/internal/server"
	"github.com/dyluth/burrow/pkg/grid"
)

var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the synchronizer server",
	Long: `Starts the HTTP and websocket server backed by Redis.

Loads burrow.yml, connects to Redis, optionally seeds the item catalog, and
serves the batch submission API plus per-room event streams until interrupted.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "path to burrow.yml (default $BURROW_CONFIG or ./burrow.yml)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return printer.Error("Configuration error", err.Error(), []string{
			"Check the config path passed with --config",
			"Copy the sample burrow.yml from the repository root",
		})
	}

	client, err := grid.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, cfg.Instance)
	if err != nil {
		return printer.Error("Client error", err.Error(), nil)
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := client.Ping(ctx); err != nil {
		return printer.Error("Redis unreachable", err.Error(), []string{
			"Verify redis.addr in burrow.yml",
			"Verify the Redis server is running",
		})
	}

	if cfg.SeedCatalog {
		written, err := client.SeedCatalog(ctx, grid.DefaultCatalog())
		if err != nil {
			return printer.Error("Catalog seed failed", err.Error(), nil)
		}
		if written > 0 {
			printer.Info("Seeded %d catalog entries\n", written)
		}
	}

	idp, err := identity.NewProvider(cfg.JWTSecret)
	if err != nil {
		return printer.Error("Identity provider error", err.Error(), nil)
	}

	srv := server.New(cfg, client, gateway.New(client), idp)

	// Graceful shutdown on SIGINT/SIGTERM
	exit := make(chan os.Signal, 1)
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-exit
		printer.Warning("Shutting down...\n")
		cancel()
	}()

	printer.Success("Burrow instance '%s' serving on %s\n", cfg.Instance, cfg.Listen)
	if err := srv.Run(ctx); err != nil {
		return printer.Error("Server error", err.Error(), nil)
	}

	return nil
}
