package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dyluth/burrow/internal/config"
	"github.com/dyluth/burrow/internal/printer"
	"github.com/dyluth/burrow/pkg/grid"
)

var (
	watchConfigPath string
	watchRoomID     string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream a room's change feed and presence events",
	Long: `Subscribes to one room's tile and presence channels and prints every
event as it arrives. Useful for debugging delivery order and presence churn.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchConfigPath, "config", "c", "", "path to burrow.yml (default $BURROW_CONFIG or ./burrow.yml)")
	watchCmd.Flags().StringVarP(&watchRoomID, "room", "r", "", "room ID to watch (required)")
	_ = watchCmd.MarkFlagRequired("room")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(watchConfigPath)
	if err != nil {
		return printer.Error("Configuration error", err.Error(), nil)
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

	room, err := client.GetRoom(ctx, watchRoomID)
	if err != nil {
		if grid.IsNotFound(err) {
			return printer.Error("Room not found", "No room exists with ID "+watchRoomID, nil)
		}
		return printer.Error("Lookup failed", err.Error(), nil)
	}

	tileSub, err := client.SubscribeTileEvents(ctx, room.ID)
	if err != nil {
		return printer.Error("Subscription failed", err.Error(), nil)
	}
	defer tileSub.Close()

	presenceSub, err := client.SubscribePresenceEvents(ctx, room.ID)
	if err != nil {
		return printer.Error("Subscription failed", err.Error(), nil)
	}
	defer presenceSub.Close()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-exit
		cancel()
	}()

	printer.Info("Watching room %q (%dx%d grid). Ctrl-C to stop.\n", room.Title, room.GridSize, room.GridSize)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-tileSub.Events():
			if !ok {
				return nil
			}
			switch event.Kind {
			case grid.TileUpserted:
				printer.Event("tile-upserted (%d,%d) item=%s\n", event.X, event.Y, event.ItemID)
			case grid.TileRemoved:
				printer.Event("tile-removed (%d,%d)\n", event.X, event.Y)
			}

		case event, ok := <-presenceSub.Events():
			if !ok {
				return nil
			}
			switch event.Kind {
			case grid.PresenceUpdated:
				printer.Event("presence %s %s at (%d,%d)\n", event.Record.Avatar, event.Record.Key, event.Record.X, event.Record.Y)
			case grid.PresenceLeft:
				printer.Event("presence-left %s\n", event.Record.Key)
			}

		case err, ok := <-tileSub.Errors():
			if ok {
				printer.Warning("tile subscription error: %v\n", err)
			}

		case err, ok := <-presenceSub.Errors():
			if ok {
				printer.Warning("presence subscription error: %v\n", err)
			}
		}
	}
}
