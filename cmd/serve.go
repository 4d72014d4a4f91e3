package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/azeasz/fobi-amaturalist-sub000/broker"
	"github.com/azeasz/fobi-amaturalist-sub000/relay"
	"github.com/azeasz/fobi-amaturalist-sub000/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the checklist room relay",
	Long: `Run the WebSocket relay on /ws and the health probe on /health.

Clients connect with ws://host:port/ws?clientId=<id>&checklistId=<id>.
Setting REDIS_ADDR (or --redis-addr) publishes join/leave events for the
presence tracker.

Examples:
  relay serve
  relay serve --port 3001 --heartbeat-interval 15s
  relay serve --redis-addr localhost:6379`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log.SetPrefix("[RELAY] ")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		relayCfg := relay.Config{
			HeartbeatInterval: cfg.HeartbeatInterval,
			WriteWait:         cfg.WriteWait,
			MaxMessageSize:    cfg.MaxMessageSize,
		}

		var messageBroker broker.MessageBroker
		if cfg.RedisAddr != "" {
			redisBroker, err := broker.NewRedisBroker(ctx, cfg.RedisAddr)
			if err != nil {
				return fmt.Errorf("create presence broker: %w", err)
			}
			messageBroker = redisBroker
			relayCfg.Publisher = redisBroker
			log.Printf("Publishing presence events to Redis at %s", cfg.RedisAddr)
		}

		rl := relay.New(relayCfg)
		handler := relay.NewHandler(rl)
		srv := server.NewServer(cfg.Addr(), rl, handler.HandleWebSocket)

		go rl.RunHeartbeat(ctx)

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()
		log.Printf("Checklist relay listening on %s (heartbeat every %s)", cfg.Addr(), cfg.HeartbeatInterval)

		select {
		case <-ctx.Done():
			log.Println("Shutdown signal received")
		case err := <-errCh:
			if err != nil {
				srv.Shutdown(cfg.ShutdownTimeout, messageBroker)
				return fmt.Errorf("serve relay: %w", err)
			}
		}

		srv.Shutdown(cfg.ShutdownTimeout, messageBroker)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Bind address (env HOST)")
	serveCmd.Flags().IntP("port", "p", 8080, "Listen port (env PORT)")
	serveCmd.Flags().Duration("heartbeat-interval", 30*time.Second, "Ping sweep period (env HEARTBEAT_INTERVAL)")
	serveCmd.Flags().String("redis-addr", "", "Redis address for presence events (env REDIS_ADDR)")
}
