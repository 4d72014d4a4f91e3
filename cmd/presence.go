package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/azeasz/fobi-amaturalist-sub000/broker"
	"github.com/azeasz/fobi-amaturalist-sub000/presence"
)

var presenceCmd = &cobra.Command{
	Use:   "presence",
	Short: "Track which clients are connected to each checklist",
	Long: `Consume the join/leave events published by relay instances and keep
the connected clients of every checklist in Redis. The result is served on
/presence and /presence/{checklistId}.

Examples:
  relay presence --redis-addr localhost:6379
  relay presence --redis-addr redis:6379 --presence-addr :9090`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log.SetPrefix("[PRESENCE] ")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.RedisAddr == "" {
			return errors.New("presence tracking requires REDIS_ADDR or --redis-addr")
		}
		ctx := cmd.Context()

		redisBroker, err := broker.NewRedisBroker(ctx, cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("create presence broker: %w", err)
		}
		defer redisBroker.Close()

		store := presence.NewStore(redisBroker.Client())
		httpServer := &http.Server{
			Addr:              cfg.PresenceAddr,
			Handler:           presence.NewHandler(store),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 2)
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("serve presence: %w", err)
			}
		}()
		go func() {
			if err := presence.Listen(ctx, redisBroker, store); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
			}
		}()
		log.Printf("Presence tracker listening on %s", cfg.PresenceAddr)

		var runErr error
		select {
		case <-ctx.Done():
			log.Println("Shutdown signal received")
		case runErr = <-errCh:
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		return runErr
	},
}

func init() {
	rootCmd.AddCommand(presenceCmd)

	presenceCmd.Flags().String("redis-addr", "", "Redis address (env REDIS_ADDR)")
	presenceCmd.Flags().String("presence-addr", ":8081", "HTTP listen address (env PRESENCE_ADDR)")
}
