package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"stash/internal/config"
	"stash/internal/server"
	"stash/internal/store"
)

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the stash API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := slog.Default()

			addr, err := server.ListenAddr(cfg.APIURL)
			if err != nil {
				return err
			}

			svc, err := openServices(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			if cfg.Server.PurgeInterval > 0 {
				go runPurgeLoop(ctx, svc.store, cfg.Server.PurgeInterval, logger.With("component", "purge"))
			}

			srv := server.New(server.Config{
				Addr:           addr,
				RequestTimeout: cfg.Server.RequestTimeout,
				MaxUploadBytes: cfg.Server.MaxUploadBytes,
				SessionMaxAge:  cfg.SessionTTL,
			}, svc.auth, svc.files, logger)
			return srv.ListenAndServe(ctx)
		},
	}
}

// runPurgeLoop removes expired codes and sessions until ctx is done.
func runPurgeLoop(ctx context.Context, st *store.Store, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := st.PurgeExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("purge expired credentials failed", "error", err)
				}
				continue
			}
			if res.Tokens > 0 || res.Sessions > 0 {
				logger.Info("purged expired credentials", "tokens", res.Tokens, "sessions", res.Sessions)
			}
		}
	}
}
