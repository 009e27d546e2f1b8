package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/conorfennell/openingdrill/internal/gitsource"
	"github.com/conorfennell/openingdrill/internal/jobs"
	"github.com/conorfennell/openingdrill/internal/session"
	"github.com/conorfennell/openingdrill/internal/sync"
	"github.com/conorfennell/openingdrill/internal/web"
)

const shutdownTimeout = 15 * time.Second

// ServeCmd returns the serve command.
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the drill API and sync deck sources periodically",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.db.Close()
			return serve(cmd.Context(), a)
		},
	}
	cmd.Flags().String("server.addr", ":8080", "address to listen on")
	return cmd
}

func serve(ctx context.Context, a *app) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock, err := a.cfg.Drill.Clock()
	if err != nil {
		return err
	}
	sessions := session.NewManager(session.Deps{
		Store:      a.db,
		Clock:      clock,
		RetryDelay: a.cfg.Drill.RetryDelay,
		Logger:     a.logger,
	})
	syncer := sync.Syncer{
		DB:       a.db,
		ReposDir: a.cfg.Sync.ReposDir,
		Git:      gitsource.Syncer{Logger: a.logger},
		Logger:   a.logger,
	}

	scheduler := jobs.New(syncer, a.cfg.Sync.Interval, a.logger)
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	srv := &http.Server{
		Addr: a.cfg.Server.Addr,
		Handler: web.NewServer(a.db, sessions, syncer, web.Options{
			CORSOrigins: a.cfg.Server.CORSOrigins,
			RPS:         a.cfg.Server.RateLimit.RPS,
			Burst:       a.cfg.Server.RateLimit.Burst,
			DailyNewCap: a.cfg.Drill.DailyNewCap,
		}, a.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		return errors.Join(err, sessions.Close(shutdownCtx))
	})
	return g.Wait()
}
