package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/internal/database"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/internal/metrics"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/internal/web"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(root *rootFlags) *cobra.Command {
	var (
		host         string
		migrateFirst bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web dashboard and HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, root)
			if err != nil {
				return err
			}
			defer func() { _ = a.log.Sync() }()
			ctx := cmd.Context()

			opts := web.Options{Config: a.cfg.RunnerConfig(), Logger: a.log}
			if a.cfg.Metrics.Enabled {
				opts.Metrics = metrics.New()
			}
			if url := a.cfg.Database.URL; url != "" {
				if migrateFirst {
					a.log.Info("running database migrations")
					if err := database.Migrate(url); err != nil {
						return err
					}
				}
				db, err := database.New(ctx, url)
				if err != nil {
					return err
				}
				defer db.Close()
				opts.Store = db
			}

			srv := &http.Server{
				Addr:              fmt.Sprintf("%s:%d", host, a.cfg.Server.Port),
				Handler:           web.NewHandler(opts),
				ReadHeaderTimeout: 15 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			// Graceful shutdown on SIGINT and SIGTERM
			sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-sigCtx.Done()
				fmt.Fprintln(cmd.ErrOrStderr(), "\nShutting down...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					a.log.Error("shutdown failed", zap.Error(err))
				}
			}()

			fmt.Fprintf(cmd.ErrOrStderr(), "Dashboard: http://localhost:%d\n", a.cfg.Server.Port)
			a.log.Info("server started", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Interface to listen on")
	cmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	cmd.Flags().String("database-url", "", "PostgreSQL URL of the session store")
	cmd.Flags().BoolVar(&migrateFirst, "migrate", false, "Apply database migrations before serving")
	return cmd
}

func newMigrateCmd(root *rootFlags) *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the session store migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, root)
			if err != nil {
				return err
			}
			url := a.cfg.Database.URL
			if url == "" {
				return errors.New("database URL is required (--database-url or TDP_DATABASE_URL)")
			}
			apply, verb := database.Migrate, "applied"
			if down {
				apply, verb = database.MigrateDown, "rolled back"
			}
			if err := apply(url); err != nil {
				return err
			}
			version, dirty, err := database.SchemaVersion(url)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Migrations %s, schema version %d", verb, version)
			if dirty {
				fmt.Fprint(cmd.ErrOrStderr(), " (dirty)")
			}
			fmt.Fprintln(cmd.ErrOrStderr())
			return nil
		},
	}
	cmd.Flags().String("database-url", "", "PostgreSQL URL of the session store")
	cmd.Flags().BoolVar(&down, "down", false, "Roll back every migration")
	return cmd
}
