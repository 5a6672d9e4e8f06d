package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gyeh/visitload/internal/exitcode"
	"github.com/gyeh/visitload/internal/httpapi"
	"github.com/gyeh/visitload/internal/ingest"
	"github.com/gyeh/visitload/internal/merge"
	"github.com/gyeh/visitload/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the upload and merged-view HTTP API",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&cfg.Addr, "addr", ":"+env.Port, "Listen address (or set PORT)")
	f.Int64Var(&cfg.MaxUploadMB, "max-upload-mb", 20, "Maximum upload size in megabytes")
	f.BoolVar(&cfg.Archive, "archive", true, "Archive every merged record with its batch ID")
	f.BoolVar(&cfg.Migrate, "migrate", false, "Apply Postgres migrations on startup")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := cmd.Context()

	if err := cfg.ValidateStore(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}
	if err := cfg.LoadProfile(); err != nil {
		log.Error().Err(err).Str("profile", cfg.ProfilePath).Msg("profile load failed")
		os.Exit(exitcode.UsageError)
	}

	st, err := openStore(ctx, log)
	if err != nil {
		log.Error().Err(err).Str("driver", cfg.Driver).Msg("store connection failed")
		os.Exit(exitcode.StoreConnError)
	}
	defer st.Close()

	var archiver store.Archiver
	if cfg.Archive {
		archiver = st
	}
	proc := ingest.NewProcessor(cfg.Profile, merge.NewEngine(st, log), archiver, log)
	e := httpapi.NewServer(httpapi.NewHandler(proc, st, st, log), cfg.MaxUploadMB, log)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("driver", cfg.Driver).Msg("starting server")
		if err := e.Start(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		log.Error().Err(err).Msg("server error")
		return err
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}
