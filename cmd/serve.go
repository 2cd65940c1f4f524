package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/agentic-research/catalyst/internal/lifecycle"
	"github.com/agentic-research/catalyst/internal/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	serveAddr string
	serveOpen string
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config, :8080)")
	serveCmd.Flags().StringVar(&serveOpen, "open", "", "Dataset id to load at startup")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dataset query API over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr = serveAddr
		}
		rt, err := newRuntime(cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close() }() // safe to ignore

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		e := server.New(server.NewHandler(rt.ctrl, rt.datasets, logger))
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info().Str("addr", cfg.Server.Addr).Msg("listening")
			return server.Serve(ctx, e, cfg.Server.Addr)
		})
		if serveOpen != "" {
			// A failed preload leaves the server up; the dataset can be reopened over the API.
			g.Go(func() error {
				if _, err := rt.ctrl.Open(ctx, serveOpen); err != nil && !errors.Is(err, lifecycle.ErrStale) {
					logger.Error().Err(err).Str("dataset", serveOpen).Msg("preload failed")
				}
				return nil
			})
		}
		err = g.Wait()
		rt.ctrl.Close(context.Background())
		return err
	},
}
