package main

import (
	"context"
	"errors"
	"fmt"

	"newsdesk/internal/app"
	"newsdesk/internal/clock"
	"newsdesk/internal/config"
	"newsdesk/internal/sweep"

	"github.com/spf13/cobra"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the publication sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.NewApp(cmd.Context(), opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}
}

func newSweepCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Publish every scheduled article that is due, once",
		Long: `Runs a single publication sweep and exits.

With the hybrid store only Redis is opened, so this can run next to a
server that holds the Badger data directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, opts.cfg, opts)
		},
	}
}

func runSweep(cmd *cobra.Command, cfg *config.Config, opts *rootOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := app.OpenStore(ctx, cfg, opts.logger, true)
	if err != nil {
		return err
	}
	defer st.Close()

	rep := sweep.NewSweeper(st, clock.Real{}, opts.logger).RunOnce(ctx)
	if rep.ListErr != nil {
		return rep.ListErr
	}

	fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, published %d, skipped %d, failed %d\n",
		rep.Scanned, len(rep.Published), len(rep.Skipped), len(rep.Failed))

	if len(rep.Failed) > 0 {
		errs := make([]error, 0, len(rep.Failed))
		for _, f := range rep.Failed {
			errs = append(errs, fmt.Errorf("%s: %w", f.ID, f.Err))
		}
		return errors.Join(errs...)
	}
	return nil
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the MongoDB indexes the store relies on",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.cfg.Store != config.StoreMongo {
				fmt.Fprintf(cmd.OutOrStdout(), "store %q needs no migration\n", opts.cfg.Store)
				return nil
			}
			// OpenStore migrates the mongo backend on connect.
			st, err := app.OpenStore(cmd.Context(), opts.cfg, opts.logger, true)
			if err != nil {
				return err
			}
			defer st.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "indexes are up to date")
			return nil
		},
	}
}
