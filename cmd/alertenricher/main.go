package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"AlertEnricher/internal/app"
	"AlertEnricher/internal/config"
	"AlertEnricher/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "alertenricher",
		Short:         "Enrich new Wazuh alerts with a local model and store the summaries",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config path (default $ALERTENRICHER_CONFIG)")

	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newCheckpointCmd(opts))
	root.AddCommand(newPendingCmd(opts))
	return root
}

// withApp loads config, builds the application and closes it after fn.
func withApp(opts *rootOptions, fn func(*app.Application) error) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	application := app.New(cfg, logger)
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}()

	return fn(application)
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var serve, once bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Poll the alert log and enrich new alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(a *app.Application) error {
				if once {
					report, err := a.RunOnce(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "selected=%d inserted=%d already_stored=%d failed=%d checkpoint=%d\n",
						report.Selected, report.Inserted, report.AlreadyStored, report.Failed, report.NewCheckpoint)
					return nil
				}
				return a.Run(cmd.Context(), serve)
			})
		},
	}
	cmd.Flags().BoolVar(&serve, "serve", false, "also serve the read API")
	cmd.Flags().BoolVar(&once, "once", false, "run a single tick and exit")
	return cmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve stored summaries over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(a *app.Application) error {
				return a.Serve(cmd.Context())
			})
		},
	}
}

func newCheckpointCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect or move the processing checkpoint",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the last committed alert id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(a *app.Application) error {
				st, err := a.State(cmd.Context())
				if err != nil {
					return err
				}
				value, err := st.Read(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), value)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <id>",
		Short: "Overwrite the checkpoint, e.g. to replay or skip alerts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || value < 0 {
				return fmt.Errorf("checkpoint must be a non-negative integer, got %q", args[0])
			}
			return withApp(opts, func(a *app.Application) error {
				st, err := a.State(cmd.Context())
				if err != nil {
					return err
				}
				if err := st.Write(cmd.Context(), value); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "checkpoint set to %d\n", value)
				return nil
			})
		},
	})

	return cmd
}

func newPendingCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List alert ids with pending markers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(a *app.Application) error {
				st, err := a.State(cmd.Context())
				if err != nil {
					return err
				}
				ids, err := st.Pending(cmd.Context())
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			})
		},
	}
}
