package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getpup/pupsourcing-gather/config"
	"github.com/getpup/pupsourcing-gather/internal/app"
	"github.com/getpup/pupsourcing-gather/logging"
	"github.com/getpup/pupsourcing-gather/pkg/migrations"
	"github.com/getpup/pupsourcing-gather/store/sqlstore"
	"github.com/spf13/cobra"
)

// CLI Constants
const (
	CmdServe   = "serve"
	CmdRun     = "run"
	CmdMigrate = "migrate"

	FlagConfig         = "config"
	FlagTopics         = "topics"
	FlagTimeout        = "timeout"
	FlagAdapter        = "adapter"
	FlagOutput         = "output"
	FlagFilename       = "filename"
	FlagRequestsTable  = "requests-table"
	FlagPartialsTable  = "partials-table"
	FlagSummariesTable = "summaries-table"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gather",
		Short: "Scatter a collection request across collectors and gather the results",
		Long: `gather dispatches each collection request to a fixed number of collector
workers, waits until every collector has reported and then runs the cleanup and
process stages exactly once.

  gather serve                  # HTTP API on :8080, metrics on :9090
  gather run -t weather         # one-shot run with random collectors
  gather migrate -a mysql       # write the SQL store migration file`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd(), newRunCmd(), newMigrateCmd())
	return root
}

// loadConfig reads the config file when a path is given and returns defaults otherwise.
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		cfg := config.Default()
		return cfg, cfg.Validate()
	}
	return config.Load(path)
}

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   CmdServe,
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			zl, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			logger := logging.NewAdapter(zl)
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.Build(ctx, cfg, nil, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, FlagConfig, "c", "", "path to the YAML config file")
	return cmd
}

func newRunCmd() *cobra.Command {
	var (
		configPath string
		topics     []string
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   CmdRun,
		Short: "Submit topics with random collectors and print their summaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			cfg.Supervisor.Enabled = false

			zl, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			logger := logging.NewAdapter(zl)
			defer logger.Sync()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			a, err := app.Build(ctx, cfg, nil, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			return runTopics(ctx, a, topics, cmd)
		},
	}

	cmd.Flags().StringVarP(&configPath, FlagConfig, "c", "", "path to the YAML config file")
	cmd.Flags().StringSliceVarP(&topics, FlagTopics, "t", []string{"default"}, "topics to submit")
	cmd.Flags().DurationVar(&timeout, FlagTimeout, 30*time.Second, "maximum time to wait for all summaries")
	return cmd
}

// runTopics submits every topic, waits for the collector jobs and prints one line per summary.
func runTopics(ctx context.Context, a *app.App, topics []string, cmd *cobra.Command) error {
	for _, topic := range topics {
		id, err := a.Gatherer.Submit(ctx, strings.TrimSpace(topic))
		if err != nil {
			return fmt.Errorf("failed to submit %q: %w", topic, err)
		}

		for {
			summary, err := a.Gatherer.Result(ctx, id)
			if err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d\n", summary.RequestID, summary.Topic, summary.ItemCount)
				break
			}
			select {
			case <-ctx.Done():
				return fmt.Errorf("request %s did not complete: %w", id, err)
			case <-time.After(10 * time.Millisecond):
			}
		}
	}
	return nil
}

func newMigrateCmd() *cobra.Command {
	defaults := migrations.DefaultConfig()
	var (
		adapter string
		mc      = defaults
	)

	cmd := &cobra.Command{
		Use:   CmdMigrate,
		Short: "Generate the SQL migration file of the SQL store",
		RunE: func(cmd *cobra.Command, args []string) error {
			dialect, err := sqlstore.ParseDialect(adapter)
			if err != nil {
				return err
			}
			if err := migrations.Generate(dialect, &mc); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Generated %s migration: %s/%s\n", dialect, mc.OutputFolder, mc.OutputFilename)
			return nil
		},
	}

	cmd.Flags().StringVarP(&adapter, FlagAdapter, "a", string(sqlstore.Postgres), "database adapter: postgres, mysql, or sqlite")
	cmd.Flags().StringVarP(&mc.OutputFolder, FlagOutput, "o", defaults.OutputFolder, "output folder for the migration file")
	cmd.Flags().StringVarP(&mc.OutputFilename, FlagFilename, "f", defaults.OutputFilename, "output filename")
	cmd.Flags().StringVar(&mc.RequestsTable, FlagRequestsTable, defaults.RequestsTable, "name of the requests table")
	cmd.Flags().StringVar(&mc.PartialsTable, FlagPartialsTable, defaults.PartialsTable, "name of the partials table")
	cmd.Flags().StringVar(&mc.SummariesTable, FlagSummariesTable, defaults.SummariesTable, "name of the summaries table")
	return cmd
}
