// Package cmd implements the groundsched command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/groundsched/api/reservations"
	"github.com/kilianp07/groundsched/app"
	"github.com/kilianp07/groundsched/config"
	"github.com/kilianp07/groundsched/core/schedule"
	"github.com/kilianp07/groundsched/infra/logger"
	"github.com/kilianp07/groundsched/infra/persistence"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:          "groundsched",
	Short:        "Ground station reservation scheduler",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler service",
	RunE:  run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
	rootCmd.AddCommand(serveCmd)
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx)
}

// openOffline loads the configuration and opens the store without network
// collaborators. The caller closes the returned service.
func openOffline(ctx context.Context, opts ...app.Option) (*app.Service, *config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(ctx, cfg, append([]app.Option{app.Offline()}, opts...)...)
	if err != nil {
		return nil, nil, err
	}
	return svc, cfg, nil
}

type (
	remoteMutation func(context.Context, *reservations.Client) (reservations.MutationResponse, error)
	localMutation  func(context.Context, *schedule.Store) (schedule.Mutation, error)
)

// mutate sends the change to the serving process when the API is configured
// and listening. Otherwise this process opens the storage as its only writer;
// that fails with persistence.ErrLocked while a service owns it.
func mutate(cmd *cobra.Command, remote remoteMutation, local localMutation) error {
	ctx := cmd.Context()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.API.Addr != "" {
		client, err := reservations.NewClient(cfg.API.Addr, cfg.API.Token)
		if err != nil {
			return err
		}
		resp, err := remote(ctx, client)
		switch {
		case err == nil:
			if !resp.Persisted {
				printErr(cmd, "warning: service could not persist the change, it will retry")
			}
			return printClassifications(cmd, resp.Mutation)
		case !reservations.Unreachable(err):
			return err
		}
	}

	svc, err := app.New(ctx, cfg, app.Offline())
	if err != nil {
		if errors.Is(err, persistence.ErrLocked) {
			return fmt.Errorf("%w; configure api.addr to send changes through the running service", err)
		}
		return err
	}
	defer closeService(cmd, svc)
	m, err := local(ctx, svc.Store)
	if err != nil {
		return err
	}
	return printClassifications(cmd, m)
}

func printClassifications(cmd *cobra.Command, m schedule.Mutation) error {
	for _, c := range m.Classifications {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), c.String()); err != nil {
			return err
		}
	}
	return nil
}

func printErr(cmd *cobra.Command, msg string) {
	if _, err := fmt.Fprintln(cmd.ErrOrStderr(), msg); err != nil {
		fmt.Println("failed to write to stderr:", err)
	}
}

func closeService(cmd *cobra.Command, svc *app.Service) {
	if err := svc.Close(); err != nil {
		printErr(cmd, fmt.Sprintf("error while closing store: %v", err))
	}
}
