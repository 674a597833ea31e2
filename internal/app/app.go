// Package app wires configuration, clients, and the HTTP server into a
// cobra command tree.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/elmoxbt/x402-defi-yield-api/internal/apierr"
	"github.com/elmoxbt/x402-defi-yield-api/internal/config"
	"github.com/elmoxbt/x402-defi-yield-api/internal/httpx"
	"github.com/elmoxbt/x402-defi-yield-api/internal/ledger"
	"github.com/elmoxbt/x402-defi-yield-api/internal/logging"
	"github.com/elmoxbt/x402-defi-yield-api/internal/oracle"
	"github.com/elmoxbt/x402-defi-yield-api/internal/payment"
	"github.com/elmoxbt/x402-defi-yield-api/internal/portfolio"
	"github.com/elmoxbt/x402-defi-yield-api/internal/providers"
	"github.com/elmoxbt/x402-defi-yield-api/internal/providers/kamino"
	"github.com/elmoxbt/x402-defi-yield-api/internal/providers/marinade"
	"github.com/elmoxbt/x402-defi-yield-api/internal/providers/orca"
	"github.com/elmoxbt/x402-defi-yield-api/internal/replay"
	"github.com/elmoxbt/x402-defi-yield-api/internal/server"
	"github.com/elmoxbt/x402-defi-yield-api/internal/version"
	"github.com/elmoxbt/x402-defi-yield-api/internal/yield"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
}

func NewRunner() *Runner {
	return &Runner{stdout: os.Stdout, stderr: os.Stderr}
}

func (r *Runner) Run(args []string) int {
	root := r.newRootCommand()
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true

	if err := root.Execute(); err != nil {
		fmt.Fprintf(r.stderr, "%s: %v\n", version.ServiceName, err)
		if apiErr, ok := apierr.As(err); ok && apiErr.Code == apierr.CodeBadRequest {
			return 2
		}
		return 1
	}
	return 0
}

func (r *Runner) newRootCommand() *cobra.Command {
	flags := config.GlobalFlags{}

	cmd := &cobra.Command{
		Use:   version.ServiceName,
		Short: "Payment-gated Solana DeFi yield API",
	}
	cmd.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&flags.ListenAddr, "listen", "", "Listen address (host:port)")
	cmd.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&flags.UseMock, "mock", false, "Serve static reference data instead of live providers")

	cmd.AddCommand(r.newServeCommand(&flags))
	cmd.AddCommand(r.newVersionCommand())
	return cmd
}

func (r *Runner) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version.Long())
			return nil
		},
	}
}

func (r *Runner) newServeCommand(flags *config.GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.Load(*flags)
			if err != nil {
				return apierr.Wrap(apierr.CodeBadRequest, "load configuration", err)
			}
			return r.serve(settings)
		},
	}
}

func (r *Runner) serve(settings config.Settings) error {
	log := logging.New(logging.Options{Level: settings.LogLevel, FilePath: settings.LogFile})

	replayStore, err := replay.Open(settings.ReplayDBPath, settings.ReplayLockPath, settings.ReplayTTL)
	if err != nil {
		return apierr.Wrap(apierr.CodeInternal, "open replay store", err)
	}
	defer replayStore.Close()

	rpcClient := ledger.NewRPCClient(settings.RPCEndpoint, settings.RPCTimeout)
	verifier := ledger.NewVerifier(rpcClient, logging.Component(log, "ledger"))
	gateway := payment.NewGateway(verifier, replayStore, settings.Payment(), logging.Component(log, "payment"))

	providerClient := httpx.New(settings.ProviderTimeout, settings.ProviderRetries)
	engine := yield.NewEngine([]providers.YieldProvider{
		kamino.New(providerClient),
		marinade.New(providerClient),
		orca.New(providerClient),
	}, settings.ProviderTimeout, logging.Component(log, "yield"))

	pricer := oracle.New(providerClient, settings.OracleBaseURL, logging.Component(log, "oracle"))

	folio := portfolio.NewService(rpcClient, pricer, settings.UseMockData, logging.Component(log, "portfolio"))

	srv := server.New(settings, gateway, engine, folio, logging.Component(log, "http"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.WithFields(logrus.Fields{
		"listen":  settings.ListenAddr,
		"network": settings.Network,
		"mock":    settings.UseMockData,
	}).Info("starting server")

	if err := srv.ListenAndServe(ctx); err != nil {
		return apierr.Wrap(apierr.CodeInternal, "server stopped", err)
	}
	log.Info("server shut down cleanly")
	return nil
}
