package cli

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/corestream/cincinnati/internal/config"
	"github.com/corestream/cincinnati/internal/server"
	"github.com/corestream/cincinnati/pkg/buildinfo"
	"github.com/corestream/cincinnati/pkg/metrics"
)

// NewPolicyEngineCommand builds the policy-engine root command.
func NewPolicyEngineCommand() *cobra.Command {
	var (
		configPath string
		verbosity  int
	)
	build := buildinfo.ForService("policy-engine")

	root := &cobra.Command{
		Use:          "policy-engine",
		Short:        "Serve policy-filtered Cincinnati update-graphs to client nodes",
		Version:      build.Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ctx := withLogger(cmd.Context(), newLogger(os.Stderr, levelFromVerbosity(verbosity)))
			cmd.SetContext(ctx)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())
			logger.Info("starting server", "build", build.Short())
			logger.Debug("config file location", "path", configPath)

			settings, err := config.LoadPolicyEngine(configPath)
			if err != nil {
				return err
			}
			logger.Debug("upstream graph endpoint", "url", settings.UpstreamBase)

			pe := server.NewPolicyEngine(settings, metrics.NewPolicyEngine(prometheus.DefaultRegisterer), logger)

			eg, ctx := errgroup.WithContext(cmd.Context())
			eg.Go(func() error {
				return server.Run(ctx, settings.ServiceAddr, pe.Router(), logger)
			})
			eg.Go(func() error {
				return server.Run(ctx, settings.StatusAddr, server.StatusRouter(), logger)
			})
			return eg.Wait()
		},
	}

	root.SetVersionTemplate(build.VersionTemplate())
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
	root.Flags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (repeatable)")
	_ = root.MarkFlagRequired("config")

	return root
}
