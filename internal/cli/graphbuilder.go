package cli

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/corestream/cincinnati/internal/config"
	"github.com/corestream/cincinnati/internal/server"
	"github.com/corestream/cincinnati/pkg/buildinfo"
	"github.com/corestream/cincinnati/pkg/graph"
	"github.com/corestream/cincinnati/pkg/metrics"
	"github.com/corestream/cincinnati/pkg/scraper"
)

// NewGraphBuilderCommand builds the graph-builder root command.
func NewGraphBuilderCommand() *cobra.Command {
	var (
		configPath string
		verbosity  int
	)
	build := buildinfo.ForService("graph-builder")

	root := &cobra.Command{
		Use:          "graph-builder",
		Short:        "Serve Cincinnati update-graphs assembled from upstream release metadata",
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

			settings, err := config.LoadGraphBuilder(configPath)
			if err != nil {
				return err
			}

			var remap *scraper.DigestRemap
			if settings.DigestRemapPath != "" {
				remap, err = scraper.LoadDigestRemap(settings.DigestRemapPath)
				if err != nil {
					return err
				}
				logger.Info("boot-image digest remap enabled", "path", settings.DigestRemapPath)
			}

			m := metrics.NewGraphBuilder(prometheus.DefaultRegisterer)
			scrapers := make(map[graph.Scope]*scraper.Scraper, len(settings.Scopes))
			for _, scope := range settings.Scopes {
				s, err := scraper.New(scraper.Config{
					Scope:               scope,
					ReleasesURLTemplate: settings.ReleasesURL,
					UpdatesURLTemplate:  settings.UpdatesURL,
					Interval:            settings.Interval,
					Timeout:             settings.RequestTimeout,
					Remap:               remap,
					Logger:              logger,
					Metrics:             m,
				})
				if err != nil {
					return err
				}
				scrapers[scope] = s
			}
			logger.Info("serving scopes", "count", len(scrapers))

			gb := server.NewGraphBuilder(scrapers, logger)

			eg, ctx := errgroup.WithContext(cmd.Context())
			for _, s := range scrapers {
				eg.Go(func() error {
					s.Run(ctx)
					return nil
				})
			}
			eg.Go(func() error {
				return server.Run(ctx, settings.ServiceAddr, gb.Router(settings.OriginAllowlist), logger)
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
