package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/geohash-udf/internal/logger"
)

type rootOptions struct {
	verbose bool
	console bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	var zl zerolog.Logger

	root := &cobra.Command{
		Use:   "geohash",
		Short: "encode and decode geohashes",
		Long: `
geohash converts latitude/longitude pairs to geohash strings and back. The eval
subcommand applies the geohash(lat, lon) function to delimited rows read from
stdin, writing \N for null results.
`,
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := "warn"
			if opts.verbose {
				level = "debug"
			}
			zl = logger.Build(logger.Config{
				Level:     level,
				Console:   opts.console,
				Service:   "geohash",
				Component: "cli",
			}, cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output to stderr")
	root.PersistentFlags().BoolVar(&opts.console, "log-console", false, "human-readable log output")

	log := func() *zerolog.Logger { return &zl }
	root.AddCommand(
		newEncodeCmd(),
		newDecodeCmd(),
		newNeighborsCmd(),
		newEvalCmd(log),
	)
	return root
}
