package main

import (
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-presence/internal/config"
	"github.com/teslashibe/go-presence/internal/log"
)

type rootOptions struct {
	cfgFile  string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "presenced",
		Short: "Kitchen presence and last-seen inference engine",
		Long: `presenced watches a camera, decides whether you are in the kitchen from
the objects it sees, records where your spectacles were last seen, and
answers voice commands and HTTP status queries about both.

Every setting can be given in presenced.yaml, a .env file, or the
environment (e.g. STABLE_WINDOW=5, API_PORT=5000).`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (default is ./presenced.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")

	run := newRunCmd(opts)
	cmd.AddCommand(run, newEvalCmd(), newStatusCmd(opts))
	cmd.RunE = run.RunE

	return cmd
}

// load reads configuration and initializes logging from it.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.cfgFile)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	log.Init(cfg.LogLevel)
	return cfg, nil
}
