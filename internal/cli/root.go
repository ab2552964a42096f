// Package cli implements the repolib command-line tool: a JSON record store
// that keeps a local SQLite mirror in step with a remote backend.
package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Offline    bool
	LogLevel   string

	cfg *Config
}

// NewRootCommand creates the root command for the repolib CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "repolib",
		Short: "Keep a local mirror of remote records",
		Long: `repolib stores JSON records in a remote backend (SQLite, PostgreSQL,
Redis or MongoDB) and mirrors them into a local SQLite database.

Writes issued while the remote is unreachable, or with --offline, are
buffered in the local database and replayed by "repolib queue flush".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(opts.ConfigPath)
			if err != nil {
				return err
			}
			if opts.LogLevel != "" {
				cfg.Log.Level = opts.LogLevel
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config (defaults to local SQLite files)")
	cmd.PersistentFlags().BoolVar(&opts.Offline, "offline", false, "buffer writes and read the local mirror only")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override log level (debug|info|warn|error)")

	cmd.AddCommand(NewFetchCommand(opts))
	cmd.AddCommand(NewPutCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewQueueCommand(opts))

	return cmd
}

func (o *RootOptions) open(cmd *cobra.Command, extra appOptions) (*app, error) {
	extra.offline = o.Offline
	logger := newLogger(cmd.ErrOrStderr(), o.cfg.Log)
	return openApp(cmd.Context(), o.cfg, extra, logger)
}
