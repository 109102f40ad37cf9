// Package cli is the repairdesk command surface.
package cli

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ryanKinoti/LCS-v1/internal/config"
	"github.com/ryanKinoti/LCS-v1/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string

	// Set by PersistentPreRunE.
	Config *config.Config
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "repairdesk",
		Short: "RepairDesk - repair shop front desk",
		Long: `RepairDesk signs staff and customers in to the repair shop backend and
shows each role its dashboard. It also ships a development backend with an
identity emulator for local work.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			// Flags win over file and environment.
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = opts.LogLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.Log.Format = opts.LogFormat
			}
			if _, err := logging.ParseFormat(cfg.Log.Format); err != nil {
				return err
			}
			if _, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
				return fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
			}
			opts.Config = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "repairdesk.yaml", "config file (yaml)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "log level (trace|debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "text", "log format (text|json)")

	cmd.AddCommand(NewTUICommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewWhoamiCommand(opts))
	cmd.AddCommand(NewRegisterCommand(opts))

	return cmd
}

// logger builds the process logger from the loaded config.
func (o *RootOptions) logger(cmd *cobra.Command) (*logrus.Logger, error) {
	return logging.New(cmd.ErrOrStderr(), o.Config.Log.Level, o.Config.Log.Format)
}
