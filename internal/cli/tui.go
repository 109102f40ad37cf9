package cli

import (
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/ryanKinoti/LCS-v1/internal/app"
	"github.com/ryanKinoti/LCS-v1/internal/catalog"
	"github.com/ryanKinoti/LCS-v1/internal/logging"
	"github.com/ryanKinoti/LCS-v1/internal/views/services"
)

// TUIOptions holds flags for the tui command.
type TUIOptions struct {
	LogFile string
	Style   string
}

// NewTUICommand creates the tui command.
func NewTUICommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TUIOptions{}

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Run the terminal app",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.Config

			// The screen belongs to the app, so logs go to a file or nowhere.
			var w io.Writer = io.Discard
			if opts.LogFile != "" {
				f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			log, err := logging.New(w, cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}

			cat, err := catalog.Load()
			if err != nil {
				return err
			}
			s, err := newStack(cmd.Context(), cfg, log, stackOptions{Persist: true, Events: cfg.Identity.Events})
			if err != nil {
				return err
			}
			defer s.Close()

			m := app.New(s.machine, cat,
				app.WithMarkdownStyle(opts.Style),
				app.WithLogger(logging.Component(log, "tui")),
			)
			_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
			return err
		},
	}

	cmd.Flags().StringVar(&opts.LogFile, "log-file", "", "append logs to this file")
	cmd.Flags().StringVar(&opts.Style, "style", services.DefaultStyle, "markdown style for the services screen (dark|light|notty)")

	return cmd
}
