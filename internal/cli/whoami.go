package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ryanKinoti/LCS-v1/internal/account"
	"github.com/ryanKinoti/LCS-v1/internal/session"
)

// WhoamiOptions holds flags for the whoami command.
type WhoamiOptions struct {
	Email     string
	Password  string
	Dashboard bool
}

// NewWhoamiCommand creates the whoami command.
func NewWhoamiCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WhoamiOptions{}

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Sign in headlessly and print the resolved session",
		Long: `Sign in with email and password, resolve the backend profile and print the
session state as JSON. The session is signed out again before exiting.

Exits non-zero when the login or profile resolution fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWhoami(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Email, "email", "", "account email (required)")
	cmd.Flags().StringVar(&opts.Password, "password", "", "account password (required)")
	cmd.Flags().BoolVar(&opts.Dashboard, "dashboard", false, "wait for and include the role dashboard")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func runWhoami(cmd *cobra.Command, rootOpts *RootOptions, opts *WhoamiOptions) error {
	return headless(cmd, rootOpts, opts.Dashboard, func(ctx context.Context, m *session.Machine) error {
		return m.Login(ctx, session.Credentials{Email: opts.Email, Password: opts.Password})
	})
}

// RegisterOptions holds flags for the register command.
type RegisterOptions struct {
	Request   account.RegisterRequest
	Dashboard bool
}

// NewRegisterCommand creates the register command.
func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RegisterOptions{}
	var profileType string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account headlessly and sign in to it",
		Long: `Create a customer or staff account on the backend, sign in with the new
credentials and print the resolved session as JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Request.ProfileType = account.ProfileType(profileType)
			if opts.Request.ConfirmPassword == "" {
				opts.Request.ConfirmPassword = opts.Request.Password
			}
			return headless(cmd, rootOpts, opts.Dashboard, func(ctx context.Context, m *session.Machine) error {
				return m.Register(ctx, opts.Request)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Request.Email, "email", "", "account email (required)")
	f.StringVar(&opts.Request.Password, "password", "", "account password (required)")
	f.StringVar(&opts.Request.ConfirmPassword, "confirm-password", "", "password confirmation (defaults to --password)")
	f.StringVar(&opts.Request.FirstName, "first-name", "", "first name")
	f.StringVar(&opts.Request.LastName, "last-name", "", "last name")
	f.StringVar(&opts.Request.PhoneNumber, "phone", "", "phone number, e.g. +254712345678")
	f.StringVar(&profileType, "profile-type", string(account.ProfileCustomer), "customer or staff")
	f.BoolVar(&opts.Dashboard, "dashboard", false, "wait for and include the role dashboard")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

// headless runs action against a fresh, non-persistent stack, waits for
// the session to settle, prints it and signs out.
func headless(cmd *cobra.Command, rootOpts *RootOptions, wantDashboard bool, action func(context.Context, *session.Machine) error) error {
	cfg := rootOpts.Config
	log, err := rootOpts.logger(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*cfg.Session.ResolveTimeout)
	defer cancel()

	s, err := newStack(ctx, cfg, log, stackOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	if err := action(ctx, s.machine); err != nil {
		_ = writeState(cmd.OutOrStdout(), s.machine.State())
		return err
	}

	st, err := awaitSettled(ctx, s.machine, wantDashboard)
	if werr := writeState(cmd.OutOrStdout(), st); werr != nil && err == nil {
		err = werr
	}
	if st.Status == session.StatusAuthenticated {
		if lerr := s.machine.Logout(context.Background()); lerr != nil {
			log.WithError(lerr).Warn("sign-out after whoami failed")
		}
	}
	if err != nil {
		return err
	}
	if st.Status != session.StatusAuthenticated {
		if st.Err != nil {
			return st.Err
		}
		return fmt.Errorf("session ended in status %s", st.Status)
	}
	return nil
}

func writeState(w io.Writer, st session.State) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}
