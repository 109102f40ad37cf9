package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ryanKinoti/LCS-v1/internal/client"
	"github.com/ryanKinoti/LCS-v1/internal/config"
	"github.com/ryanKinoti/LCS-v1/internal/identity"
	"github.com/ryanKinoti/LCS-v1/internal/logging"
	"github.com/ryanKinoti/LCS-v1/internal/session"
)

var errSessionClosed = errors.New("session closed")

// stack is the client side of the app: identity client, backend client and
// the session machine that drives them.
type stack struct {
	ids     *identity.Client
	api     *client.HTTPClient
	machine *session.Machine
}

type stackOptions struct {
	// Persist keeps the identity session on disk between runs.
	Persist bool
	// Events subscribes to the revocation feed.
	Events bool
}

// newStack wires and starts the client side. It returns once the machine
// has processed the provider's initial state.
func newStack(ctx context.Context, cfg *config.Config, log *logrus.Logger, so stackOptions) (*stack, error) {
	var store *identity.Store
	if so.Persist {
		store = identity.NewStore(cfg.Identity.StateDir)
	}
	ids := identity.NewClient(identity.Options{
		BaseURL: cfg.Identity.BaseURL,
		Store:   store,
		Events:  so.Events,
		Timeout: cfg.Backend.Timeout,
		Logger:  logging.Component(log, "identity"),
	})
	api := client.NewHTTPClient(cfg.Backend.BaseURL, ids, cfg.Backend.Timeout)
	api.SetLogger(logging.Component(log, "backend"))

	m := session.New(ids, api,
		session.WithResolveTimeout(cfg.Session.ResolveTimeout),
		session.WithLoginLimiter(session.LoginLimiter(cfg.Session.LoginAttemptsPerMinute)),
		session.WithLogger(logging.Component(log, "session")),
	)
	m.Start()
	s := &stack{ids: ids, api: api, machine: m}

	if err := ids.Start(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("start identity client: %w", err)
	}

	wait := cfg.Session.ResolveTimeout + time.Second
	select {
	case <-m.Initialized():
	case <-time.After(wait):
		s.Close()
		return nil, fmt.Errorf("session did not initialize within %s", wait)
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	}
	return s, nil
}

func (s *stack) Close() {
	s.machine.Close()
	s.ids.Close()
}

// settled reports whether a login started from idle has finished. With
// wantDashboard it also waits for the dashboard fetch.
func settled(st session.State, wantDashboard bool) bool {
	switch st.Status {
	case session.StatusError:
		return true
	case session.StatusAuthenticated:
		if !wantDashboard {
			return true
		}
		return !st.DashboardLoading && (st.Dashboard != nil || st.DashboardErr != nil)
	}
	return false
}

// awaitSettled follows the machine until settled holds or ctx is done.
func awaitSettled(ctx context.Context, m *session.Machine, wantDashboard bool) (session.State, error) {
	ch, stop := m.Watch()
	defer stop()
	for {
		select {
		case st, ok := <-ch:
			if !ok {
				return m.State(), errSessionClosed
			}
			if settled(st, wantDashboard) {
				return st, nil
			}
		case <-ctx.Done():
			return m.State(), ctx.Err()
		}
	}
}
