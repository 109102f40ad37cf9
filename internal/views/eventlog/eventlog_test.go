package eventlog

import (
	"strings"
	"testing"

	"github.com/ryanKinoti/LCS-v1/internal/account"
	"github.com/ryanKinoti/LCS-v1/internal/session"
)

func TestAddEntry(t *testing.T) {
	m := New()
	m.Add(KindNav, "/login")
	if len(m.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(m.Entries))
	}
	if m.Entries[0].Kind != KindNav {
		t.Errorf("expected kind %q, got %q", KindNav, m.Entries[0].Kind)
	}
}

func TestMaxEntries(t *testing.T) {
	m := New()
	for i := 0; i < maxEntries+50; i++ {
		m.Add(KindAction, "msg")
	}
	if len(m.Entries) != maxEntries {
		t.Errorf("expected %d entries, got %d", maxEntries, len(m.Entries))
	}
}

func TestScroll(t *testing.T) {
	m := New()
	for i := 0; i < 20; i++ {
		m.Add(KindAction, "msg")
	}
	m.ScrollUp(5)
	if m.Offset != 5 {
		t.Errorf("expected offset 5, got %d", m.Offset)
	}
	m.ScrollDown(3)
	if m.Offset != 2 {
		t.Errorf("expected offset 2, got %d", m.Offset)
	}
	m.ScrollDown(10)
	if m.Offset != 0 {
		t.Errorf("expected offset 0, got %d", m.Offset)
	}
	m.ScrollUp(100)
	if m.Offset != 19 {
		t.Errorf("expected offset capped at 19, got %d", m.Offset)
	}
	m.Add(KindAction, "new")
	if m.Offset != 0 {
		t.Error("adding an entry should scroll to the bottom")
	}
}

func TestTransition(t *testing.T) {
	user := &account.BackendUser{User: account.User{Email: "c@x.io"}, Role: account.RoleCustomer}
	tests := []struct {
		name  string
		prev  session.State
		next  session.State
		kinds []string
		want  string
	}{
		{
			name: "no change",
			prev: session.State{Status: session.StatusIdle},
			next: session.State{Status: session.StatusIdle, Seq: 4},
		},
		{
			name:  "authenticated",
			prev:  session.State{Status: session.StatusAuthenticating},
			next:  session.State{Status: session.StatusAuthenticated, User: user},
			kinds: []string{KindAuth},
			want:  "authenticating -> authenticated as c@x.io (customer)",
		},
		{
			name: "failed login",
			prev: session.State{Status: session.StatusAuthenticating},
			next: session.State{Status: session.StatusError, Err: &session.Error{
				Kind: session.KindAuthentication, Message: "Invalid email or password.",
			}},
			kinds: []string{KindAuth, KindError},
			want:  "authentication: Invalid email or password.",
		},
		{
			name: "dashboard arrives",
			prev: session.State{Status: session.StatusAuthenticated, User: user},
			next: session.State{Status: session.StatusAuthenticated, User: user, Dashboard: &account.Dashboard{
				Role: account.RoleCustomer, Customer: &account.CustomerDashboard{},
			}},
			kinds: []string{KindAuth},
			want:  "customer dashboard loaded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			m.Transition(tt.prev, tt.next)
			if len(m.Entries) != len(tt.kinds) {
				t.Fatalf("expected %d entries, got %d: %+v", len(tt.kinds), len(m.Entries), m.Entries)
			}
			for i, k := range tt.kinds {
				if m.Entries[i].Kind != k {
					t.Errorf("entry %d: expected kind %q, got %q", i, k, m.Entries[i].Kind)
				}
			}
			if tt.want != "" && m.Entries[len(m.Entries)-1].Message != tt.want {
				t.Errorf("expected %q, got %q", tt.want, m.Entries[len(m.Entries)-1].Message)
			}
		})
	}
}

func TestView(t *testing.T) {
	m := New()
	if v := m.View(80, 20); !strings.Contains(v, "No events") {
		t.Error("empty view should say there are no events")
	}
	m.Add(KindNav, "/dashboard")
	m.Add(KindError, "timeout")
	v := m.View(80, 20)
	for _, want := range []string{"SESSION LOG", "/dashboard", "timeout"} {
		if !strings.Contains(v, want) {
			t.Errorf("view should contain %q", want)
		}
	}
}
