package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryanKinoti/LCS-v1/internal/account"
	"github.com/ryanKinoti/LCS-v1/internal/catalog"
	"github.com/ryanKinoti/LCS-v1/internal/identity"
)

type testServer struct {
	*httptest.Server
	srv   *Server
	store *Store
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	store := newTestStore(t)
	cat, err := catalog.Load()
	require.NoError(t, err)

	opts.Store = store
	opts.Catalog = cat
	srv := New(opts)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		hs.Close()
	})
	return &testServer{Server: hs, srv: srv, store: store}
}

func (ts *testServer) request(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, rdr)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (ts *testServer) signIn(t *testing.T, email, password string) identity.TokenResponse {
	t.Helper()
	resp, body := ts.request(t, http.MethodPost, identity.PathSignIn, "", identity.SignInRequest{Email: email, Password: password})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var tr identity.TokenResponse
	require.NoError(t, json.Unmarshal(body, &tr))
	return tr
}

func identityCode(t *testing.T, body []byte) identity.Code {
	t.Helper()
	var eb identity.ErrorBody
	require.NoError(t, json.Unmarshal(body, &eb), string(body))
	return eb.Error.Code
}

func TestSignInAndMe(t *testing.T) {
	ts := newTestServer(t, Options{})
	tr := ts.signIn(t, SeedCustomerEmail, SeedCustomerPassword)
	assert.Equal(t, SeedCustomerEmail, tr.Email)
	assert.EqualValues(t, 3600, tr.ExpiresIn)

	resp, body := ts.request(t, http.MethodGet, PathMe, tr.IDToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var me account.BackendUser
	require.NoError(t, json.Unmarshal(body, &me))
	require.NoError(t, me.Validate())
	assert.Equal(t, account.RoleCustomer, me.Role)
	assert.Equal(t, "Cate Customer", me.User.FullName)
	assert.Equal(t, string(account.CustomerClient), me.Profile.Role)
}

func TestSignInFailures(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp, body := ts.request(t, http.MethodPost, identity.PathSignIn, "", identity.SignInRequest{Email: SeedCustomerEmail, Password: "nope-nope-1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, identity.CodeInvalidCredentials, identityCode(t, body))

	a, err := ts.store.Authenticate(context.Background(), SeedStaffEmail, SeedStaffPassword)
	require.NoError(t, err)
	require.NoError(t, ts.store.Disable(context.Background(), a.UID))
	resp, body = ts.request(t, http.MethodPost, identity.PathSignIn, "", identity.SignInRequest{Email: SeedStaffEmail, Password: SeedStaffPassword})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, identity.CodeUserDisabled, identityCode(t, body))
}

func TestSignInRateLimited(t *testing.T) {
	ts := newTestServer(t, Options{SigninPerMinute: 2})
	ts.signIn(t, SeedCustomerEmail, SeedCustomerPassword)
	ts.signIn(t, SeedCustomerEmail, SeedCustomerPassword)

	resp, body := ts.request(t, http.MethodPost, identity.PathSignIn, "", identity.SignInRequest{Email: SeedCustomerEmail, Password: SeedCustomerPassword})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, identity.CodeTooManyAttempts, identityCode(t, body))
}

func TestTokenRefreshAndSignOut(t *testing.T) {
	ts := newTestServer(t, Options{})
	tr := ts.signIn(t, SeedStaffEmail, SeedStaffPassword)

	resp, body := ts.request(t, http.MethodPost, identity.PathToken, "", identity.TokenRequest{RefreshToken: tr.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var fresh identity.TokenResponse
	require.NoError(t, json.Unmarshal(body, &fresh))
	assert.NotEqual(t, tr.IDToken, fresh.IDToken)

	resp, _ = ts.request(t, http.MethodPost, identity.PathSignOut, fresh.IDToken, identity.TokenRequest{RefreshToken: fresh.RefreshToken})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = ts.request(t, http.MethodPost, identity.PathToken, "", identity.TokenRequest{RefreshToken: tr.RefreshToken})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, identity.CodeTokenExpired, identityCode(t, body))

	resp, _ = ts.request(t, http.MethodGet, PathMe, fresh.IDToken, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMeAuthentication(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp, _ := ts.request(t, http.MethodGet, PathMe, "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = ts.request(t, http.MethodGet, PathMe, "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMeUserNotFound(t *testing.T) {
	ts := newTestServer(t, Options{})
	_, err := ts.store.createAccount(context.Background(), ts.store.db, "orphan@repairdesk.local", "orphan-pass-1")
	require.NoError(t, err)
	tr := ts.signIn(t, "orphan@repairdesk.local", "orphan-pass-1")

	resp, body := ts.request(t, http.MethodGet, PathMe, tr.IDToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":"User not found"}`, string(body))
}

func TestDashboardByRole(t *testing.T) {
	ts := newTestServer(t, Options{})
	cat, err := catalog.Load()
	require.NoError(t, err)

	t.Run("customer", func(t *testing.T) {
		tr := ts.signIn(t, SeedCustomerEmail, SeedCustomerPassword)
		resp, body := ts.request(t, http.MethodGet, PathDashboard, tr.IDToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
		d, err := account.DecodeDashboard(body)
		require.NoError(t, err)
		require.NoError(t, d.Validate(account.RoleCustomer))
		assert.Equal(t, account.CustomerDashboard{TotalBookings: 6, ActiveBookings: 3, CompletedBookings: 2}, *d.Customer)
	})

	t.Run("staff", func(t *testing.T) {
		tr := ts.signIn(t, SeedStaffEmail, SeedStaffPassword)
		_, body := ts.request(t, http.MethodGet, PathDashboard, tr.IDToken, nil)
		d, err := account.DecodeDashboard(body)
		require.NoError(t, err)
		assert.Equal(t, account.StaffDashboard{AssignedRepairs: 6, PendingRepairs: 3, CompletedRepairs: 2}, *d.Staff)
	})

	t.Run("admin", func(t *testing.T) {
		tr := ts.signIn(t, SeedAdminEmail, SeedAdminPassword)
		_, body := ts.request(t, http.MethodGet, PathDashboard, tr.IDToken, nil)
		d, err := account.DecodeDashboard(body)
		require.NoError(t, err)
		require.NotNil(t, d.Admin)

		stats := d.Admin.RepairStatistics
		assert.Equal(t, 6, stats.TotalRepairs)
		assert.Equal(t, 2, stats.StatusBreakdown[account.BookingCompleted])
		assert.Equal(t, 1, stats.StatusBreakdown[account.BookingCanceled])
		assert.Len(t, stats.RecentBookings, 5)
		assert.Len(t, d.Admin.RecentActivities, 5)

		screen, _ := cat.Find("Screen Replacement", account.DeviceLaptop)
		virus, _ := cat.Find("Virus Removal", account.DeviceDesktop)
		fin := d.Admin.FinancialMetrics
		assert.Equal(t, 2, fin.BookingsCount)
		assert.InDelta(t, float64(screen.Amount+virus.Amount), fin.TotalRevenue, 0.001)
		assert.InDelta(t, float64(screen.Amount+virus.Amount)/2, fin.AverageBookingValue, 0.001)

		assert.Equal(t, account.StaffOverview{ActiveStaff: 2, Technicians: 1}, d.Admin.StaffOverview)
		assert.Equal(t, account.ServiceMetrics{AvailableServices: 7, Categories: 4}, d.Admin.ServiceMetrics)
	})
}

func TestRegisterEndpoint(t *testing.T) {
	ts := newTestServer(t, Options{})
	req := account.RegisterRequest{
		Email:           " Jane@Example.com ",
		FirstName:       "Jane",
		LastName:        "Doe",
		PhoneNumber:     "+254 712 345 678",
		Password:        "s3cure-pass",
		ConfirmPassword: "s3cure-pass",
		ProfileType:     account.ProfileStaff,
	}

	resp, body := ts.request(t, http.MethodPost, PathRegister, "", req)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var rr account.RegisterResponse
	require.NoError(t, json.Unmarshal(body, &rr))
	assert.Equal(t, "Successfully created staff account", rr.Message)
	assert.Equal(t, "jane@example.com", rr.Data.Email)
	assert.Equal(t, account.ProfileStaff, rr.Data.ProfileType)
	assert.NotEmpty(t, rr.Data.LoginToken)

	tr := ts.signIn(t, "jane@example.com", "s3cure-pass")
	_, body = ts.request(t, http.MethodGet, PathMe, tr.IDToken, nil)
	var me account.BackendUser
	require.NoError(t, json.Unmarshal(body, &me))
	assert.Equal(t, account.RoleStaff, me.Role)

	resp, body = ts.request(t, http.MethodPost, PathRegister, "", req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), `"email"`)
}

func TestRegisterLoginTokenIsSingleUse(t *testing.T) {
	ts := newTestServer(t, Options{})
	ctx := context.Background()
	register := func(email string) (uid, loginToken string) {
		t.Helper()
		resp, body := ts.request(t, http.MethodPost, PathRegister, "", account.RegisterRequest{
			Email:           email,
			FirstName:       "Jane",
			LastName:        "Doe",
			Password:        "s3cure-pass",
			ConfirmPassword: "s3cure-pass",
			ProfileType:     account.ProfileCustomer,
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
		var rr account.RegisterResponse
		require.NoError(t, json.Unmarshal(body, &rr))
		acct, err := ts.store.Authenticate(ctx, email, "s3cure-pass")
		require.NoError(t, err)
		return acct.UID, rr.Data.LoginToken
	}
	loginTokens := func(uid string) int {
		t.Helper()
		n, err := ts.store.countTokens(ctx, uid, tokenLogin)
		require.NoError(t, err)
		return n
	}

	t.Run("password sign-in drops it", func(t *testing.T) {
		uid, lt := register("signin@example.com")
		assert.Equal(t, 1, loginTokens(uid))

		ts.signIn(t, "signin@example.com", "s3cure-pass")
		assert.Equal(t, 0, loginTokens(uid))

		resp, body := ts.request(t, http.MethodPost, identity.PathToken, "", identity.TokenRequest{RefreshToken: lt})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, identity.CodeTokenExpired, identityCode(t, body))
	})

	t.Run("exchange claims it once", func(t *testing.T) {
		uid, lt := register("exchange@example.com")

		resp, body := ts.request(t, http.MethodPost, identity.PathToken, "", identity.TokenRequest{RefreshToken: lt})
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
		var tr identity.TokenResponse
		require.NoError(t, json.Unmarshal(body, &tr))
		assert.Equal(t, uid, tr.UID)
		assert.NotEqual(t, lt, tr.RefreshToken)
		assert.Equal(t, 0, loginTokens(uid))

		resp, _ = ts.request(t, http.MethodPost, identity.PathToken, "", identity.TokenRequest{RefreshToken: lt})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp, _ = ts.request(t, http.MethodPost, identity.PathToken, "", identity.TokenRequest{RefreshToken: tr.RefreshToken})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestRegisterValidation(t *testing.T) {
	ts := newTestServer(t, Options{})
	resp, body := ts.request(t, http.MethodPost, PathRegister, "", account.RegisterRequest{
		Email:           "not-an-email",
		Password:        "short",
		ConfirmPassword: "other",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var fields map[string][]string
	require.NoError(t, json.Unmarshal(body, &fields))
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "first_name")
	assert.Contains(t, fields, "password")
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, Options{})
	resp, body := ts.request(t, http.MethodGet, PathHealth, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var h Health
	require.NoError(t, json.Unmarshal(body, &h))
	assert.Equal(t, HealthOK, h.Status)
	assert.Positive(t, h.Goroutines)
}

func TestDBHealthThreshold(t *testing.T) {
	h := &dbHealth{}
	status, _, _ := h.snapshot()
	assert.Equal(t, HealthOK, status)

	h.recordFailure(assert.AnError)
	status, n, msg := h.snapshot()
	assert.Equal(t, HealthDegraded, status)
	assert.Equal(t, 1, n)
	assert.Equal(t, assert.AnError.Error(), msg)

	for i := 1; i < dbFailureThreshold; i++ {
		h.recordFailure(assert.AnError)
	}
	status, _, _ = h.snapshot()
	assert.Equal(t, HealthFailed, status)

	h.recordSuccess()
	status, _, _ = h.snapshot()
	assert.Equal(t, HealthOK, status)
}

func TestSecurityHeadersAndNotFound(t *testing.T) {
	ts := newTestServer(t, Options{})
	resp, body := ts.request(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.JSONEq(t, `{"detail":"Not found."}`, string(body))
}

func TestDisableRequiresDevEndpoints(t *testing.T) {
	ts := newTestServer(t, Options{})
	resp, _ := ts.request(t, http.MethodPost, "/identity/v1/accounts/some-uid/disable", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDisablePushesRevocation(t *testing.T) {
	ts := newTestServer(t, Options{DevEndpoints: true})
	tr := ts.signIn(t, SeedCustomerEmail, SeedCustomerPassword)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + identity.PathEvents + "?token=" + tr.IDToken
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello identity.Event
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, identity.EventHello, hello.Type)
	assert.Equal(t, tr.UID, hello.UID)
	require.Eventually(t, func() bool { return ts.srv.Events().ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, _ := ts.request(t, http.MethodPost, "/identity/v1/accounts/"+tr.UID+"/disable", "", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	var ev identity.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, identity.EventRevoked, ev.Type)
	assert.Equal(t, tr.UID, ev.UID)
	assert.Equal(t, "account disabled", ev.Reason)
}

func TestEventsRejectsBadToken(t *testing.T) {
	ts := newTestServer(t, Options{})
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + identity.PathEvents + "?token=bogus"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCheckOrigin(t *testing.T) {
	open := New(Options{})
	restricted := New(Options{AllowedOrigins: []string{"https://desk.example.com"}})

	tests := []struct {
		name   string
		srv    *Server
		origin string
		want   bool
	}{
		{"no origin", open, "", true},
		{"localhost", open, "http://localhost:5173", true},
		{"loopback", open, "http://127.0.0.1:9000", true},
		{"foreign", open, "https://evil.example", false},
		{"allowed", restricted, "https://desk.example.com", true},
		{"allowed host other scheme", restricted, "http://desk.example.com", true},
		{"not allowed", restricted, "http://localhost:5173", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "http://devserver:8000"+identity.PathEvents, nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, tt.srv.checkOrigin(r))
		})
	}
}
