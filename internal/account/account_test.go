package account

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() RegisterRequest {
	return RegisterRequest{
		Email:           "jane@example.com",
		FirstName:       "Jane",
		LastName:        "Doe",
		PhoneNumber:     "+254712345678",
		Password:        "secret123",
		ConfirmPassword: "secret123",
		ProfileType:     ProfileCustomer,
	}
}

func TestRegisterRequestValidate(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*RegisterRequest)
		field string
	}{
		{"valid", func(*RegisterRequest) {}, ""},
		{"missing email", func(r *RegisterRequest) { r.Email = "" }, "email"},
		{"bad email", func(r *RegisterRequest) { r.Email = "jane@" }, "email"},
		{"missing first name", func(r *RegisterRequest) { r.FirstName = "" }, "first_name"},
		{"missing last name", func(r *RegisterRequest) { r.LastName = "" }, "last_name"},
		{"bad phone", func(r *RegisterRequest) { r.PhoneNumber = "12ab" }, "phone_number"},
		{"short password", func(r *RegisterRequest) { r.Password, r.ConfirmPassword = "abc1", "abc1" }, "password"},
		{"numeric password", func(r *RegisterRequest) { r.Password, r.ConfirmPassword = "12345678", "12345678" }, "password"},
		{"no digit", func(r *RegisterRequest) { r.Password, r.ConfirmPassword = "abcdefgh", "abcdefgh" }, "password"},
		{"mismatch", func(r *RegisterRequest) { r.ConfirmPassword = "other1234" }, "confirm_password"},
		{"bad profile type", func(r *RegisterRequest) { r.ProfileType = "vendor" }, "profile_type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRequest()
			tt.edit(&r)
			err := r.Validate()
			if tt.field == "" {
				require.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "want ValidationError, got %v", err)
			assert.NotEmpty(t, ve.Field(tt.field))
		})
	}
}

func TestRegisterRequestNormalize(t *testing.T) {
	r := RegisterRequest{Email: "  Jane@Example.COM ", PhoneNumber: "0712 345-678"}
	r.Normalize()
	assert.Equal(t, "jane@example.com", r.Email)
	assert.Equal(t, "+0712345678", r.PhoneNumber)
	assert.Equal(t, ProfileCustomer, r.ProfileType)
}

func TestLabel(t *testing.T) {
	tests := map[string]string{
		"in_progress": "In Progress",
		"phone_call":  "Phone Call",
		"admin":       "Admin",
	}
	for in, want := range tests {
		if got := Label(in); got != want {
			t.Errorf("Label(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEnumsValid(t *testing.T) {
	assert.True(t, RoleStaff.Valid())
	assert.False(t, Role("owner").Valid())
	assert.True(t, BookingInProgress.Valid())
	assert.True(t, BookingInProgress.Active())
	assert.False(t, BookingCompleted.Active())
	assert.True(t, StaffReceptionist.Valid())
	assert.True(t, CustomerCompany.Valid())
	assert.True(t, ContactSMS.Valid())
	assert.True(t, PaymentRefunded.Valid())
	assert.False(t, DeviceType("phone").Valid())
}

func TestDecodeDashboard(t *testing.T) {
	t.Run("customer", func(t *testing.T) {
		body := `{"user":{"id":1,"email":"c@x.io","full_name":"C"},"role":"customer",
			"dashboard":{"total_bookings":3,"active_bookings":1,"completed_bookings":2}}`
		d, err := DecodeDashboard([]byte(body))
		require.NoError(t, err)
		require.NotNil(t, d.Customer)
		assert.Nil(t, d.Admin)
		assert.Nil(t, d.Staff)
		assert.Equal(t, 3, d.Customer.TotalBookings)
		assert.NoError(t, d.Validate(RoleCustomer))
		assert.Error(t, d.Validate(RoleAdmin))
	})

	t.Run("admin", func(t *testing.T) {
		body := `{"user":{"id":1},"role":"admin","dashboard":{"repair_statistics":{"total_repairs":2,
			"status_breakdown":{"pending":1,"completed":1}}}}`
		d, err := DecodeDashboard([]byte(body))
		require.NoError(t, err)
		require.NotNil(t, d.Admin)
		assert.Equal(t, 1, d.Admin.RepairStatistics.StatusBreakdown[BookingPending])
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := DecodeDashboard([]byte(`{"role":"owner","dashboard":{}}`))
		assert.Error(t, err)
	})

	t.Run("missing payload", func(t *testing.T) {
		_, err := DecodeDashboard([]byte(`{"role":"staff","dashboard":null}`))
		assert.Error(t, err)
	})
}

func TestEncodeDashboardRoundTrip(t *testing.T) {
	in := &Dashboard{Role: RoleStaff, Staff: &StaffDashboard{AssignedRepairs: 4, PendingRepairs: 1}}
	data, err := EncodeDashboard(User{ID: 7, Email: "s@x.io"}, in)
	require.NoError(t, err)
	out, err := DecodeDashboard(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDashboardCloneIsDeep(t *testing.T) {
	d := &Dashboard{Role: RoleAdmin, Admin: &AdminDashboard{
		RepairStatistics: RepairStatistics{StatusBreakdown: map[BookingStatus]int{BookingPending: 1}},
	}}
	c := d.Clone()
	c.Admin.RepairStatistics.StatusBreakdown[BookingPending] = 9
	assert.Equal(t, 1, d.Admin.RepairStatistics.StatusBreakdown[BookingPending])
}

func TestBackendUserValidate(t *testing.T) {
	ok := &BackendUser{User: User{Email: "a@b.io"}, Role: RoleAdmin}
	assert.NoError(t, ok.Validate())
	assert.Error(t, (&BackendUser{User: User{Email: "a@b.io"}}).Validate())
	var nilUser *BackendUser
	assert.Error(t, nilUser.Validate())
}
