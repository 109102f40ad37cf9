package account

import (
	"encoding/json"
	"fmt"
	"time"
)

// Dashboard is the role-shaped aggregate from GET /accounts/user/dashboard/.
// Role selects which one of Admin, Staff or Customer is set.
type Dashboard struct {
	Role     Role               `json:"role"`
	Admin    *AdminDashboard    `json:"admin,omitempty"`
	Staff    *StaffDashboard    `json:"staff,omitempty"`
	Customer *CustomerDashboard `json:"customer,omitempty"`
}

type AdminDashboard struct {
	RepairStatistics RepairStatistics `json:"repair_statistics"`
	StaffOverview    StaffOverview    `json:"staff_overview"`
	FinancialMetrics FinancialMetrics `json:"financial_metrics"`
	ServiceMetrics   ServiceMetrics   `json:"service_metrics"`
	RecentActivities []Activity       `json:"recent_activities"`
}

type RepairStatistics struct {
	TotalRepairs    int                   `json:"total_repairs"`
	StatusBreakdown map[BookingStatus]int `json:"status_breakdown"`
	RecentBookings  []BookingSummary      `json:"recent_bookings"`
}

type StaffOverview struct {
	ActiveStaff int `json:"active_staff"`
	Technicians int `json:"technicians"`
}

// FinancialMetrics covers paid, completed bookings. Amounts are in KES.
type FinancialMetrics struct {
	TotalRevenue        float64 `json:"total_revenue"`
	BookingsCount       int     `json:"bookings_count"`
	AverageBookingValue float64 `json:"average_booking_value"`
}

type ServiceMetrics struct {
	AvailableServices int `json:"available_services"`
	Categories        int `json:"categories"`
}

type Activity struct {
	Type      string    `json:"type"`
	Summary   string    `json:"summary"`
	Timestamp time.Time `json:"timestamp"`
}

type BookingSummary struct {
	ID         int64         `json:"id"`
	Customer   string        `json:"customer"`
	DeviceType DeviceType    `json:"device_type"`
	Service    string        `json:"service"`
	Status     BookingStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
}

type StaffDashboard struct {
	AssignedRepairs  int `json:"assigned_repairs"`
	PendingRepairs   int `json:"pending_repairs"`
	CompletedRepairs int `json:"completed_repairs"`
}

type CustomerDashboard struct {
	TotalBookings     int `json:"total_bookings"`
	ActiveBookings    int `json:"active_bookings"`
	CompletedBookings int `json:"completed_bookings"`
}

// DashboardEnvelope is the wire shape of the dashboard endpoint.
type DashboardEnvelope struct {
	User      User            `json:"user"`
	Role      Role            `json:"role"`
	Dashboard json.RawMessage `json:"dashboard"`
}

// DecodeDashboard decodes the endpoint body, dispatching on the role tag.
// An unknown role or a missing payload is an error.
func DecodeDashboard(data []byte) (*Dashboard, error) {
	var env DashboardEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode dashboard envelope: %w", err)
	}
	if len(env.Dashboard) == 0 || string(env.Dashboard) == "null" {
		return nil, fmt.Errorf("dashboard payload missing for role %q", env.Role)
	}

	d := &Dashboard{Role: env.Role}
	var err error
	switch env.Role {
	case RoleAdmin:
		d.Admin = &AdminDashboard{}
		err = json.Unmarshal(env.Dashboard, d.Admin)
	case RoleStaff:
		d.Staff = &StaffDashboard{}
		err = json.Unmarshal(env.Dashboard, d.Staff)
	case RoleCustomer:
		d.Customer = &CustomerDashboard{}
		err = json.Unmarshal(env.Dashboard, d.Customer)
	default:
		return nil, fmt.Errorf("unknown dashboard role %q", env.Role)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s dashboard: %w", env.Role, err)
	}
	return d, nil
}

// EncodeDashboard builds the endpoint body for user and d.
func EncodeDashboard(user User, d *Dashboard) ([]byte, error) {
	var payload any
	switch d.Role {
	case RoleAdmin:
		payload = d.Admin
	case RoleStaff:
		payload = d.Staff
	case RoleCustomer:
		payload = d.Customer
	default:
		return nil, fmt.Errorf("unknown dashboard role %q", d.Role)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(DashboardEnvelope{User: user, Role: d.Role, Dashboard: raw})
}

// Validate reports an error when the variant set does not match role.
func (d *Dashboard) Validate(role Role) error {
	if d == nil {
		return fmt.Errorf("nil dashboard")
	}
	if d.Role != role {
		return fmt.Errorf("dashboard role %q does not match user role %q", d.Role, role)
	}
	var ok bool
	switch d.Role {
	case RoleAdmin:
		ok = d.Admin != nil && d.Staff == nil && d.Customer == nil
	case RoleStaff:
		ok = d.Staff != nil && d.Admin == nil && d.Customer == nil
	case RoleCustomer:
		ok = d.Customer != nil && d.Admin == nil && d.Staff == nil
	}
	if !ok {
		return fmt.Errorf("dashboard payload does not match role %q", d.Role)
	}
	return nil
}

// Clone returns a deep copy of d.
func (d *Dashboard) Clone() *Dashboard {
	if d == nil {
		return nil
	}
	c := &Dashboard{Role: d.Role}
	if d.Admin != nil {
		a := *d.Admin
		if d.Admin.RepairStatistics.StatusBreakdown != nil {
			a.RepairStatistics.StatusBreakdown = make(map[BookingStatus]int, len(d.Admin.RepairStatistics.StatusBreakdown))
			for k, v := range d.Admin.RepairStatistics.StatusBreakdown {
				a.RepairStatistics.StatusBreakdown[k] = v
			}
		}
		a.RepairStatistics.RecentBookings = append([]BookingSummary(nil), d.Admin.RepairStatistics.RecentBookings...)
		a.RecentActivities = append([]Activity(nil), d.Admin.RecentActivities...)
		c.Admin = &a
	}
	if d.Staff != nil {
		s := *d.Staff
		c.Staff = &s
	}
	if d.Customer != nil {
		cu := *d.Customer
		c.Customer = &cu
	}
	return c
}
