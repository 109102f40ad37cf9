package devserver

import (
	"context"
	"fmt"
	"time"

	"github.com/ryanKinoti/LCS-v1/internal/account"
)

const (
	dashboardWindow = 30 * 24 * time.Hour
	recentBookings  = 5
)

// buildDashboard aggregates the role-shaped dashboard for u.
func (s *Server) buildDashboard(ctx context.Context, u *userRecord) (*account.Dashboard, error) {
	switch role := u.Role(); role {
	case account.RoleAdmin:
		d, err := s.adminDashboard(ctx)
		if err != nil {
			return nil, err
		}
		return &account.Dashboard{Role: role, Admin: d}, nil
	case account.RoleStaff:
		bookings, err := s.store.Bookings(ctx, time.Time{}, 0, u.ID)
		if err != nil {
			return nil, err
		}
		d := &account.StaffDashboard{AssignedRepairs: len(bookings)}
		for _, b := range bookings {
			switch {
			case b.Status == account.BookingCompleted:
				d.CompletedRepairs++
			case b.Status.Active():
				d.PendingRepairs++
			}
		}
		return &account.Dashboard{Role: role, Staff: d}, nil
	case account.RoleCustomer:
		bookings, err := s.store.Bookings(ctx, time.Time{}, u.ID, 0)
		if err != nil {
			return nil, err
		}
		d := &account.CustomerDashboard{TotalBookings: len(bookings)}
		for _, b := range bookings {
			switch {
			case b.Status == account.BookingCompleted:
				d.CompletedBookings++
			case b.Status.Active():
				d.ActiveBookings++
			}
		}
		return &account.Dashboard{Role: role, Customer: d}, nil
	default:
		return nil, fmt.Errorf("no dashboard for role %q", role)
	}
}

func (s *Server) adminDashboard(ctx context.Context) (*account.AdminDashboard, error) {
	now := s.store.now()
	bookings, err := s.store.Bookings(ctx, now.Add(-dashboardWindow), 0, 0)
	if err != nil {
		return nil, err
	}

	d := &account.AdminDashboard{
		RepairStatistics: account.RepairStatistics{
			TotalRepairs:    len(bookings),
			StatusBreakdown: make(map[account.BookingStatus]int),
			RecentBookings:  []account.BookingSummary{},
		},
		RecentActivities: []account.Activity{},
	}
	for i, b := range bookings {
		d.RepairStatistics.StatusBreakdown[b.Status]++
		if i < recentBookings {
			d.RepairStatistics.RecentBookings = append(d.RepairStatistics.RecentBookings, account.BookingSummary{
				ID:         b.ID,
				Customer:   b.Customer,
				DeviceType: b.DeviceType,
				Service:    b.Service,
				Status:     b.Status,
				CreatedAt:  b.CreatedAt,
			})
			d.RecentActivities = append(d.RecentActivities, account.Activity{
				Type:      "booking",
				Summary:   fmt.Sprintf("%s for %s (%s)", b.Service, b.Customer, account.Label(string(b.Status))),
				Timestamp: b.CreatedAt,
			})
		}
		if b.Status == account.BookingCompleted && b.PaymentStatus == account.PaymentPaid {
			d.FinancialMetrics.BookingsCount++
			d.FinancialMetrics.TotalRevenue += float64(b.Amount)
		}
	}
	if n := d.FinancialMetrics.BookingsCount; n > 0 {
		d.FinancialMetrics.AverageBookingValue = d.FinancialMetrics.TotalRevenue / float64(n)
	}

	active, techs, err := s.store.StaffCounts(ctx)
	if err != nil {
		return nil, err
	}
	d.StaffOverview = account.StaffOverview{ActiveStaff: active, Technicians: techs}

	if s.catalog != nil {
		categories, services := s.catalog.Count()
		d.ServiceMetrics = account.ServiceMetrics{AvailableServices: services, Categories: categories}
	}
	return d, nil
}
