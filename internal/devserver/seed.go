package devserver

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ryanKinoti/LCS-v1/internal/account"
	"github.com/ryanKinoti/LCS-v1/internal/catalog"
)

// Seed accounts. Passwords are for local development only.
const (
	SeedAdminEmail       = "admin@repairdesk.local"
	SeedAdminPassword    = "admin-pass-1"
	SeedStaffEmail       = "tech@repairdesk.local"
	SeedStaffPassword    = "staff-pass-1"
	SeedCustomerEmail    = "customer@repairdesk.local"
	SeedCustomerPassword = "customer-pass-1"
)

type seedUser struct {
	email, password string
	first, last     string
	superuser       bool
	staffRole       account.StaffRole
	specializations string
	customerRole    account.CustomerRole
	companyName     string
}

type seedBooking struct {
	service string
	device  account.DeviceType
	status  account.BookingStatus
	payment account.PaymentStatus
	age     time.Duration
}

var (
	seedUsers = []seedUser{
		{email: SeedAdminEmail, password: SeedAdminPassword, first: "Ada", last: "Admin", superuser: true, staffRole: account.StaffAdmin},
		{email: SeedStaffEmail, password: SeedStaffPassword, first: "Tom", last: "Technician", staffRole: account.StaffTechnician, specializations: "laptops, data recovery"},
		{email: SeedCustomerEmail, password: SeedCustomerPassword, first: "Cate", last: "Customer", customerRole: account.CustomerClient},
	}

	seedBookings = []seedBooking{
		{"Screen Replacement", account.DeviceLaptop, account.BookingCompleted, account.PaymentPaid, 20 * 24 * time.Hour},
		{"Virus Removal", account.DeviceDesktop, account.BookingCompleted, account.PaymentPaid, 12 * 24 * time.Hour},
		{"Battery Replacement", account.DeviceLaptop, account.BookingInProgress, account.PaymentPending, 3 * 24 * time.Hour},
		{"Data Recovery", account.DeviceDesktop, account.BookingConfirmed, account.PaymentPending, 2 * 24 * time.Hour},
		{"Deep Cleaning", account.DevicePrinter, account.BookingPending, account.PaymentPending, 6 * time.Hour},
		{"Operating System Installation", account.DeviceLaptop, account.BookingCanceled, account.PaymentRefunded, 9 * 24 * time.Hour},
	}
)

// Seed inserts the development accounts and bookings. It does nothing if
// any user already exists.
func (s *Store) Seed(ctx context.Context, cat *catalog.Catalog) error {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	ids := make(map[string]int64, len(seedUsers))
	for _, u := range seedUsers {
		id, err := s.addSeedUser(ctx, u)
		if err != nil {
			return fmt.Errorf("seed %s: %w", u.email, err)
		}
		ids[u.email] = id
	}

	now := s.now()
	for _, b := range seedBookings {
		amount := 0
		if cat != nil {
			if p, ok := cat.Find(b.service, b.device); ok {
				amount = p.Amount
			}
		}
		_, err := s.AddBooking(ctx, Booking{
			CustomerID:    ids[SeedCustomerEmail],
			TechnicianID:  sql.NullInt64{Int64: ids[SeedStaffEmail], Valid: true},
			DeviceType:    b.device,
			Service:       b.service,
			Status:        b.status,
			PaymentStatus: b.payment,
			Amount:        amount,
			CreatedAt:     now.Add(-b.age),
		})
		if err != nil {
			return fmt.Errorf("seed booking %q: %w", b.service, err)
		}
	}
	return nil
}

func (s *Store) addSeedUser(ctx context.Context, u seedUser) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	uid, err := s.createAccount(ctx, tx, u.email, u.password)
	if err != nil {
		return 0, err
	}
	id, err := s.insertID(ctx, tx, `INSERT INTO users (firebase_uid, email, first_name, last_name, phone_number, is_superuser, is_active, date_joined) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uid, u.email, u.first, u.last, "", u.superuser, true, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if u.staffRole != "" {
		if _, err := s.insertID(ctx, tx, `INSERT INTO staff_profiles (user_id, role, specializations) VALUES (?, ?, ?)`,
			id, string(u.staffRole), u.specializations); err != nil {
			return 0, err
		}
	}
	if u.customerRole != "" {
		if _, err := s.insertID(ctx, tx, `INSERT INTO customer_profiles (user_id, role, company_name, preferred_contact) VALUES (?, ?, ?, ?)`,
			id, string(u.customerRole), u.companyName, string(account.ContactEmail)); err != nil {
			return 0, err
		}
	}
	return id, tx.Commit()
}
