package account

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Role is the access level the backend resolves for a user.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleStaff    Role = "staff"
	RoleCustomer Role = "customer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleCustomer:
		return true
	}
	return false
}

// ProfileType selects which profile the backend creates on registration.
type ProfileType string

const (
	ProfileCustomer ProfileType = "customer"
	ProfileStaff    ProfileType = "staff"
)

func (p ProfileType) Valid() bool {
	return p == ProfileCustomer || p == ProfileStaff
}

// StaffRole is the job a staff profile holds inside the shop.
type StaffRole string

const (
	StaffTechnician   StaffRole = "technician"
	StaffAdmin        StaffRole = "admin"
	StaffReceptionist StaffRole = "receptionist"
)

func (r StaffRole) Valid() bool {
	switch r {
	case StaffTechnician, StaffAdmin, StaffReceptionist:
		return true
	}
	return false
}

// CustomerRole distinguishes individual clients from company accounts.
type CustomerRole string

const (
	CustomerClient  CustomerRole = "client"
	CustomerCompany CustomerRole = "company"
)

func (r CustomerRole) Valid() bool {
	return r == CustomerClient || r == CustomerCompany
}

type ContactMethod string

const (
	ContactEmail     ContactMethod = "email"
	ContactPhoneCall ContactMethod = "phone_call"
	ContactSMS       ContactMethod = "sms"
)

func (c ContactMethod) Valid() bool {
	switch c {
	case ContactEmail, ContactPhoneCall, ContactSMS:
		return true
	}
	return false
}

type BookingStatus string

const (
	BookingPending    BookingStatus = "pending"
	BookingConfirmed  BookingStatus = "confirmed"
	BookingInProgress BookingStatus = "in_progress"
	BookingCompleted  BookingStatus = "completed"
	BookingCanceled   BookingStatus = "canceled"
)

// BookingStatuses lists every booking status in workflow order.
var BookingStatuses = []BookingStatus{
	BookingPending,
	BookingConfirmed,
	BookingInProgress,
	BookingCompleted,
	BookingCanceled,
}

func (s BookingStatus) Valid() bool {
	for _, v := range BookingStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Active reports whether the booking still needs work.
func (s BookingStatus) Active() bool {
	return s == BookingPending || s == BookingConfirmed || s == BookingInProgress
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

type DeviceType string

const (
	DeviceLaptop  DeviceType = "laptop"
	DeviceDesktop DeviceType = "desktop"
	DevicePrinter DeviceType = "printer"
)

func (d DeviceType) Valid() bool {
	switch d {
	case DeviceLaptop, DeviceDesktop, DevicePrinter:
		return true
	}
	return false
}

// BusinessHours is the shop's opening window, shown on the services page.
const BusinessHours = "08:00 AM to 06:00 PM"

// Label turns a wire value such as "in_progress" into "In Progress".
func Label(v string) string {
	// Casers keep state, so each call gets its own.
	return cases.Title(language.English).String(strings.ReplaceAll(v, "_", " "))
}
