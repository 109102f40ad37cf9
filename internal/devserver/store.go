package devserver

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"

	"github.com/ryanKinoti/LCS-v1/internal/account"
)

//go:embed schema.sql
var schemaSQL string

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrEmailExists        = errors.New("email already registered")
	ErrTokenInvalid       = errors.New("token invalid or expired")
	ErrUserNotFound       = errors.New("user not found")
)

const (
	tokenID      = "id"
	tokenRefresh = "refresh"
	// tokenLogin is handed out at registration. It can be exchanged once
	// for a session and is dropped when the account signs in.
	tokenLogin = "login"
)

// Store keeps identity accounts, backend users and bookings in one SQL
// database. Queries are written with ? placeholders and rebound for
// postgres.
type Store struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// Open connects to driver (sqlite3 or postgres) and applies the schema.
func Open(driver, dsn string) (*Store, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	if driver == "sqlite3" {
		// One connection: SQLite has a single writer and every :memory:
		// connection is a separate database.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
			if _, err := db.Exec(pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("apply %q: %w", pragma, err)
			}
		}
	}

	s := &Store{db: db, driver: driver, now: time.Now}
	if _, err := db.Exec(s.schema()); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) schema() string {
	id, ts := "INTEGER PRIMARY KEY AUTOINCREMENT", "TIMESTAMP"
	if s.driver == "postgres" {
		id, ts = "BIGSERIAL PRIMARY KEY", "TIMESTAMPTZ"
	}
	return strings.NewReplacer("{{id}}", id, "{{ts}}", ts).Replace(schemaSQL)
}

// rebind turns ? placeholders into $n for postgres.
func (s *Store) rebind(q string) string {
	if s.driver != "postgres" {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) exec(ctx context.Context, q querier, query string, args ...any) error {
	_, err := q.ExecContext(ctx, s.rebind(query), args...)
	return err
}

func (s *Store) insertID(ctx context.Context, q querier, query string, args ...any) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, s.rebind(query+" RETURNING id"), args...).Scan(&id)
	return id, err
}

// Account is an identity-provider account.
type Account struct {
	UID      string
	Email    string
	Disabled bool
}

// Tokens is a freshly issued token pair.
type Tokens struct {
	IDToken      string
	RefreshToken string
	ExpiresAt    time.Time
}

func hashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(b), err
}

func (s *Store) createAccount(ctx context.Context, q querier, email, password string) (string, error) {
	var n int
	if err := q.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM identity_accounts WHERE email = ?`), email).Scan(&n); err != nil {
		return "", err
	}
	if n > 0 {
		return "", ErrEmailExists
	}
	hash, err := hashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	uid := uuid.NewString()
	err = s.exec(ctx, q, `INSERT INTO identity_accounts (uid, email, password_hash, disabled, created_at) VALUES (?, ?, ?, ?, ?)`,
		uid, email, hash, false, s.now().UTC())
	return uid, err
}

// Authenticate checks email and password against the identity accounts.
func (s *Store) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	var (
		a    Account
		hash string
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT uid, email, password_hash, disabled FROM identity_accounts WHERE email = ?`),
		strings.ToLower(strings.TrimSpace(email))).Scan(&a.UID, &a.Email, &hash, &a.Disabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if a.Disabled {
		return nil, ErrAccountDisabled
	}
	return &a, nil
}

// IssueTokens creates a new ID token valid for ttl and a refresh token.
func (s *Store) IssueTokens(ctx context.Context, uid string, ttl time.Duration) (*Tokens, error) {
	t := &Tokens{
		IDToken:      uuid.NewString(),
		RefreshToken: uuid.NewString(),
		ExpiresAt:    s.now().Add(ttl).UTC(),
	}
	if err := s.insertToken(ctx, s.db, uid, tokenID, t.IDToken, t.ExpiresAt); err != nil {
		return nil, err
	}
	if err := s.insertToken(ctx, s.db, uid, tokenRefresh, t.RefreshToken, time.Time{}); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) insertToken(ctx context.Context, q querier, uid, kind, token string, expires time.Time) error {
	var exp any
	if !expires.IsZero() {
		exp = expires
	}
	return s.exec(ctx, q, `INSERT INTO identity_tokens (token, uid, kind, expires_at) VALUES (?, ?, ?, ?)`, token, uid, kind, exp)
}

// Refresh exchanges a refresh token for a new ID token. The refresh token
// stays valid.
func (s *Store) Refresh(ctx context.Context, refreshToken string, ttl time.Duration) (*Account, *Tokens, error) {
	a, err := s.accountForToken(ctx, refreshToken, tokenRefresh)
	if errors.Is(err, ErrTokenInvalid) {
		return s.claimLoginToken(ctx, refreshToken, ttl)
	}
	if err != nil {
		return nil, nil, err
	}
	if a.Disabled {
		return a, nil, ErrAccountDisabled
	}
	t := &Tokens{IDToken: uuid.NewString(), RefreshToken: refreshToken, ExpiresAt: s.now().Add(ttl).UTC()}
	if err := s.insertToken(ctx, s.db, a.UID, tokenID, t.IDToken, t.ExpiresAt); err != nil {
		return nil, nil, err
	}
	return a, t, nil
}

// IssueLoginToken creates the single-use token returned by registration.
func (s *Store) IssueLoginToken(ctx context.Context, uid string) (string, error) {
	token := uuid.NewString()
	if err := s.insertToken(ctx, s.db, uid, tokenLogin, token, time.Time{}); err != nil {
		return "", err
	}
	return token, nil
}

// claimLoginToken consumes a registration login token and starts a full
// session in its place.
func (s *Store) claimLoginToken(ctx context.Context, token string, ttl time.Duration) (*Account, *Tokens, error) {
	a, err := s.accountForToken(ctx, token, tokenLogin)
	if err != nil {
		return nil, nil, err
	}
	if a.Disabled {
		return a, nil, ErrAccountDisabled
	}
	if err := s.RevokeSession(ctx, token); err != nil {
		return nil, nil, err
	}
	t, err := s.IssueTokens(ctx, a.UID, ttl)
	if err != nil {
		return nil, nil, err
	}
	return a, t, nil
}

// DropLoginTokens removes unclaimed registration tokens for uid.
func (s *Store) DropLoginTokens(ctx context.Context, uid string) error {
	return s.exec(ctx, s.db, `DELETE FROM identity_tokens WHERE uid = ? AND kind = ?`, uid, tokenLogin)
}

// VerifyIDToken returns the account an unexpired ID token belongs to.
func (s *Store) VerifyIDToken(ctx context.Context, idToken string) (*Account, error) {
	a, err := s.accountForToken(ctx, idToken, tokenID)
	if err != nil {
		return nil, err
	}
	if a.Disabled {
		return nil, ErrAccountDisabled
	}
	return a, nil
}

func (s *Store) accountForToken(ctx context.Context, token, kind string) (*Account, error) {
	var (
		a   Account
		exp sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT a.uid, a.email, a.disabled, t.expires_at
		FROM identity_tokens t JOIN identity_accounts a ON a.uid = t.uid
		WHERE t.token = ? AND t.kind = ?`), token, kind).Scan(&a.UID, &a.Email, &a.Disabled, &exp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenInvalid
	}
	if err != nil {
		return nil, err
	}
	if exp.Valid && !s.now().Before(exp.Time) {
		return nil, ErrTokenInvalid
	}
	return &a, nil
}

// RevokeSession deletes the tokens presented at sign-out.
func (s *Store) RevokeSession(ctx context.Context, tokens ...string) error {
	for _, t := range tokens {
		if t == "" {
			continue
		}
		if err := s.exec(ctx, s.db, `DELETE FROM identity_tokens WHERE token = ?`, t); err != nil {
			return err
		}
	}
	return nil
}

// Disable marks the account disabled and revokes all of its tokens.
func (s *Store) Disable(ctx context.Context, uid string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.rebind(`UPDATE identity_accounts SET disabled = ? WHERE uid = ?`), true, uid)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	if err := s.exec(ctx, tx, `DELETE FROM identity_tokens WHERE uid = ?`, uid); err != nil {
		return err
	}
	return tx.Commit()
}

// Register creates the identity account, the backend user and its profile
// in one transaction. It returns the new account's uid.
func (s *Store) Register(ctx context.Context, req account.RegisterRequest) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	uid, err := s.createAccount(ctx, tx, req.Email, req.Password)
	if err != nil {
		return "", err
	}
	userID, err := s.insertID(ctx, tx, `INSERT INTO users (firebase_uid, email, first_name, last_name, phone_number, is_superuser, is_active, date_joined) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uid, req.Email, req.FirstName, req.LastName, req.PhoneNumber, false, true, s.now().UTC())
	if err != nil {
		return "", fmt.Errorf("insert user: %w", err)
	}

	switch req.ProfileType {
	case account.ProfileStaff:
		_, err = s.insertID(ctx, tx, `INSERT INTO staff_profiles (user_id, role, specializations) VALUES (?, ?, ?)`,
			userID, string(account.StaffTechnician), "")
	default:
		_, err = s.insertID(ctx, tx, `INSERT INTO customer_profiles (user_id, role, company_name, preferred_contact) VALUES (?, ?, ?, ?)`,
			userID, string(account.CustomerClient), "", string(account.ContactEmail))
	}
	if err != nil {
		return "", fmt.Errorf("insert %s profile: %w", req.ProfileType, err)
	}
	return uid, tx.Commit()
}

// userRecord is a backend user with whichever profile it has.
type userRecord struct {
	ID          int64
	UID         string
	Email       string
	FirstName   string
	LastName    string
	IsSuperuser bool
	Staff       *account.Profile
	Customer    *account.Profile
}

// Role is admin for superusers, then staff, then customer. A user with no
// profile has no role.
func (u *userRecord) Role() account.Role {
	switch {
	case u.IsSuperuser:
		return account.RoleAdmin
	case u.Staff != nil:
		return account.RoleStaff
	case u.Customer != nil:
		return account.RoleCustomer
	}
	return ""
}

func (u *userRecord) User() account.User {
	return account.User{ID: u.ID, Email: u.Email, FullName: strings.TrimSpace(u.FirstName + " " + u.LastName)}
}

func (u *userRecord) Profile() account.Profile {
	switch u.Role() {
	case account.RoleAdmin, account.RoleStaff:
		if u.Staff != nil {
			return *u.Staff
		}
	case account.RoleCustomer:
		return *u.Customer
	}
	return account.Profile{}
}

// UserByUID loads the backend user linked to an identity account.
func (s *Store) UserByUID(ctx context.Context, uid string) (*userRecord, error) {
	var u userRecord
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, firebase_uid, email, first_name, last_name, is_superuser
		FROM users WHERE firebase_uid = ? AND is_active = ?`), uid, true).
		Scan(&u.ID, &u.UID, &u.Email, &u.FirstName, &u.LastName, &u.IsSuperuser)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	var p account.Profile
	err = s.db.QueryRowContext(ctx, s.rebind(`SELECT id, role, specializations FROM staff_profiles WHERE user_id = ?`), u.ID).
		Scan(&p.ID, &p.Role, &p.Specializations)
	switch {
	case err == nil:
		u.Staff = &p
	case !errors.Is(err, sql.ErrNoRows):
		return nil, err
	}

	var c account.Profile
	err = s.db.QueryRowContext(ctx, s.rebind(`SELECT id, role, company_name FROM customer_profiles WHERE user_id = ?`), u.ID).
		Scan(&c.ID, &c.Role, &c.CompanyName)
	switch {
	case err == nil:
		u.Customer = &c
	case !errors.Is(err, sql.ErrNoRows):
		return nil, err
	}
	return &u, nil
}

// Booking is one repair booking row.
type Booking struct {
	ID            int64
	CustomerID    int64
	Customer      string
	TechnicianID  sql.NullInt64
	DeviceType    account.DeviceType
	Service       string
	Status        account.BookingStatus
	PaymentStatus account.PaymentStatus
	Amount        int
	CreatedAt     time.Time
}

// AddBooking inserts b and returns its id.
func (s *Store) AddBooking(ctx context.Context, b Booking) (int64, error) {
	created := b.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	return s.insertID(ctx, s.db, `INSERT INTO bookings (customer_id, technician_id, device_type, service, status, payment_status, amount, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.CustomerID, b.TechnicianID, string(b.DeviceType), b.Service, string(b.Status), string(b.PaymentStatus), b.Amount, created.UTC())
}

// Bookings lists bookings created at or after since, newest first. A zero
// filter id matches every customer or technician.
func (s *Store) Bookings(ctx context.Context, since time.Time, customerID, technicianID int64) ([]Booking, error) {
	q := `
		SELECT b.id, b.customer_id, u.email, b.technician_id, b.device_type, b.service, b.status, b.payment_status, b.amount, b.created_at
		FROM bookings b JOIN users u ON u.id = b.customer_id
		WHERE b.created_at >= ?`
	args := []any{since.UTC()}
	if customerID != 0 {
		q += ` AND b.customer_id = ?`
		args = append(args, customerID)
	}
	if technicianID != 0 {
		q += ` AND b.technician_id = ?`
		args = append(args, technicianID)
	}
	q += ` ORDER BY b.created_at DESC, b.id DESC`

	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Booking
	for rows.Next() {
		var (
			b                       Booking
			device, status, payment string
		)
		if err := rows.Scan(&b.ID, &b.CustomerID, &b.Customer, &b.TechnicianID, &device, &b.Service, &status, &payment, &b.Amount, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.DeviceType = account.DeviceType(device)
		b.Status = account.BookingStatus(status)
		b.PaymentStatus = account.PaymentStatus(payment)
		out = append(out, b)
	}
	return out, rows.Err()
}

// StaffCounts returns the number of active staff and how many of them are
// technicians.
func (s *Store) StaffCounts(ctx context.Context) (active, technicians int, err error) {
	err = s.db.QueryRowContext(ctx, s.rebind(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN p.role = ? THEN 1 ELSE 0 END), 0)
		FROM staff_profiles p JOIN users u ON u.id = p.user_id
		WHERE u.is_active = ?`), string(account.StaffTechnician), true).Scan(&active, &technicians)
	return active, technicians, err
}
