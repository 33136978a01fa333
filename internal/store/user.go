package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/crmdesk/internal/model"
)

// ErrNotFound is returned by updates that match no row.
var ErrNotFound = errors.New("not found")

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// UserFilter narrows List results. Empty fields match everything.
type UserFilter struct {
	Status             model.AccountStatus
	SubscriptionStatus model.SubscriptionStatus
	Search             string
}

// UserStats summarizes accounts for the admin console.
type UserStats struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Suspended int `json:"suspended"`
	Expired   int `json:"expired"`
	PastDue   int `json:"pastDue"`
}

const userCols = `u.id, u.email, u.name, u.role, u.status, u.created_at, u.updated_at`

const userWithSubCols = userCols + `,
	s.id, s.user_id, s.plan_id, s.status, s.stripe_subscription_id,
	s.current_period_start, s.current_period_end, s.cancel_at_period_end, s.created_at, s.updated_at`

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var status string
	err := scanner.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Status = model.AccountStatus(status)
	return &u, nil
}

func scanUserWithSubscription(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var status string
	var (
		subID, subUserID, planID, subStatus, stripeID sql.NullString
		periodStart, periodEnd, subCreated, subUpdated sql.NullTime
		cancelAtPeriodEnd                              sql.NullInt64
	)
	err := scanner.Scan(
		&u.ID, &u.Email, &u.Name, &u.Role, &status, &u.CreatedAt, &u.UpdatedAt,
		&subID, &subUserID, &planID, &subStatus, &stripeID,
		&periodStart, &periodEnd, &cancelAtPeriodEnd, &subCreated, &subUpdated,
	)
	if err != nil {
		return nil, err
	}
	u.Status = model.AccountStatus(status)
	if subID.Valid {
		sub := &model.Subscription{
			ID:                 subID.String,
			UserID:             subUserID.String,
			PlanID:             planID.String,
			Status:             model.SubscriptionStatus(subStatus.String),
			CurrentPeriodStart: periodStart.Time,
			CurrentPeriodEnd:   periodEnd.Time,
			CancelAtPeriodEnd:  cancelAtPeriodEnd.Int64 != 0,
			CreatedAt:          subCreated.Time,
			UpdatedAt:          subUpdated.Time,
		}
		if stripeID.Valid {
			sub.StripeSubscriptionID = &stripeID.String
		}
		u.Subscription = sub
	}
	return &u, nil
}

func (s *UserStore) Create(email, name, role string, status model.AccountStatus) (*model.User, error) {
	if role == "" {
		role = "user"
	}
	if status == "" {
		status = model.AccountActive
	}
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO users (id, email, name, role, status) VALUES (?, ?, ?, ?, ?)`,
		id, email, name, role, string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return s.GetByID(id)
}

// CreateWithSubscription inserts the user and their first subscription in a
// single transaction, so a failed subscription insert leaves no account.
func (s *UserStore) CreateWithSubscription(email, name, role string, status model.AccountStatus, planID string, periodStart, periodEnd time.Time) (*model.User, error) {
	candidate := model.Subscription{CurrentPeriodStart: periodStart, CurrentPeriodEnd: periodEnd}
	if err := candidate.Validate(); err != nil {
		return nil, err
	}
	if role == "" {
		role = "user"
	}
	if status == "" {
		status = model.AccountActive
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	id := uuid.NewString()
	if _, err := tx.Exec(
		`INSERT INTO users (id, email, name, role, status) VALUES (?, ?, ?, ?, ?)`,
		id, email, name, role, string(status),
	); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO subscriptions (id, user_id, plan_id, current_period_start, current_period_end) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), id, planID, periodStart.UTC(), periodEnd.UTC(),
	); err != nil {
		return nil, fmt.Errorf("insert subscription: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return s.GetByID(id)
}

// GetByID returns the user with their current subscription, or nil.
func (s *UserStore) GetByID(id string) (*model.User, error) {
	row := s.db.QueryRow(
		`SELECT `+userWithSubCols+` FROM users u LEFT JOIN subscriptions s ON s.user_id = u.id WHERE u.id = ?`,
		id,
	)
	u, err := scanUserWithSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByEmail(email string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users u WHERE u.email = ?`, email)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// ListWithSubscriptions returns users joined with their subscriptions in
// creation order.
func (s *UserStore) ListWithSubscriptions(f UserFilter) ([]model.User, error) {
	var where []string
	var args []any
	if f.Status != "" {
		where = append(where, "u.status = ?")
		args = append(args, string(f.Status))
	}
	if f.SubscriptionStatus != "" {
		where = append(where, "s.status = ?")
		args = append(args, string(f.SubscriptionStatus))
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		where = append(where, "(LOWER(u.name) LIKE ? OR LOWER(u.email) LIKE ?)")
		pattern := "%" + strings.ToLower(q) + "%"
		args = append(args, pattern, pattern)
	}

	query := `SELECT ` + userWithSubCols + ` FROM users u LEFT JOIN subscriptions s ON s.user_id = u.id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY u.created_at, u.rowid"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUserWithSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UpdateStatus sets the account status. It returns ErrNotFound for an
// unknown user.
func (s *UserStore) UpdateStatus(id string, status model.AccountStatus) error {
	result, err := s.db.Exec(`UPDATE users SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update user status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *UserStore) Stats() (UserStats, error) {
	var st UserStats
	err := s.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN u.status = 'active' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN u.status = 'suspended' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN s.status = 'expired' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN s.status = 'past_due' THEN 1 ELSE 0 END), 0)
		FROM users u LEFT JOIN subscriptions s ON s.user_id = u.id`,
	).Scan(&st.Total, &st.Active, &st.Suspended, &st.Expired, &st.PastDue)
	if err != nil {
		return st, fmt.Errorf("user stats: %w", err)
	}
	return st, nil
}

func (s *UserStore) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}
