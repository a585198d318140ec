package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
)

// Admin roles checked by the admin middleware. Super admins hold all of them.
const (
	RoleReviewPayments   = "CanReviewPayments"
	RoleAdjustWallets    = "CanAdjustWallets"
	RoleViewTransactions = "CanViewTransactions"
	RoleManageSettings   = "CanManageSettings"
	RoleRunSettlement    = "CanRunSettlement"
)

// AdminAccount is an admin with the roles granted to it.
type AdminAccount struct {
	UserID    string         `db:"user_id" json:"user_id"`
	IsSuper   bool           `db:"is_super" json:"is_super"`
	CreatedBy *string        `db:"created_by" json:"created_by,omitempty"`
	Roles     pq.StringArray `db:"roles" json:"roles"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

type AdminStore struct {
	db DB
}

func NewAdminStore(db DB) *AdminStore {
	return &AdminStore{db: db}
}

func (s *AdminStore) IsAdmin(ctx context.Context, userID string) (bool, bool, error) {
	var isSuper bool
	err := s.db.GetContext(ctx, &isSuper, `
		SELECT is_super
		FROM admins
		WHERE user_id = $1
	`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, false, nil
		}
		return false, false, err
	}
	return true, isSuper, nil
}

func (s *AdminStore) HasRole(ctx context.Context, userID, role string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(1)
		FROM admin_roles
		WHERE admin_user_id = $1 AND role = $2
	`, userID, role)
	return count > 0, err
}

func (s *AdminStore) Promote(ctx context.Context, tx Execer, userID string, createdBy string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO admins (user_id, is_super, created_by)
		VALUES ($1, FALSE, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, createdBy)
	return err
}

func (s *AdminStore) GrantRole(ctx context.Context, tx Execer, adminUserID, role string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO admin_roles (admin_user_id, role)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, adminUserID, role)
	return err
}

// RevokeRole reports whether the admin held the role.
func (s *AdminStore) RevokeRole(ctx context.Context, tx Execer, adminUserID, role string) (bool, error) {
	result, err := tx.ExecContext(ctx, `
		DELETE FROM admin_roles
		WHERE admin_user_id = $1 AND role = $2
	`, adminUserID, role)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// EnsureSuperAdmin makes userID a super admin, promoting an existing admin.
// Identity lives outside this service, so this is the only way the first
// admin comes to exist.
func (s *AdminStore) EnsureSuperAdmin(ctx context.Context, tx Execer, userID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO admins (user_id, is_super)
		VALUES ($1, TRUE)
		ON CONFLICT (user_id) DO UPDATE SET is_super = TRUE
	`, userID)
	return err
}

func (s *AdminStore) List(ctx context.Context) ([]AdminAccount, error) {
	var rows []AdminAccount
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.user_id, a.is_super, a.created_by, a.created_at,
		       COALESCE(array_agg(r.role ORDER BY r.role) FILTER (WHERE r.role IS NOT NULL), '{}') AS roles
		FROM admins a
		LEFT JOIN admin_roles r ON r.admin_user_id = a.user_id
		GROUP BY a.user_id, a.is_super, a.created_by, a.created_at
		ORDER BY a.created_at
	`)
	return rows, err
}
