package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ihsankeskin/multitenant-qr-menu-system-sub000/internal/domain"
)

// Compile-time interface assertions.
var (
	_ AccountRepository    = (*PostgresAccountRepo)(nil)
	_ MembershipRepository = (*PostgresMembershipRepo)(nil)
	_ TenantRepository     = (*PostgresTenantRepo)(nil)
)

const accountColumns = `id, email, password_hash, platform_role, active, must_change_password, failed_attempts, locked_until, last_login_at, created_at, updated_at`

// PostgresAccountRepo implements AccountRepository on pgx.
type PostgresAccountRepo struct {
	db *pgxpool.Pool
}

func NewPostgresAccountRepo(db *pgxpool.Pool) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

func (r *PostgresAccountRepo) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	account, err := scanAccount(row)
	if err != nil {
		return domain.Account{}, fmt.Errorf("get account by email: %w", err)
	}
	return account, nil
}

func (r *PostgresAccountRepo) GetByID(ctx context.Context, id int64) (domain.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	account, err := scanAccount(row)
	if err != nil {
		return domain.Account{}, fmt.Errorf("get account by id: %w", err)
	}
	return account, nil
}

const insertAccountSQL = `INSERT INTO accounts (email, password_hash, platform_role, active, must_change_password, failed_attempts)
VALUES ($1, $2, $3, $4, $5, 0)
RETURNING ` + accountColumns

func (r *PostgresAccountRepo) Create(ctx context.Context, account domain.Account) (domain.Account, error) {
	row := r.db.QueryRow(ctx, insertAccountSQL,
		account.Email,
		account.PasswordHash,
		account.PlatformRole,
		account.Active,
		account.MustChangePassword,
	)
	created, err := scanAccount(row)
	if err != nil {
		return domain.Account{}, fmt.Errorf("create account: %w", err)
	}
	return created, nil
}

// The increment and the threshold comparison happen inside one statement so
// two racing failures both count and only the crossing one arms the window.
const recordFailedAttemptSQL = `UPDATE accounts
SET failed_attempts = failed_attempts + 1,
    locked_until = CASE WHEN failed_attempts + 1 >= $2 THEN $3 ELSE locked_until END,
    updated_at = now()
WHERE id = $1
RETURNING ` + accountColumns

func (r *PostgresAccountRepo) RecordFailedAttempt(ctx context.Context, id int64, threshold int, lockedUntil time.Time) (domain.Account, error) {
	row := r.db.QueryRow(ctx, recordFailedAttemptSQL, id, threshold, lockedUntil)
	account, err := scanAccount(row)
	if err != nil {
		return domain.Account{}, fmt.Errorf("record failed attempt: %w", err)
	}
	return account, nil
}

func (r *PostgresAccountRepo) ResetLoginState(ctx context.Context, id int64, lastLogin time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE accounts
SET failed_attempts = 0, locked_until = NULL, last_login_at = $2, updated_at = now()
WHERE id = $1`, id, lastLogin)
	if err != nil {
		return fmt.Errorf("reset login state: %w", err)
	}
	return nil
}

func (r *PostgresAccountRepo) ClearLockout(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `UPDATE accounts
SET failed_attempts = 0, locked_until = NULL, updated_at = now()
WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("clear lockout: %w", err)
	}
	return nil
}

func (r *PostgresAccountRepo) UpdatePassword(ctx context.Context, id int64, currentHash, newHash string) error {
	tag, err := r.db.Exec(ctx, `UPDATE accounts
SET password_hash = $3, must_change_password = false, updated_at = now()
WHERE id = $1 AND password_hash = $2`, id, currentHash, newHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleUpdate
	}
	return nil
}

func (r *PostgresAccountRepo) ForcePasswordReset(ctx context.Context, id int64, newHash *string) error {
	var err error
	if newHash != nil {
		_, err = r.db.Exec(ctx, `UPDATE accounts
SET must_change_password = true, password_hash = $2, updated_at = now()
WHERE id = $1`, id, *newHash)
	} else {
		_, err = r.db.Exec(ctx, `UPDATE accounts
SET must_change_password = true, updated_at = now()
WHERE id = $1`, id)
	}
	if err != nil {
		return fmt.Errorf("force password reset: %w", err)
	}
	return nil
}

func (r *PostgresAccountRepo) SetActive(ctx context.Context, id int64, active bool) error {
	_, err := r.db.Exec(ctx, `UPDATE accounts SET active = $2, updated_at = now() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	return nil
}

// PostgresMembershipRepo implements MembershipRepository.
type PostgresMembershipRepo struct {
	db *pgxpool.Pool
}

func NewPostgresMembershipRepo(db *pgxpool.Pool) *PostgresMembershipRepo {
	return &PostgresMembershipRepo{db: db}
}

const membershipColumns = `id, account_id, tenant_id, role, active, created_at, updated_at`

func (r *PostgresMembershipRepo) ListByAccount(ctx context.Context, accountID int64) ([]domain.TenantMembership, error) {
	rows, err := r.db.Query(ctx, `SELECT `+membershipColumns+` FROM tenant_memberships WHERE account_id = $1 AND active`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []domain.TenantMembership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("list memberships: %w", err)
		}
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return memberships, nil
}

func (r *PostgresMembershipRepo) GetByAccountAndTenant(ctx context.Context, accountID, tenantID int64) (domain.TenantMembership, error) {
	row := r.db.QueryRow(ctx, `SELECT `+membershipColumns+` FROM tenant_memberships WHERE account_id = $1 AND tenant_id = $2`, accountID, tenantID)
	m, err := scanMembership(row)
	if err != nil {
		return domain.TenantMembership{}, fmt.Errorf("get membership: %w", err)
	}
	return m, nil
}

const insertMembershipSQL = `INSERT INTO tenant_memberships (account_id, tenant_id, role, active)
VALUES ($1, $2, $3, true)
RETURNING ` + membershipColumns

func (r *PostgresMembershipRepo) Create(ctx context.Context, membership domain.TenantMembership) (domain.TenantMembership, error) {
	row := r.db.QueryRow(ctx, insertMembershipSQL, membership.AccountID, membership.TenantID, membership.Role)
	created, err := scanMembership(row)
	if err != nil {
		return domain.TenantMembership{}, fmt.Errorf("create membership: %w", err)
	}
	return created, nil
}

func (r *PostgresMembershipRepo) Deactivate(ctx context.Context, accountID, tenantID int64) error {
	_, err := r.db.Exec(ctx, `UPDATE tenant_memberships SET active = false, updated_at = now() WHERE account_id = $1 AND tenant_id = $2`, accountID, tenantID)
	if err != nil {
		return fmt.Errorf("deactivate membership: %w", err)
	}
	return nil
}

// PostgresTenantRepo implements TenantRepository.
type PostgresTenantRepo struct {
	db *pgxpool.Pool
}

func NewPostgresTenantRepo(db *pgxpool.Pool) *PostgresTenantRepo {
	return &PostgresTenantRepo{db: db}
}

const tenantColumns = `id, name, slug, status, created_at, updated_at`

func (r *PostgresTenantRepo) GetBySlug(ctx context.Context, slug string) (domain.Tenant, error) {
	row := r.db.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE slug = $1`, slug)
	t, err := scanTenant(row)
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("get tenant by slug: %w", err)
	}
	return t, nil
}

func (r *PostgresTenantRepo) GetByID(ctx context.Context, id int64) (domain.Tenant, error) {
	row := r.db.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	t, err := scanTenant(row)
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("get tenant by id: %w", err)
	}
	return t, nil
}

func scanAccount(row pgx.Row) (domain.Account, error) {
	var a domain.Account
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.PasswordHash,
		&a.PlatformRole,
		&a.Active,
		&a.MustChangePassword,
		&a.FailedAttempts,
		&a.LockedUntil,
		&a.LastLoginAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, err
}

func scanMembership(row pgx.Row) (domain.TenantMembership, error) {
	var m domain.TenantMembership
	err := row.Scan(
		&m.ID,
		&m.AccountID,
		&m.TenantID,
		&m.Role,
		&m.Active,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	return m, err
}

func scanTenant(row pgx.Row) (domain.Tenant, error) {
	var t domain.Tenant
	err := row.Scan(
		&t.ID,
		&t.Name,
		&t.Slug,
		&t.Status,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	return t, err
}
