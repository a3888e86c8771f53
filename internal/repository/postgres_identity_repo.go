package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ojeomneo/identitycore/internal/model"
)

// DefaultOperationTimeout は1回のDB操作に許容する最大時間。
const DefaultOperationTimeout = 10 * time.Second

const identityColumns = `id, email, login_method, username, password, social_id,
	first_name, last_name, is_active, is_staff, is_superuser,
	last_login, date_joined, created_at, updated_at, deleted_at`

// PostgresIdentityRepo はPostgreSQLを使用したidentityリポジトリ。
type PostgresIdentityRepo struct {
	db      *sql.DB
	timeout time.Duration
}

// NewPostgresIdentityRepo はPostgresIdentityRepoを生成する。
// timeoutが0以下の場合はDefaultOperationTimeoutを使う。
func NewPostgresIdentityRepo(db *sql.DB, timeout time.Duration) *PostgresIdentityRepo {
	if timeout <= 0 {
		timeout = DefaultOperationTimeout
	}
	return &PostgresIdentityRepo{db: db, timeout: timeout}
}

// FindByID は指定IDのidentityを取得する。見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByID(ctx context.Context, id int64, vis Visibility) (*model.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM users WHERE id = $1`+visibilityClause(vis),
		id,
	)
	identity, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("failed to find identity by ID", err)
	}
	return identity, nil
}

// FindByEmailAndLoginMethod はemailとlogin_methodでidentityをid昇順に取得する。
func (r *PostgresIdentityRepo) FindByEmailAndLoginMethod(ctx context.Context, email string, method model.LoginMethod, vis Visibility) ([]*model.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+identityColumns+` FROM users
		 WHERE email = $1 AND login_method = $2`+visibilityClause(vis)+`
		 ORDER BY id ASC`,
		email, string(method),
	)
	if err != nil {
		return nil, storeError("failed to find identities by email", err)
	}
	defer rows.Close()

	var identities []*model.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, storeError("failed to scan identity", err)
		}
		identities = append(identities, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("failed to iterate identities", err)
	}

	return identities, nil
}

// FindByUsername はusernameでidentityを検索する。見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByUsername(ctx context.Context, username string, vis Visibility) (*model.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM users WHERE username = $1`+visibilityClause(vis),
		username,
	)
	identity, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("failed to find identity by username", err)
	}
	return identity, nil
}

// Create はidentityを同一トランザクション内で1行挿入する。
// コンテキストがキャンセルされた場合はロールバックされ、中途半端な行は残らない。
func (r *PostgresIdentityRepo) Create(ctx context.Context, identity *model.Identity) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	now := time.Now()
	err = tx.QueryRowContext(ctx,
		`INSERT INTO users (email, login_method, username, password, social_id,
			first_name, last_name, is_active, is_staff, is_superuser,
			date_joined, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11, $11)
		 RETURNING id, date_joined, created_at, updated_at`,
		identity.Email, string(identity.LoginMethod), identity.Username, identity.Password, identity.SocialID,
		identity.FirstName, identity.LastName, identity.IsActive, identity.IsStaff, identity.IsSuperuser,
		now,
	).Scan(&identity.ID, &identity.DateJoined, &identity.CreatedAt, &identity.UpdatedAt)
	if err != nil {
		if uerr := classifyUniqueViolation(err); uerr != nil {
			return uerr
		}
		return storeError("failed to insert identity", err)
	}

	if err := tx.Commit(); err != nil {
		return storeError("failed to commit transaction", err)
	}

	return nil
}

// UpdateLastLogin はlast_login列のみを更新する。
func (r *PostgresIdentityRepo) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	return r.execTargeted(ctx, "last_login",
		`UPDATE users SET last_login = $2 WHERE id = $1`,
		id, at,
	)
}

// UpdatePassword はpassword列のみを更新する。
func (r *PostgresIdentityRepo) UpdatePassword(ctx context.Context, id int64, encoded string) error {
	return r.execTargeted(ctx, "password",
		`UPDATE users SET password = $2, updated_at = $3 WHERE id = $1`,
		id, encoded, time.Now(),
	)
}

// CompareAndSwapPassword は現在値がoldと一致する場合のみpassword列を更新する。
func (r *PostgresIdentityRepo) CompareAndSwapPassword(ctx context.Context, id int64, old, encoded string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET password = $3, updated_at = $4 WHERE id = $1 AND password = $2`,
		id, old, encoded, time.Now(),
	)
	if err != nil {
		return false, storeError("failed to swap password", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, storeError("failed to get rows affected", err)
	}
	return n == 1, nil
}

func (r *PostgresIdentityRepo) execTargeted(ctx context.Context, column, query string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return storeError("failed to update "+column, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return storeError("failed to get rows affected", err)
	}
	return requireAffected(n, args[0])
}

// requireAffected は対象行がなかった場合にmodel.ErrIdentityNotFoundを返す。
func requireAffected(n int64, id any) error {
	if n == 0 {
		return fmt.Errorf("%w: id=%v", model.ErrIdentityNotFound, id)
	}
	return nil
}

func visibilityClause(vis Visibility) string {
	if vis == IncludeDeleted {
		return ""
	}
	return ` AND deleted_at IS NULL`
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(s rowScanner) (*model.Identity, error) {
	var (
		identity  model.Identity
		method    string
		lastLogin sql.NullTime
		deletedAt sql.NullTime
	)
	err := s.Scan(
		&identity.ID, &identity.Email, &method, &identity.Username, &identity.Password, &identity.SocialID,
		&identity.FirstName, &identity.LastName, &identity.IsActive, &identity.IsStaff, &identity.IsSuperuser,
		&lastLogin, &identity.DateJoined, &identity.CreatedAt, &identity.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	identity.LoginMethod = model.LoginMethod(method)
	if lastLogin.Valid {
		t := lastLogin.Time
		identity.LastLogin = &t
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		identity.DeletedAt = &t
	}
	return &identity, nil
}

// storeError はドライバエラーをErrConnectivityとして分類してラップする。
func storeError(msg string, err error) error {
	return fmt.Errorf("%s: %w: %w", msg, model.ErrConnectivity, err)
}

// compile-time interface check
var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
