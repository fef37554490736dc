package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/hitoshi/playnet/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, email, name, COALESCE(password_hash, ''), role,
	COALESCE(avatar_url, ''), interests, COALESCE(location, ''), COALESCE(bio, ''),
	COALESCE(language, ''), COALESCE(timezone, ''), privacy_profile, privacy_contact,
	created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	user := &model.User{}
	var role string
	err := row.Scan(
		&user.ID, &user.Email, &user.Name, &user.PasswordHash, &role,
		&user.Profile.AvatarURL, pq.Array(&user.Profile.Interests), &user.Profile.Location, &user.Profile.Bio,
		&user.Profile.Language, &user.Profile.Timezone, &user.Profile.PrivacyProfile, &user.Profile.PrivacyContact,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Role = model.GlobalRole(role)
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	return user, nil
}

// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`,
		strings.TrimSpace(email),
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}

	return user, nil
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	if err := insertUser(ctx, r.db, user); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
func (r *PostgresUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// ユーザーを作成
	if err := insertUser(ctx, tx, user); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	// identityを作成
	identity.UserID = user.ID
	err = tx.QueryRowContext(ctx,
		`INSERT INTO identities (user_id, provider, provider_user_id)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		identity.UserID, identity.Provider, identity.ProviderUserID,
	).Scan(&identity.ID, &identity.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert identity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertUser(ctx context.Context, q queryRower, user *model.User) error {
	if user.Role == "" {
		user.Role = model.GlobalRoleUser
	}
	return q.QueryRowContext(ctx,
		`INSERT INTO users (email, name, password_hash, role, avatar_url)
		 VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''))
		 RETURNING id, privacy_profile, privacy_contact, created_at, updated_at`,
		user.Email, user.Name, user.PasswordHash, string(user.Role), user.Profile.AvatarURL,
	).Scan(&user.ID, &user.Profile.PrivacyProfile, &user.Profile.PrivacyContact, &user.CreatedAt, &user.UpdatedAt)
}

// UpdateProfile は名前・メールアドレス・プロフィール項目を更新する。
func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, user *model.User) error {
	p := user.Profile
	interests := p.Interests
	if interests == nil {
		interests = []string{}
	}
	err := r.db.QueryRowContext(ctx,
		`UPDATE users
		 SET name = $2, email = $3, avatar_url = NULLIF($4, ''), interests = $5,
		     location = NULLIF($6, ''), bio = NULLIF($7, ''), language = NULLIF($8, ''),
		     timezone = NULLIF($9, ''), privacy_profile = $10, privacy_contact = $11,
		     updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		user.ID, user.Name, user.Email, p.AvatarURL, pq.Array(interests),
		p.Location, p.Bio, p.Language, p.Timezone, p.PrivacyProfile, p.PrivacyContact,
	).Scan(&user.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err == sql.ErrNoRows {
		return fmt.Errorf("user not found: %d", user.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update user profile: %w", err)
	}
	return nil
}

// UpdatePasswordHash はパスワードハッシュを更新する。
func (r *PostgresUserRepo) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`,
		id, hash,
	)
	if err != nil {
		return fmt.Errorf("failed to update password hash: %w", err)
	}
	return nil
}

// UpdateRole はグローバルロールを更新する。
func (r *PostgresUserRepo) UpdateRole(ctx context.Context, id int64, role model.GlobalRole) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET role = $2, updated_at = now() WHERE id = $1`,
		id, string(role),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update user role: %w", err)
	}
	return rowsAffected(result)
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
