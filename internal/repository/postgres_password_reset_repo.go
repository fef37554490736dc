package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/playnet/internal/model"
)

// PostgresPasswordResetRepo はPostgreSQLを使用したパスワードリセットリポジトリ。
type PostgresPasswordResetRepo struct {
	db *sql.DB
}

// NewPostgresPasswordResetRepo はPostgresPasswordResetRepoを生成する。
func NewPostgresPasswordResetRepo(db *sql.DB) *PostgresPasswordResetRepo {
	return &PostgresPasswordResetRepo{db: db}
}

// Create はリセット要求を保存する。
func (r *PostgresPasswordResetRepo) Create(ctx context.Context, reset *model.PasswordReset) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO password_resets (user_id, token_hash, expires_at)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		reset.UserID, reset.TokenHash, reset.ExpiresAt,
	).Scan(&reset.ID, &reset.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert password reset: %w", err)
	}
	return nil
}

// FindByTokenHash はトークンハッシュでリセット要求を取得する。見つからない場合はnilを返す。
func (r *PostgresPasswordResetRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.PasswordReset, error) {
	reset := &model.PasswordReset{}
	var usedAt sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, expires_at, used_at, created_at
		 FROM password_resets
		 WHERE token_hash = $1`,
		tokenHash,
	).Scan(&reset.ID, &reset.UserID, &reset.TokenHash, &reset.ExpiresAt, &usedAt, &reset.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find password reset: %w", err)
	}
	if usedAt.Valid {
		reset.UsedAt = &usedAt.Time
	}

	return reset, nil
}

// Consume はリセット要求を使用済みにし、パスワードハッシュを更新する。
// used_at IS NULL のガードにより、同じトークンで並行して完了処理が走っても
// パスワードが更新されるのは1回だけになる。
func (r *PostgresPasswordResetRepo) Consume(ctx context.Context, reset *model.PasswordReset, passwordHash string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE password_resets
		 SET used_at = now()
		 WHERE id = $1 AND used_at IS NULL AND expires_at > now()`,
		reset.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark password reset used: %w", err)
	}
	ok, err := rowsAffected(result)
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if !ok {
		return ErrResetConsumed
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`,
		reset.UserID, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("failed to update password hash: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// compile-time interface check
var _ PasswordResetRepository = (*PostgresPasswordResetRepo)(nil)
