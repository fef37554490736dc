package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/playnet/internal/model"
)

// PostgresMessageRepo はPostgreSQLを使用したチャットメッセージリポジトリ。
type PostgresMessageRepo struct {
	db *sql.DB
}

// NewPostgresMessageRepo はPostgresMessageRepoを生成する。
func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

// ListRecent は最新のlimit件を古い順に並べて返す。
func (r *PostgresMessageRepo) ListRecent(ctx context.Context, communityID int64, limit int) ([]model.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, community_id, user_id, user_name, user_avatar, body, created_at
		 FROM (
		     SELECT m.id, m.community_id, m.user_id, u.name AS user_name,
		            COALESCE(u.avatar_url, '') AS user_avatar, m.body, m.created_at
		     FROM community_messages m
		     JOIN users u ON u.id = m.user_id
		     WHERE m.community_id = $1
		     ORDER BY m.created_at DESC, m.id DESC
		     LIMIT $2
		 ) recent
		 ORDER BY created_at ASC, id ASC`,
		communityID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.CommunityID, &m.UserID, &m.UserName, &m.UserAvatar, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}

// Create はメッセージを保存し、投稿者情報を付与する。
func (r *PostgresMessageRepo) Create(ctx context.Context, message *model.Message) error {
	err := r.db.QueryRowContext(ctx,
		`WITH inserted AS (
		     INSERT INTO community_messages (community_id, user_id, body)
		     VALUES ($1, $2, $3)
		     RETURNING id, user_id, created_at
		 )
		 SELECT inserted.id, inserted.created_at, u.name, COALESCE(u.avatar_url, '')
		 FROM inserted
		 JOIN users u ON u.id = inserted.user_id`,
		message.CommunityID, message.UserID, message.Body,
	).Scan(&message.ID, &message.CreatedAt, &message.UserName, &message.UserAvatar)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// compile-time interface check
var _ MessageRepository = (*PostgresMessageRepo)(nil)
