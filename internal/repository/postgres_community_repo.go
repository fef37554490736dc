package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/playnet/internal/model"
)

// PostgresCommunityRepo はPostgreSQLを使用したコミュニティリポジトリ。
type PostgresCommunityRepo struct {
	db *sql.DB
}

// NewPostgresCommunityRepo はPostgresCommunityRepoを生成する。
func NewPostgresCommunityRepo(db *sql.DB) *PostgresCommunityRepo {
	return &PostgresCommunityRepo{db: db}
}

const communityColumns = `c.id, c.creator_id, c.name, COALESCE(c.description, ''), COALESCE(c.sport, ''),
	COALESCE(c.region, ''), COALESCE(c.image_url, ''), c.visibility, c.max_members, c.created_at, c.updated_at`

func scanCommunity(row interface{ Scan(...any) error }, extra ...any) (*model.Community, error) {
	c := &model.Community{}
	var visibility string
	var maxMembers sql.NullInt64
	dest := []any{
		&c.ID, &c.CreatorID, &c.Name, &c.Description, &c.Sport,
		&c.Region, &c.ImageURL, &visibility, &maxMembers, &c.CreatedAt, &c.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	c.Visibility = model.Visibility(visibility)
	if maxMembers.Valid {
		n := int(maxMembers.Int64)
		c.MaxMembers = &n
	}
	return c, nil
}

// FindByID は指定IDのコミュニティを取得する。見つからない場合はnilを返す。
func (r *PostgresCommunityRepo) FindByID(ctx context.Context, id int64) (*model.Community, error) {
	c, err := scanCommunity(r.db.QueryRowContext(ctx,
		`SELECT `+communityColumns+` FROM communities c WHERE c.id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find community: %w", err)
	}
	return c, nil
}

// CreateWithOwner はコミュニティと作成者のowner行を同一トランザクションで作成する。
// 作成者は常に承認済みのオーナーとして登録される。
func (r *PostgresCommunityRepo) CreateWithOwner(ctx context.Context, community *model.Community) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx,
		`INSERT INTO communities (creator_id, name, description, sport, region, image_url, visibility, max_members)
		 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $8)
		 RETURNING id, created_at, updated_at`,
		community.CreatorID, community.Name, community.Description, community.Sport,
		community.Region, community.ImageURL, string(community.Visibility), nullableInt(community.MaxMembers),
	).Scan(&community.ID, &community.CreatedAt, &community.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert community: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO community_members (community_id, user_id, role, status, approved_by, approved_at)
		 VALUES ($1, $2, 'owner', 'approved', $2, now())`,
		community.ID, community.CreatorID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Update はコミュニティの編集可能項目を更新する。作成者は変更しない。
func (r *PostgresCommunityRepo) Update(ctx context.Context, community *model.Community) error {
	err := r.db.QueryRowContext(ctx,
		`UPDATE communities
		 SET name = $2, description = NULLIF($3, ''), sport = NULLIF($4, ''), region = NULLIF($5, ''),
		     image_url = NULLIF($6, ''), visibility = $7, max_members = $8, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		community.ID, community.Name, community.Description, community.Sport, community.Region,
		community.ImageURL, string(community.Visibility), nullableInt(community.MaxMembers),
	).Scan(&community.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("community not found: %d", community.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update community: %w", err)
	}
	return nil
}

// summarySelect は閲覧者の状態を付与するSELECT句。$1=閲覧者ID, $2=閲覧者メールアドレス。
const summarySelect = `SELECT ` + communityColumns + `,
	u.name,
	(SELECT COUNT(*) FROM community_members cm WHERE cm.community_id = c.id AND cm.status = 'approved'),
	COALESCE((SELECT cm.status FROM community_members cm WHERE cm.community_id = c.id AND cm.user_id = $1), ''),
	COALESCE((SELECT cm.role FROM community_members cm WHERE cm.community_id = c.id AND cm.user_id = $1), ''),
	(SELECT ci.id FROM community_invites ci
	  WHERE ci.community_id = c.id AND ci.email = lower($2) AND ci.status = 'pending' LIMIT 1)
	FROM communities c
	JOIN users u ON u.id = c.creator_id`

func scanSummary(row interface{ Scan(...any) error }) (*model.CommunitySummary, error) {
	s := &model.CommunitySummary{}
	var status, role string
	var inviteID sql.NullInt64
	c, err := scanCommunity(row, &s.CreatorName, &s.MemberCount, &status, &role, &inviteID)
	if err != nil {
		return nil, err
	}
	s.Community = *c
	s.ViewerStatus = model.MemberStatus(status)
	s.ViewerRole = model.MemberRole(role)
	if inviteID.Valid {
		id := inviteID.Int64
		s.ViewerInviteID = &id
	}
	return s, nil
}

// FindSummary は閲覧者の状態を付与したコミュニティを取得する。見つからない場合はnilを返す。
func (r *PostgresCommunityRepo) FindSummary(ctx context.Context, id int64, viewer Viewer) (*model.CommunitySummary, error) {
	s, err := scanSummary(r.db.QueryRowContext(ctx,
		summarySelect+` WHERE c.id = $3`,
		viewer.UserID, viewer.Email, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find community summary: %w", err)
	}
	return s, nil
}

// ListSummaries は作成日時の新しい順にコミュニティを取得する。
func (r *PostgresCommunityRepo) ListSummaries(ctx context.Context, viewer Viewer, limit int) ([]model.CommunitySummary, error) {
	rows, err := r.db.QueryContext(ctx,
		summarySelect+` ORDER BY c.created_at DESC, c.id DESC LIMIT $3`,
		viewer.UserID, viewer.Email, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list communities: %w", err)
	}
	defer rows.Close()

	var summaries []model.CommunitySummary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan community: %w", err)
		}
		summaries = append(summaries, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate communities: %w", err)
	}
	return summaries, nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

// compile-time interface check
var _ CommunityRepository = (*PostgresCommunityRepo)(nil)
