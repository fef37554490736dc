package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/playnet/internal/model"
)

// PostgresMembershipRepo はPostgreSQLを使用したメンバーシップリポジトリ。
type PostgresMembershipRepo struct {
	db *sql.DB
}

// NewPostgresMembershipRepo はPostgresMembershipRepoを生成する。
func NewPostgresMembershipRepo(db *sql.DB) *PostgresMembershipRepo {
	return &PostgresMembershipRepo{db: db}
}

const membershipColumns = `m.id, m.community_id, m.user_id, m.role, m.status, m.approved_by, m.approved_at, m.created_at`

func scanMembership(row interface{ Scan(...any) error }, extra ...any) (*model.Membership, error) {
	m := &model.Membership{}
	var role, status string
	var approvedBy sql.NullInt64
	var approvedAt sql.NullTime
	dest := []any{&m.ID, &m.CommunityID, &m.UserID, &role, &status, &approvedBy, &approvedAt, &m.CreatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	m.Role = model.MemberRole(role)
	m.Status = model.MemberStatus(status)
	if approvedBy.Valid {
		id := approvedBy.Int64
		m.ApprovedBy = &id
	}
	if approvedAt.Valid {
		at := approvedAt.Time
		m.ApprovedAt = &at
	}
	return m, nil
}

// Find は指定コミュニティ・ユーザーのメンバーシップを取得する。見つからない場合はnilを返す。
func (r *PostgresMembershipRepo) Find(ctx context.Context, communityID, userID int64) (*model.Membership, error) {
	m, err := scanMembership(r.db.QueryRowContext(ctx,
		`SELECT `+membershipColumns+`
		 FROM community_members m
		 WHERE m.community_id = $1 AND m.user_id = $2`,
		communityID, userID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find membership: %w", err)
	}
	return m, nil
}

// CountApproved は承認済みメンバー数を返す。
func (r *PostgresMembershipRepo) CountApproved(ctx context.Context, communityID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM community_members WHERE community_id = $1 AND status = 'approved'`,
		communityID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count approved members: %w", err)
	}
	return count, nil
}

// InsertIfAbsent は行が存在しない場合のみメンバーシップを作成する。
// 同時に参加した場合でも一意制約により1行に収束し、負けた側はfalseを受け取る。
func (r *PostgresMembershipRepo) InsertIfAbsent(ctx context.Context, m *model.Membership) (bool, error) {
	var approvedBy any
	if m.ApprovedBy != nil {
		approvedBy = *m.ApprovedBy
	}
	var approvedAt any
	if m.ApprovedAt != nil {
		approvedAt = *m.ApprovedAt
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO community_members (community_id, user_id, role, status, approved_by, approved_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (community_id, user_id) DO NOTHING
		 RETURNING id, created_at`,
		m.CommunityID, m.UserID, string(m.Role), string(m.Status), approvedBy, approvedAt,
	).Scan(&m.ID, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert membership: %w", err)
	}
	return true, nil
}

// ApprovePending は保留中の参加申請を承認する。
func (r *PostgresMembershipRepo) ApprovePending(ctx context.Context, communityID, userID, approverID int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE community_members
		 SET status = 'approved', approved_by = $3, approved_at = now()
		 WHERE community_id = $1 AND user_id = $2 AND status = 'pending'`,
		communityID, userID, approverID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to approve membership: %w", err)
	}
	return rowsAffected(result)
}

// DeletePending は保留中の参加申請を削除する。
func (r *PostgresMembershipRepo) DeletePending(ctx context.Context, communityID, userID int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM community_members
		 WHERE community_id = $1 AND user_id = $2 AND status = 'pending'`,
		communityID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to reject membership: %w", err)
	}
	return rowsAffected(result)
}

// UpdateRole は承認済みの非ownerメンバーのロールを変更する。
func (r *PostgresMembershipRepo) UpdateRole(ctx context.Context, communityID, userID int64, role model.MemberRole) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE community_members
		 SET role = $3
		 WHERE community_id = $1 AND user_id = $2 AND role <> 'owner' AND status = 'approved'`,
		communityID, userID, string(role),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update member role: %w", err)
	}
	return rowsAffected(result)
}

// DeleteNonOwner は非ownerのメンバーシップ行を削除する。キックと退会で使う。
// BAN済みの行は再参加を防ぐために残す。
func (r *PostgresMembershipRepo) DeleteNonOwner(ctx context.Context, communityID, userID int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM community_members
		 WHERE community_id = $1 AND user_id = $2 AND role <> 'owner' AND status <> 'banned'`,
		communityID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete membership: %w", err)
	}
	return rowsAffected(result)
}

// Ban は対象をrole=member, status=bannedにUPSERTする。
// 挿入側はコミュニティ作成者を、更新側はowner行を除外するため、
// 呼び出し元の検証を経由しなくてもオーナーがBANされることはない。
func (r *PostgresMembershipRepo) Ban(ctx context.Context, communityID, userID int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO community_members (community_id, user_id, role, status)
		 SELECT $1::bigint, $2::bigint, 'member', 'banned'
		 WHERE NOT EXISTS (
		     SELECT 1 FROM communities WHERE id = $1::bigint AND creator_id = $2::bigint
		 )
		 ON CONFLICT (community_id, user_id) DO UPDATE
		 SET role = 'member', status = 'banned', approved_by = NULL, approved_at = NULL
		 WHERE community_members.role <> 'owner'`,
		communityID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to ban member: %w", err)
	}
	return rowsAffected(result)
}

// ListByStatus は指定状態のメンバーをユーザー情報付きで取得する。
func (r *PostgresMembershipRepo) ListByStatus(ctx context.Context, communityID int64, status model.MemberStatus) ([]model.MemberDetail, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+membershipColumns+`, u.name, u.email, COALESCE(u.avatar_url, '')
		 FROM community_members m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.community_id = $1 AND m.status = $2
		 ORDER BY m.created_at ASC, m.id ASC`,
		communityID, string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []model.MemberDetail
	for rows.Next() {
		var d model.MemberDetail
		m, err := scanMembership(rows, &d.UserName, &d.UserEmail, &d.AvatarURL)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		d.Membership = *m
		members = append(members, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}
	return members, nil
}

// compile-time interface check
var _ MembershipRepository = (*PostgresMembershipRepo)(nil)
