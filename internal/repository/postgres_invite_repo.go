package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/playnet/internal/model"
)

// PostgresInviteRepo はPostgreSQLを使用した招待リポジトリ。
type PostgresInviteRepo struct {
	db *sql.DB
}

// NewPostgresInviteRepo はPostgresInviteRepoを生成する。
func NewPostgresInviteRepo(db *sql.DB) *PostgresInviteRepo {
	return &PostgresInviteRepo{db: db}
}

const inviteColumns = `i.id, i.community_id, i.email, i.invited_by, i.invited_user_id, i.status, i.created_at, i.updated_at`

func scanInvite(row interface{ Scan(...any) error }, extra ...any) (*model.Invite, error) {
	inv := &model.Invite{}
	var status string
	var invitedUserID sql.NullInt64
	dest := []any{&inv.ID, &inv.CommunityID, &inv.Email, &inv.InvitedBy, &invitedUserID, &status, &inv.CreatedAt, &inv.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	inv.Status = model.InviteStatus(status)
	if invitedUserID.Valid {
		id := invitedUserID.Int64
		inv.InvitedUserID = &id
	}
	return inv, nil
}

// Upsert は (community_id, email) をキーに招待を作成し、既存の場合はpendingに戻す。
// 招待先メールアドレスが登録済みユーザーのものであればinvited_user_idを紐付ける。
func (r *PostgresInviteRepo) Upsert(ctx context.Context, invite *model.Invite) error {
	var invitedUserID sql.NullInt64
	var status string
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO community_invites (community_id, email, invited_by, invited_user_id, status)
		 VALUES ($1, lower($2), $3, (SELECT id FROM users WHERE lower(email) = lower($2)), 'pending')
		 ON CONFLICT (community_id, email) DO UPDATE
		 SET status = 'pending',
		     invited_by = EXCLUDED.invited_by,
		     invited_user_id = EXCLUDED.invited_user_id,
		     updated_at = now()
		 RETURNING id, email, invited_user_id, status, created_at, updated_at`,
		invite.CommunityID, invite.Email, invite.InvitedBy,
	).Scan(&invite.ID, &invite.Email, &invitedUserID, &status, &invite.CreatedAt, &invite.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert invite: %w", err)
	}
	invite.Status = model.InviteStatus(status)
	invite.InvitedUserID = nil
	if invitedUserID.Valid {
		id := invitedUserID.Int64
		invite.InvitedUserID = &id
	}
	return nil
}

// FindByID は指定IDの招待を取得する。見つからない場合はnilを返す。
func (r *PostgresInviteRepo) FindByID(ctx context.Context, id int64) (*model.Invite, error) {
	inv, err := scanInvite(r.db.QueryRowContext(ctx,
		`SELECT `+inviteColumns+` FROM community_invites i WHERE i.id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find invite: %w", err)
	}
	return inv, nil
}

// FindPending はコミュニティとメールアドレスに対する保留中の招待を取得する。見つからない場合はnilを返す。
func (r *PostgresInviteRepo) FindPending(ctx context.Context, communityID int64, email string) (*model.Invite, error) {
	inv, err := scanInvite(r.db.QueryRowContext(ctx,
		`SELECT `+inviteColumns+`
		 FROM community_invites i
		 WHERE i.community_id = $1 AND i.email = lower($2) AND i.status = 'pending'`,
		communityID, email,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending invite: %w", err)
	}
	return inv, nil
}

// ListByCommunity はコミュニティの招待を新しい順に取得する。
func (r *PostgresInviteRepo) ListByCommunity(ctx context.Context, communityID int64) ([]model.Invite, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+inviteColumns+`
		 FROM community_invites i
		 WHERE i.community_id = $1
		 ORDER BY i.updated_at DESC, i.id DESC`,
		communityID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	defer rows.Close()

	var invites []model.Invite
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invite: %w", err)
		}
		invites = append(invites, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invites: %w", err)
	}
	return invites, nil
}

// ListPendingByEmail はメールアドレス宛の保留中の招待をコミュニティ名付きで取得する。
func (r *PostgresInviteRepo) ListPendingByEmail(ctx context.Context, email string) ([]model.InviteDetail, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+inviteColumns+`, c.name
		 FROM community_invites i
		 JOIN communities c ON c.id = i.community_id
		 WHERE i.email = lower($1) AND i.status = 'pending'
		 ORDER BY i.updated_at DESC, i.id DESC`,
		email,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending invites: %w", err)
	}
	defer rows.Close()

	var invites []model.InviteDetail
	for rows.Next() {
		var d model.InviteDetail
		inv, err := scanInvite(rows, &d.CommunityName)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invite: %w", err)
		}
		d.Invite = *inv
		invites = append(invites, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invites: %w", err)
	}
	return invites, nil
}

// Accept は招待の承諾とメンバーシップの承認を同一トランザクションで行う。
// 既存行がBAN済みの場合はUPSERTが行を返さないため、ErrMemberBannedでロールバックする。
// 既存のロールと承認情報は維持する。
func (r *PostgresInviteRepo) Accept(ctx context.Context, invite *model.Invite, userID int64) (*model.Membership, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	m := &model.Membership{CommunityID: invite.CommunityID, UserID: userID}
	var role, status string
	var approvedBy sql.NullInt64
	var approvedAt sql.NullTime
	err = tx.QueryRowContext(ctx,
		`INSERT INTO community_members (community_id, user_id, role, status, approved_by, approved_at)
		 VALUES ($1, $2, 'member', 'approved', $3, now())
		 ON CONFLICT (community_id, user_id) DO UPDATE
		 SET status = 'approved',
		     approved_by = CASE WHEN community_members.status = 'approved'
		                        THEN community_members.approved_by ELSE EXCLUDED.approved_by END,
		     approved_at = CASE WHEN community_members.status = 'approved'
		                        THEN community_members.approved_at ELSE EXCLUDED.approved_at END
		 WHERE community_members.status <> 'banned'
		 RETURNING id, role, status, approved_by, approved_at, created_at`,
		invite.CommunityID, userID, invite.InvitedBy,
	).Scan(&m.ID, &role, &status, &approvedBy, &approvedAt, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrMemberBanned
	}
	if err != nil {
		return nil, fmt.Errorf("failed to upsert membership: %w", err)
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

	_, err = tx.ExecContext(ctx,
		`UPDATE community_invites
		 SET status = 'accepted', invited_user_id = $2, updated_at = now()
		 WHERE id = $1`,
		invite.ID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to accept invite: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	invite.Status = model.InviteStatusAccepted
	invite.InvitedUserID = &userID
	return m, nil
}

// Decline は保留中の招待を辞退済みにする。
func (r *PostgresInviteRepo) Decline(ctx context.Context, inviteID int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE community_invites
		 SET status = 'declined', updated_at = now()
		 WHERE id = $1 AND status = 'pending'`,
		inviteID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to decline invite: %w", err)
	}
	return rowsAffected(result)
}

// compile-time interface check
var _ InviteRepository = (*PostgresInviteRepo)(nil)
