// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/hitoshi/playnet/internal/model"
)

var (
	// ErrDuplicateEmail はメールアドレスの一意制約に違反した場合に返される。
	ErrDuplicateEmail = errors.New("email already exists")

	// ErrResetConsumed はリセット要求が既に使用済み、または期限切れで消費できない場合に返される。
	ErrResetConsumed = errors.New("password reset already consumed")

	// ErrMemberBanned は対象ユーザーがBAN済みのため状態遷移できない場合に返される。
	ErrMemberBanned = errors.New("member is banned")
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByEmail はメールアドレス（大文字小文字を区別しない）でユーザーを取得する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成し、採番されたIDとタイムスタンプを設定する。
	// メールアドレスが重複する場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// UpdateProfile は名前・メールアドレス・プロフィール項目を更新する。
	// メールアドレスが重複する場合はErrDuplicateEmailを返す。
	UpdateProfile(ctx context.Context, user *model.User) error

	// UpdatePasswordHash はパスワードハッシュを更新する。
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error

	// UpdateRole はグローバルロールを更新する。対象が存在しない場合はfalseを返す。
	UpdateRole(ctx context.Context, id int64, role model.GlobalRole) (bool, error)
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)

	// Create は既存ユーザーにidentityを紐付ける。既に紐付いている場合は何もしない。
	Create(ctx context.Context, identity *model.Identity) error
}

// PasswordResetRepository はパスワードリセット要求の永続化インターフェース。
type PasswordResetRepository interface {
	// Create はリセット要求を保存する。
	Create(ctx context.Context, reset *model.PasswordReset) error

	// FindByTokenHash はトークンハッシュでリセット要求を取得する。見つからない場合はnilを返す。
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.PasswordReset, error)

	// Consume はリセット要求の使用済み化とパスワード更新を同一トランザクションで行う。
	// 未使用かつ有効期限内の行が更新できなかった場合はErrResetConsumedを返す。
	Consume(ctx context.Context, reset *model.PasswordReset, passwordHash string) error
}

// CommunityRepository はコミュニティの永続化インターフェース。
type CommunityRepository interface {
	// FindByID は指定IDのコミュニティを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Community, error)

	// CreateWithOwner はコミュニティと作成者のowner行を同一トランザクションで作成する。
	CreateWithOwner(ctx context.Context, community *model.Community) error

	// Update はコミュニティの編集可能項目を更新する。
	Update(ctx context.Context, community *model.Community) error

	// FindSummary は閲覧者の状態を付与したコミュニティを取得する。
	// viewerがゼロ値の場合は匿名として扱う。見つからない場合はnilを返す。
	FindSummary(ctx context.Context, id int64, viewer Viewer) (*model.CommunitySummary, error)

	// ListSummaries は作成日時の新しい順にコミュニティを取得する。
	ListSummaries(ctx context.Context, viewer Viewer, limit int) ([]model.CommunitySummary, error)
}

// Viewer は一覧・詳細の閲覧者。匿名の場合はゼロ値。
type Viewer struct {
	UserID int64
	Email  string
}

// MembershipRepository はメンバーシップの永続化インターフェース。
// 状態遷移は (community_id, user_id) の一意制約とWHERE句のガードで整合性を保つ。
type MembershipRepository interface {
	// Find は指定コミュニティ・ユーザーのメンバーシップを取得する。見つからない場合はnilを返す。
	Find(ctx context.Context, communityID, userID int64) (*model.Membership, error)

	// CountApproved は承認済みメンバー数を返す。
	CountApproved(ctx context.Context, communityID int64) (int, error)

	// InsertIfAbsent は行が存在しない場合のみメンバーシップを作成する。
	// 競合により挿入されなかった場合はfalseを返す。
	InsertIfAbsent(ctx context.Context, membership *model.Membership) (bool, error)

	// ApprovePending は保留中の参加申請を承認する。保留中でなければ何もしない。
	ApprovePending(ctx context.Context, communityID, userID, approverID int64) (bool, error)

	// DeletePending は保留中の参加申請を削除する。保留中でなければ何もしない。
	DeletePending(ctx context.Context, communityID, userID int64) (bool, error)

	// UpdateRole は承認済みの非ownerメンバーのロールを変更する。
	UpdateRole(ctx context.Context, communityID, userID int64, role model.MemberRole) (bool, error)

	// DeleteNonOwner は非owner・非BANのメンバーシップ行を削除する。
	DeleteNonOwner(ctx context.Context, communityID, userID int64) (bool, error)

	// Ban は対象をrole=member, status=bannedにUPSERTする。
	// 対象がオーナーの場合は挿入・更新のいずれも行わずfalseを返す。
	Ban(ctx context.Context, communityID, userID int64) (bool, error)

	// ListByStatus は指定状態のメンバーをユーザー情報付きで取得する。
	ListByStatus(ctx context.Context, communityID int64, status model.MemberStatus) ([]model.MemberDetail, error)
}

// InviteRepository は招待の永続化インターフェース。
type InviteRepository interface {
	// Upsert は (community_id, email) をキーに招待を作成し、既存の場合はpendingに戻す。
	Upsert(ctx context.Context, invite *model.Invite) error

	// FindByID は指定IDの招待を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Invite, error)

	// FindPending はコミュニティとメールアドレスに対する保留中の招待を取得する。
	FindPending(ctx context.Context, communityID int64, email string) (*model.Invite, error)

	// ListByCommunity はコミュニティの招待を新しい順に取得する。
	ListByCommunity(ctx context.Context, communityID int64) ([]model.Invite, error)

	// ListPendingByEmail はメールアドレス宛の保留中の招待をコミュニティ名付きで取得する。
	ListPendingByEmail(ctx context.Context, email string) ([]model.InviteDetail, error)

	// Accept は招待の承諾とメンバーシップの承認を同一トランザクションで行う。
	// 対象ユーザーがBAN済みの場合はErrMemberBannedを返し、何も変更しない。
	Accept(ctx context.Context, invite *model.Invite, userID int64) (*model.Membership, error)

	// Decline は保留中の招待を辞退済みにする。
	Decline(ctx context.Context, inviteID int64) (bool, error)
}

// MessageRepository はコミュニティチャットの永続化インターフェース。
type MessageRepository interface {
	// ListRecent は最新のlimit件を古い順に並べて返す。
	ListRecent(ctx context.Context, communityID int64, limit int) ([]model.Message, error)

	// Create はメッセージを保存し、投稿者情報を付与して返す。
	Create(ctx context.Context, message *model.Message) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
