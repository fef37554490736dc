package model

import "time"

// Visibility はコミュニティの公開範囲。
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
	VisibilityInvite  Visibility = "invite"
)

// Valid は公開範囲が定義済みの値かどうかを返す。
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityPrivate, VisibilityInvite:
		return true
	}
	return false
}

// MemberRole はコミュニティ内のロール。
type MemberRole string

const (
	MemberRoleOwner  MemberRole = "owner"
	MemberRoleAdmin  MemberRole = "admin"
	MemberRoleMember MemberRole = "member"
)

// MemberStatus はメンバーシップの状態。
// 行が存在しない状態（none）はnilのMembershipで表す。
type MemberStatus string

const (
	MemberStatusPending  MemberStatus = "pending"
	MemberStatusApproved MemberStatus = "approved"
	MemberStatusBanned   MemberStatus = "banned"
)

// InviteStatus は招待の状態。
type InviteStatus string

const (
	InviteStatusPending  InviteStatus = "pending"
	InviteStatusAccepted InviteStatus = "accepted"
	InviteStatusDeclined InviteStatus = "declined"
)

// Community はコミュニティを表す。
// CreatorIDのユーザーがオーナーであり、作成後に変更されない。
type Community struct {
	ID          int64
	CreatorID   int64
	Name        string
	Description string
	Sport       string
	Region      string
	ImageURL    string
	Visibility  Visibility
	MaxMembers  *int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CommunitySummary は一覧・詳細表示用に集計値と閲覧者の状態を付与したコミュニティ。
type CommunitySummary struct {
	Community
	CreatorName    string
	MemberCount    int
	ViewerStatus   MemberStatus // 閲覧者のメンバーシップ状態。行がなければ空
	ViewerRole     MemberRole
	ViewerInviteID *int64 // 閲覧者宛の保留中招待
}

// Membership はコミュニティとユーザーの関係を表す。
// (CommunityID, UserID) の組は一意。
type Membership struct {
	ID          int64
	CommunityID int64
	UserID      int64
	Role        MemberRole
	Status      MemberStatus
	ApprovedBy  *int64
	ApprovedAt  *time.Time
	CreatedAt   time.Time
}

// IsApproved は承認済みメンバーかどうかを返す。nil安全。
func (m *Membership) IsApproved() bool {
	return m != nil && m.Status == MemberStatusApproved
}

// MemberDetail はメンバー一覧表示用にユーザー情報を付与したメンバーシップ。
type MemberDetail struct {
	Membership
	UserName  string
	UserEmail string
	AvatarURL string
}

// Invite はメールアドレス宛のコミュニティ招待を表す。
// (CommunityID, Email) の組は一意で、再招待はstatusをpendingに戻す。
type Invite struct {
	ID            int64
	CommunityID   int64
	Email         string
	InvitedBy     int64
	InvitedUserID *int64
	Status        InviteStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// InviteDetail は招待一覧表示用にコミュニティ名を付与した招待。
type InviteDetail struct {
	Invite
	CommunityName string
}

// Message はコミュニティチャットのメッセージを表す。
type Message struct {
	ID          int64
	CommunityID int64
	UserID      int64
	UserName    string
	UserAvatar  string
	Body        string
	CreatedAt   time.Time
}
