package handler

import (
	"time"

	"github.com/hitoshi/playnet/internal/model"
)

// userResponse はユーザー情報のAPIレスポンス。パスワードハッシュは含めない。
type userResponse struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Role           string    `json:"role"`
	AvatarURL      string    `json:"avatar_url"`
	Interests      []string  `json:"interests"`
	Location       string    `json:"location"`
	Bio            string    `json:"bio"`
	Language       string    `json:"language"`
	Timezone       string    `json:"timezone"`
	PrivacyProfile string    `json:"privacy_profile"`
	PrivacyContact string    `json:"privacy_contact"`
	HasPassword    bool      `json:"has_password"`
	CreatedAt      time.Time `json:"created_at"`
}

func toUserResponse(u *model.User) *userResponse {
	if u == nil {
		return nil
	}
	interests := u.Profile.Interests
	if interests == nil {
		interests = []string{}
	}
	return &userResponse{
		ID:             u.ID,
		Name:           u.Name,
		Email:          u.Email,
		Role:           string(u.Role),
		AvatarURL:      u.Profile.AvatarURL,
		Interests:      interests,
		Location:       u.Profile.Location,
		Bio:            u.Profile.Bio,
		Language:       u.Profile.Language,
		Timezone:       u.Profile.Timezone,
		PrivacyProfile: u.Profile.PrivacyProfile,
		PrivacyContact: u.Profile.PrivacyContact,
		HasPassword:    u.HasPassword(),
		CreatedAt:      u.CreatedAt,
	}
}

// communityResponse はコミュニティ情報のAPIレスポンス。viewer_* は閲覧者ごとの値。
type communityResponse struct {
	ID             int64     `json:"id"`
	CreatorID      int64     `json:"creator_id"`
	CreatorName    string    `json:"creator_name"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Sport          string    `json:"sport"`
	Region         string    `json:"region"`
	ImageURL       string    `json:"image_url"`
	Visibility     string    `json:"visibility"`
	MaxMembers     *int      `json:"max_members"`
	MemberCount    int       `json:"member_count"`
	ViewerStatus   *string   `json:"viewer_status"`
	ViewerRole     *string   `json:"viewer_role"`
	ViewerInviteID *int64    `json:"viewer_invite_id"`
	CreatedAt      time.Time `json:"created_at"`
}

func toCommunityResponse(c *model.CommunitySummary) communityResponse {
	resp := communityResponse{
		ID:             c.ID,
		CreatorID:      c.CreatorID,
		CreatorName:    c.CreatorName,
		Name:           c.Name,
		Description:    c.Description,
		Sport:          c.Sport,
		Region:         c.Region,
		ImageURL:       c.ImageURL,
		Visibility:     string(c.Visibility),
		MaxMembers:     c.MaxMembers,
		MemberCount:    c.MemberCount,
		ViewerInviteID: c.ViewerInviteID,
		CreatedAt:      c.CreatedAt,
	}
	if c.ViewerStatus != "" {
		status := string(c.ViewerStatus)
		resp.ViewerStatus = &status
	}
	if c.ViewerRole != "" {
		role := string(c.ViewerRole)
		resp.ViewerRole = &role
	}
	return resp
}

// membershipResponse はメンバーシップ状態のAPIレスポンス。
type membershipResponse struct {
	CommunityID int64      `json:"community_id"`
	UserID      int64      `json:"user_id"`
	Role        string     `json:"role"`
	Status      string     `json:"status"`
	ApprovedBy  *int64     `json:"approved_by"`
	ApprovedAt  *time.Time `json:"approved_at"`
}

func toMembershipResponse(m *model.Membership) membershipResponse {
	return membershipResponse{
		CommunityID: m.CommunityID,
		UserID:      m.UserID,
		Role:        string(m.Role),
		Status:      string(m.Status),
		ApprovedBy:  m.ApprovedBy,
		ApprovedAt:  m.ApprovedAt,
	}
}

// memberResponse はメンバー一覧・参加申請一覧の要素。
type memberResponse struct {
	membershipResponse
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
}

func toMemberResponses(members []model.MemberDetail) []memberResponse {
	resp := make([]memberResponse, len(members))
	for i := range members {
		m := &members[i]
		resp[i] = memberResponse{
			membershipResponse: toMembershipResponse(&m.Membership),
			Name:               m.UserName,
			Email:              m.UserEmail,
			AvatarURL:          m.AvatarURL,
			CreatedAt:          m.CreatedAt,
		}
	}
	return resp
}

// inviteResponse は招待のAPIレスポンス。community_nameは受信者向け一覧でのみ設定される。
type inviteResponse struct {
	ID            int64     `json:"id"`
	CommunityID   int64     `json:"community_id"`
	CommunityName string    `json:"community_name,omitempty"`
	Email         string    `json:"email"`
	InvitedBy     int64     `json:"invited_by"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

func toInviteResponse(inv *model.Invite) inviteResponse {
	return inviteResponse{
		ID:          inv.ID,
		CommunityID: inv.CommunityID,
		Email:       inv.Email,
		InvitedBy:   inv.InvitedBy,
		Status:      string(inv.Status),
		CreatedAt:   inv.CreatedAt,
	}
}

func toInviteResponses(invites []model.Invite) []inviteResponse {
	resp := make([]inviteResponse, len(invites))
	for i := range invites {
		resp[i] = toInviteResponse(&invites[i])
	}
	return resp
}

func toInviteDetailResponses(invites []model.InviteDetail) []inviteResponse {
	resp := make([]inviteResponse, len(invites))
	for i := range invites {
		resp[i] = toInviteResponse(&invites[i].Invite)
		resp[i].CommunityName = invites[i].CommunityName
	}
	return resp
}

// messageResponse はチャットメッセージのAPIレスポンス。
type messageResponse struct {
	ID          int64     `json:"id"`
	CommunityID int64     `json:"community_id"`
	UserID      int64     `json:"user_id"`
	UserName    string    `json:"user_name"`
	UserAvatar  string    `json:"user_avatar"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"created_at"`
}

func toMessageResponse(m *model.Message) messageResponse {
	return messageResponse{
		ID:          m.ID,
		CommunityID: m.CommunityID,
		UserID:      m.UserID,
		UserName:    m.UserName,
		UserAvatar:  m.UserAvatar,
		Message:     m.Body,
		CreatedAt:   m.CreatedAt,
	}
}
