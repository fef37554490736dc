package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hitoshi/playnet/internal/community"
	"github.com/hitoshi/playnet/internal/middleware"
	"github.com/hitoshi/playnet/internal/model"
)

// CommunityServiceInterface はコミュニティハンドラーが必要とするサービスインターフェース。
type CommunityServiceInterface interface {
	Create(ctx context.Context, principal *model.User, d community.Draft) (*model.CommunitySummary, error)
	Get(ctx context.Context, viewer *model.User, communityID int64) (*model.CommunitySummary, error)
	List(ctx context.Context, viewer *model.User, limit int) ([]model.CommunitySummary, error)
	Update(ctx context.Context, actor *model.User, communityID int64, p community.Patch) (*model.CommunitySummary, error)
	Messages(ctx context.Context, viewer *model.User, communityID int64) ([]model.Message, error)
	PostMessage(ctx context.Context, principal *model.User, communityID int64, body string) (*model.Message, error)
}

// CommunityHandler はコミュニティとチャットのHTTPハンドラー。
type CommunityHandler struct {
	service CommunityServiceInterface
}

// NewCommunityHandler はCommunityHandlerを生成する。
func NewCommunityHandler(service CommunityServiceInterface) *CommunityHandler {
	return &CommunityHandler{service: service}
}

// List はコミュニティ一覧を返す。?limit= で件数を指定できる（上限あり）。
// GET /api/communities
func (h *CommunityHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			middleware.WriteAPIError(w, model.NewValidationError("limit must be an integer"))
			return
		}
		limit = n
	}

	summaries, err := h.service.List(r.Context(), middleware.UserFromContext(r.Context()), limit)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]communityResponse, len(summaries))
	for i := range summaries {
		resp[i] = toCommunityResponse(&summaries[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get はコミュニティ詳細を返す。
// GET /api/communities/{id}
func (h *CommunityHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	summary, err := h.service.Get(r.Context(), middleware.UserFromContext(r.Context()), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toCommunityResponse(summary))
}

// Create はコミュニティを作成する。作成者はオーナーとして登録される。
// POST /api/communities
func (h *CommunityHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req communityRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	maxMembers := req.MaxMembers
	if maxMembers != nil && *maxMembers <= 0 {
		maxMembers = nil
	}

	summary, err := h.service.Create(r.Context(), middleware.UserFromContext(r.Context()), community.Draft{
		Name:        req.Name,
		Description: req.Description,
		Sport:       req.Sport,
		Region:      req.Region,
		ImageURL:    req.ImageURL,
		Visibility:  model.Visibility(req.Visibility),
		MaxMembers:  maxMembers,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toCommunityResponse(summary))
}

// Update はコミュニティを部分更新する。
// PATCH /api/communities/{id}
func (h *CommunityHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req communityPatchRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	patch := community.Patch{
		Name:        req.Name,
		MaxMembers:  req.MaxMembers,
		Description: req.Description,
		Sport:       req.Sport,
		Region:      req.Region,
		ImageURL:    req.ImageURL,
	}
	if req.Visibility != nil {
		v := model.Visibility(*req.Visibility)
		patch.Visibility = &v
	}

	summary, err := h.service.Update(r.Context(), middleware.UserFromContext(r.Context()), id, patch)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toCommunityResponse(summary))
}

// Messages はチャット履歴を古い順に返す。
// GET /api/communities/{id}/messages
func (h *CommunityHandler) Messages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	messages, err := h.service.Messages(r.Context(), middleware.UserFromContext(r.Context()), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]messageResponse, len(messages))
	for i := range messages {
		resp[i] = toMessageResponse(&messages[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

// PostMessage はチャットに投稿する。
// POST /api/communities/{id}/messages
func (h *CommunityHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req messageRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	msg, err := h.service.PostMessage(r.Context(), middleware.UserFromContext(r.Context()), id, req.Message)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toMessageResponse(msg))
}
