package avatars

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/movieclub/backend/internal/apperr"
	"github.com/movieclub/backend/internal/groups"
	"github.com/movieclub/backend/internal/middleware"
	"github.com/movieclub/backend/pkg/response"
	"github.com/movieclub/backend/pkg/storage"
)

// Handler serves the group avatar endpoints.
type Handler struct {
	avatars *Manager
	members groups.MembershipChecker
	logger  *zap.Logger
}

// NewHandler creates an avatar handler.
func NewHandler(avatars *Manager, members groups.MembershipChecker, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{avatars: avatars, members: members, logger: logger}
}

// UploadURLRequest is the body for POST /groups/:id/avatar/upload-url.
type UploadURLRequest struct {
	Filename    string `json:"filename" binding:"required,max=255"`
	ContentType string `json:"contentType" binding:"max=100"`
	FileSize    int64  `json:"fileSize" binding:"required,gt=0"`
}

// RegisterRoutes mounts the avatar routes on an authenticated router group.
func (h *Handler) RegisterRoutes(api gin.IRoutes) {
	moderator := groups.RequireGroupModerator(h.members)
	api.POST("/groups/:id/avatar/upload-url", moderator, h.UploadURL)
	api.PUT("/groups/:id/avatar", moderator, h.Upload)
}

// UploadURL handles POST /groups/:id/avatar/upload-url. The client PUTs the
// image to the returned URL, then sets publicUrl as the group's avatarUrl.
func (h *Handler) UploadURL(c *gin.Context) {
	if !h.avatars.Enabled() {
		response.ServiceUnavailable(c, ErrStorageDisabled.Error())
		return
	}
	groupID, ok := groups.GroupIDParam(c)
	if !ok {
		response.BadRequest(c, "invalid group id")
		return
	}
	var req UploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.FileSize > storage.MaxAvatarFileSize {
		response.BadRequest(c, "file size exceeds 5MB limit")
		return
	}
	contentType, ok := storage.ValidateAvatarFileType(req.ContentType, req.Filename)
	if !ok {
		response.BadRequest(c, "invalid file type: only jpg, png, webp and gif images allowed")
		return
	}
	u, err := h.avatars.PresignUpload(c.Request.Context(), groupID, contentType)
	if err != nil {
		h.logger.Error("presign avatar upload", zap.Int64("group_id", groupID), zap.Error(err))
		response.Internal(c, "failed to prepare avatar upload")
		return
	}
	response.OK(c, u)
}

// Upload handles PUT /groups/:id/avatar with a multipart "file" field.
func (h *Handler) Upload(c *gin.Context) {
	if !h.avatars.Enabled() {
		response.ServiceUnavailable(c, ErrStorageDisabled.Error())
		return
	}
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	groupID, ok := groups.GroupIDParam(c)
	if !ok {
		response.BadRequest(c, "invalid group id")
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "missing file (form field: file)")
		return
	}
	if file.Size > storage.MaxAvatarFileSize {
		response.BadRequest(c, "file size exceeds 5MB limit")
		return
	}
	contentType, ok := storage.ValidateAvatarFileType(file.Header.Get("Content-Type"), file.Filename)
	if !ok {
		response.BadRequest(c, "invalid file type: only jpg, png, webp and gif images allowed")
		return
	}
	rc, err := file.Open()
	if err != nil {
		h.logger.Error("open uploaded avatar", zap.Error(err))
		response.Internal(c, "failed to read file")
		return
	}
	defer rc.Close()

	g, err := h.avatars.Replace(c.Request.Context(), groupID, userID, contentType, rc, file.Size)
	if err != nil {
		if _, ok := apperr.As(err); ok {
			response.Error(c, err)
			return
		}
		if errors.Is(err, ErrStorageDisabled) {
			response.ServiceUnavailable(c, err.Error())
			return
		}
		h.logger.Error("upload avatar", zap.Int64("group_id", groupID), zap.Error(err))
		response.Internal(c, "failed to upload avatar")
		return
	}
	response.OK(c, g)
}
