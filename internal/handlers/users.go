package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/BradenHooton/tasktrack/internal/models"
	"github.com/BradenHooton/tasktrack/internal/services"
	pkghttp "github.com/BradenHooton/tasktrack/pkg/http"
	"github.com/go-chi/chi/v5"
)

// UserService defines the interface for profile and credential operations
type UserService interface {
	GetUserByID(ctx context.Context, id string) (*models.PublicUser, error)
	UpdateProfile(ctx context.Context, id string, update services.ProfileUpdate) (*models.PublicUser, error)
	ChangePassword(ctx context.Context, id, currentPassword, newPassword string) error
	Deactivate(ctx context.Context, id string) error
}

// UserHandler handles user-related HTTP requests. Ownership is enforced by
// the middleware passed to RegisterRoutes, not by the handler.
type UserHandler struct {
	service UserService
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(service UserService) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// Request DTOs

// UpdateProfileRequest represents the request body for a profile change
type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name" validate:"omitempty,min=2,max=50,displayname"`
	AvatarURL   *string `json:"avatar_url" validate:"omitempty,avatarurl"`
}

func (r *UpdateProfileRequest) normalize() {
	if r.AvatarURL != nil {
		trimmed := strings.TrimSpace(*r.AvatarURL)
		r.AvatarURL = &trimmed
	}
}

// ChangePasswordRequest represents the request body for a credential change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required,max=1024"`
	NewPassword     string `json:"new_password" validate:"required"`
}

// RegisterRoutes registers all user routes with the chi router. owns is applied
// to every route and must check that the caller owns {id}.
func (h *UserHandler) RegisterRoutes(router chi.Router, owns func(http.Handler) http.Handler) {
	router.Route("/users/{id}", func(r chi.Router) {
		r.Use(owns)
		r.Get("/", h.GetUser)                // GET /users/{id}
		r.Patch("/", h.UpdateProfile)        // PATCH /users/{id}
		r.Put("/password", h.ChangePassword) // PUT /users/{id}/password
		r.Delete("/", h.DeactivateUser)      // DELETE /users/{id}
	})
}

// GetUser retrieves a user by ID
//
// @Summary Get user by ID
// @Param id path string true "User ID"
// @Produce json
// @Success 200 {object} models.PublicUser
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /users/{id} [get]
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUserByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, user)
}

// UpdateProfile changes display name and avatar
//
// @Summary Update profile
// @Param id path string true "User ID"
// @Accept json
// @Param request body UpdateProfileRequest true "Profile changes"
// @Produce json
// @Success 200 {object} models.PublicUser
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /users/{id} [patch]
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), chi.URLParam(r, "id"), services.ProfileUpdate{
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, user)
}

// ChangePassword replaces the caller's credential
//
// @Summary Change password
// @Param id path string true "User ID"
// @Accept json
// @Param request body ChangePasswordRequest true "Current and new password"
// @Success 204
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /users/{id}/password [put]
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.ChangePassword(r.Context(), chi.URLParam(r, "id"), req.CurrentPassword, req.NewPassword); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeactivateUser soft-deletes a user
//
// @Summary Deactivate user
// @Param id path string true "User ID"
// @Success 204
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /users/{id} [delete]
func (h *UserHandler) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Deactivate(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
