package handlers

import (
	"context"
	"log"
	"net/http"

	"github.com/ruralpay/collections/internal/middleware"
	"github.com/ruralpay/collections/internal/services"
)

type Authenticator interface {
	Login(ctx context.Context, email, password string) (*services.LoginResult, error)
	Logout(ctx context.Context, tokenID string) error
}

type AuthHandler struct {
	service   Authenticator
	validator *services.ValidationHelper
}

func NewAuthHandler(service Authenticator) *AuthHandler {
	return &AuthHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// LoginRequest represents the login request payload
// @Description Login request structure
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email" example:"agent@example.com"`
	Password string `json:"password" validate:"required,min=6" example:"password123"`
}

// Login handles user authentication
// @Summary Login user
// @Description Authenticate with email and password. Users of a company without an active subscription are refused.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} Envelope{data=services.LoginResult}
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse "Invalid credentials"
// @Failure 402 {object} services.ErrorResponse "No valid subscription"
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	var req LoginRequest
	if !decode(w, r, h.validator, &req) {
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

// Logout handles user logout
// @Summary Logout user
// @Description Revoke the presented token
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Envelope
// @Failure 401 {object} services.ErrorResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	if err := h.service.Logout(r.Context(), claims.TokenID); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}
