package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/pkazancev/task-tracker-api/internal/service"
	"github.com/pkazancev/task-tracker-api/pkg/respond"
)

type AuthHandler struct {
	service  *service.AuthService
	logger   *zap.Logger
	validate *validator.Validate
}

func NewAuthHandler(srv *service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		service:  srv,
		logger:   logger,
		validate: validator.New(),
	}
}

type signupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Signup handles POST /signup: create the user, return it with a token.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, r, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		respond.Error(w, r, http.StatusBadRequest, "validation error: "+err.Error())
		return
	}

	user, token, err := h.service.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			respond.Error(w, r, http.StatusBadRequest, "email already registered")
			return
		}
		h.logger.Error("signup failed", zap.Error(err))
		respond.Error(w, r, http.StatusInternalServerError, "internal server error")
		return
	}

	respond.JSON(w, r, http.StatusOK, map[string]interface{}{
		"response": user,
		"token":    token,
	})
}

// Login handles POST /login: verify credentials, return a token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, r, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		respond.Error(w, r, http.StatusBadRequest, "validation error: "+err.Error())
		return
	}

	token, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			respond.Error(w, r, http.StatusBadRequest, "invalid email or password")
			return
		}
		h.logger.Error("login failed", zap.Error(err))
		respond.Error(w, r, http.StatusInternalServerError, "internal server error")
		return
	}

	respond.JSON(w, r, http.StatusOK, map[string]string{"token": token})
}
