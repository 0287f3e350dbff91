package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gigmarket/backend/internal/models"
	"github.com/gigmarket/backend/internal/respond"
	"github.com/gigmarket/backend/internal/validation"
)

type RegisterRequest struct {
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Role     string   `json:"role"`
	Skills   []string `json:"skills"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

type Handler struct {
	svc       Service
	validator *validation.Validator
	log       *slog.Logger
}

func NewHandler(svc Service, validator *validation.Validator, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, validator: validator, log: log}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	body, err := respond.ReadBody(w, r)
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	var req RegisterRequest
	if err := h.validator.Decode(validation.Register, body, &req); err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	u, err := h.svc.Register(r.Context(), RegisterInput{
		Name: req.Name, Email: req.Email, Password: req.Password, Role: req.Role, Skills: req.Skills,
	})
	if errors.Is(err, ErrDuplicateEmail) {
		respond.Fail(w, http.StatusConflict, "email already registered", "email")
		return
	}
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	h.log.Info("user registered", "user_id", u.ID, "role", u.Role)
	respond.JSON(w, http.StatusCreated, "account created", u)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	body, err := respond.ReadBody(w, r)
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	var req LoginRequest
	if err := h.validator.Decode(validation.Login, body, &req); err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	token, u, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		respond.Fail(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, "logged in", LoginResponse{Token: token, User: u})
}
