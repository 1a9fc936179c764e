package handler

import (
	"net/http"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/api/middleware"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const tokenLifetime = 24 * time.Hour

type AuthHandler struct {
	repo *repository.Repository
	now  func() time.Time
}

func NewAuthHandler(repo *repository.Repository) *AuthHandler {
	return &AuthHandler{repo: repo, now: time.Now}
}

// Login issues a bearer token for an existing user. There are no passwords;
// the deployment fronting this service owns identity.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	uid, err := uuid.Parse(req.UserID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-user-id", "Invalid user_id")
		return
	}

	user, err := h.repo.GetUser(r.Context(), uid)
	if err != nil {
		if repository.IsNoRows(err) {
			RespondError(w, r, http.StatusNotFound, "user/not-found", "User not found")
			return
		}
		zap.L().Error("login lookup failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "user/read-failed", "Failed to read user")
		return
	}

	now := h.now()
	claims := jwt.MapClaims{
		"user_id": uid.String(),
		"sub":     uid.String(),
		"role":    user.Role,
		"iat":     now.Unix(),
		"nbf":     now.Unix(),
		"exp":     now.Add(tokenLifetime).Unix(),
	}
	if iss := middleware.JWTIssuer(); iss != "" {
		claims["iss"] = iss
	}
	if aud := middleware.JWTAudience(); aud != "" {
		claims["aud"] = aud
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(middleware.JWTSecret())
	if err != nil {
		zap.L().Error("sign token failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "auth/token-signing-failed", "Failed to sign token")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"token":      tokenString,
		"expires_at": now.Add(tokenLifetime).UTC(),
	})
}
