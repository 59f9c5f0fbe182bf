package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ayush/fitness-ai/backend/internal/models"
	"github.com/ayush/fitness-ai/backend/internal/store"
)

// MaxAvatarBytes bounds a profile image upload.
const MaxAvatarBytes = 5 << 20

const maxPasswordBytes = 72

// UserStore defines the interface for user persistence.
type UserStore interface {
	CreateUser(ctx context.Context, username, email, hashedPw string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	SetProfileImage(ctx context.Context, id, url string) error
}

// AvatarStore defines the interface for profile image objects.
type AvatarStore interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, string, error)
	Remove(ctx context.Context, key string) error
}

type registerInput struct {
	Username string `validate:"required,min=3,max=50,alphanum"`
	Email    string `validate:"required,email,max=255"`
	Password string `validate:"required,min=8,max=72"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Handler holds auth-related HTTP handlers.
type Handler struct {
	users    UserStore
	sessions *SessionStore
	avatars  AvatarStore
	log      *zap.Logger
}

// NewHandler wires the handlers. avatars may be nil, in which case the
// avatar routes answer 503.
func NewHandler(users UserStore, sessions *SessionStore, avatars AvatarStore, log *zap.Logger) *Handler {
	return &Handler{users: users, sessions: sessions, avatars: avatars, log: log}
}

// Register creates a new user.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	in := registerInput{Username: req.Username, Email: req.Email, Password: req.Password}
	if err := validate.Struct(in); err != nil {
		writeError(w, http.StatusBadRequest, describeValidation(err))
		return
	}
	// validator counts runes; bcrypt only takes 72 bytes.
	if len(req.Password) > maxPasswordBytes {
		writeError(w, http.StatusBadRequest, "invalid password")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		writeError(w, http.StatusBadRequest, "invalid password")
		return
	}
	if err != nil {
		h.log.Error("hash password", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	user, err := h.users.CreateUser(r.Context(), req.Username, req.Email, string(hashed))
	if err != nil {
		h.log.Info("register failed", zap.String("username", req.Username), zap.Error(err))
		writeError(w, http.StatusConflict, "user already exists or database error")
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// Login authenticates a user and creates a session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.users.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			h.log.Error("login lookup", zap.Error(err))
		}
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	sid, err := h.sessions.Create(r.Context(), user.ID)
	if err != nil {
		h.log.Error("create session", zap.String("user_id", user.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "session creation failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(SessionTTL / time.Second),
	})

	writeJSON(w, http.StatusOK, user)
}

// Logout destroys the current session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		if err := h.sessions.Delete(r.Context(), cookie.Value); err != nil {
			h.log.Warn("delete session", zap.Error(err))
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// Me returns the currently authenticated user.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	user, err := h.users.GetUserByID(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// UploadAvatar stores the request body as the caller's profile image.
func (h *Handler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	if h.avatars == nil {
		writeError(w, http.StatusServiceUnavailable, "avatars are not enabled")
		return
	}
	userID := UserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxAvatarBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "image too large")
		return
	}
	contentType := http.DetectContentType(data)
	if len(data) == 0 || !strings.HasPrefix(contentType, "image/") {
		writeError(w, http.StatusUnsupportedMediaType, "body must be an image")
		return
	}

	key := AvatarKey(userID)
	if err := h.avatars.Upload(r.Context(), key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		h.log.Error("avatar upload", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}
	if err := h.users.SetProfileImage(r.Context(), userID, AvatarURL(userID)); err != nil {
		h.log.Error("set profile image", zap.String("user_id", userID), zap.Error(err))
		if rmErr := h.avatars.Remove(r.Context(), key); rmErr != nil {
			h.log.Warn("avatar cleanup", zap.String("key", key), zap.Error(rmErr))
		}
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"profileImageUrl": AvatarURL(userID)})
}

// Avatar streams a user's profile image.
func (h *Handler) Avatar(w http.ResponseWriter, r *http.Request) {
	if h.avatars == nil {
		writeError(w, http.StatusServiceUnavailable, "avatars are not enabled")
		return
	}
	userID := chi.URLParam(r, "id")

	obj, contentType, err := h.avatars.Download(r.Context(), AvatarKey(userID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "avatar not found")
			return
		}
		h.log.Error("avatar download", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "download failed")
		return
	}
	defer obj.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=300")
	if _, err := io.Copy(w, obj); err != nil {
		h.log.Warn("avatar stream", zap.String("user_id", userID), zap.Error(err))
	}
}

// AvatarKey is the object key of a user's profile image.
func AvatarKey(userID string) string { return "avatars/" + userID }

// AvatarURL is the public path that serves a user's profile image.
func AvatarURL(userID string) string { return "/api/users/" + userID + "/avatar" }

func describeValidation(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return "invalid request body"
	}
	names := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		names = append(names, strings.ToLower(fe.Field()))
	}
	return "invalid " + strings.Join(names, ", ")
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
