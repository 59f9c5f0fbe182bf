package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ayush/fitness-ai/backend/internal/models"
	"github.com/ayush/fitness-ai/backend/internal/store"
)

// Mock user store for testing
type memUserStore struct {
	mu    sync.Mutex
	users map[string]*models.User
	next  int
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: map[string]*models.User{}}
}

func (m *memUserStore) CreateUser(_ context.Context, username, email, hashed string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email || u.Username == username {
			return nil, errors.New("duplicate key")
		}
	}
	m.next++
	u := &models.User{ID: fmt.Sprintf("user-%d", m.next), Username: username, Email: email, Password: hashed, CreatedAt: time.Now()}
	m.users[u.ID] = u
	return u, nil
}

func (m *memUserStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memUserStore) GetUserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUserStore) SetProfileImage(_ context.Context, id, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.ProfileImageURL = url
	return nil
}

type memAvatarStore struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemAvatarStore() *memAvatarStore {
	return &memAvatarStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memAvatarStore) Upload(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func (m *memAvatarStore) Download(_ context.Context, key string) (io.ReadCloser, string, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, "", store.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), m.types[key], nil
}

func (m *memAvatarStore) Remove(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

// 1x1 transparent PNG
var pngPixel = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89,
}

type testEnv struct {
	users    *memUserStore
	avatars  *memAvatarStore
	sessions *SessionStore
	mr       *miniredis.Miniredis
	router   http.Handler
}

func newTestEnv(t *testing.T, withAvatars bool) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	env := &testEnv{users: newMemUserStore(), sessions: NewSessionStore(rdb), mr: mr}
	var avatars AvatarStore
	if withAvatars {
		env.avatars = newMemAvatarStore()
		avatars = env.avatars
	}
	h := NewHandler(env.users, env.sessions, avatars, zap.NewNop())

	withSession := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c, err := r.Cookie(SessionCookie); err == nil {
				if id, _ := env.sessions.Get(r.Context(), c.Value); id != "" {
					r = r.WithContext(WithUserID(r.Context(), id))
				}
			}
			next.ServeHTTP(w, r)
		})
	}

	r := chi.NewRouter()
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)
	r.With(withSession).Get("/me", h.Me)
	r.With(withSession).Put("/me/avatar", h.UploadAvatar)
	r.Get("/users/{id}/avatar", h.Avatar)
	env.router = r
	return env
}

func (e *testEnv) do(method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", SessionCookie)
	return nil
}

func TestHandler_RegisterLoginMeLogout(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(http.MethodPost, "/register", `{"username":"lifter","email":"lifter@example.com","password":"correct-horse"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "correct-horse")

	stored, err := env.users.GetUserByEmail(context.Background(), "lifter@example.com")
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("correct-horse")))

	rec = env.do(http.MethodPost, "/login", `{"email":"lifter@example.com","password":"correct-horse"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(t, rec)
	assert.True(t, cookie.HttpOnly)

	rec = env.do(http.MethodGet, "/me", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"lifter"`)

	rec = env.do(http.MethodPost, "/logout", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, env.mr.Exists("session:"+cookie.Value))

	rec = env.do(http.MethodGet, "/me", "", cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_RegisterValidation(t *testing.T) {
	env := newTestEnv(t, false)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed", `{`, "invalid request body"},
		{"short password", `{"username":"lifter","email":"l@example.com","password":"short"}`, "password"},
		{"bad email", `{"username":"lifter","email":"nope","password":"long-enough"}`, "email"},
		{"bad username", `{"username":"a b","email":"l@example.com","password":"long-enough"}`, "username"},
		{"password over 72 bytes", `{"username":"lifter","email":"l@example.com","password":"` + strings.Repeat("é", 40) + `"}`, "invalid password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/register", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestHandler_RegisterMultibytePasswordWithinLimit(t *testing.T) {
	env := newTestEnv(t, false)
	password := strings.Repeat("é", 36)

	rec := env.do(http.MethodPost, "/register", `{"username":"lifter","email":"lifter@example.com","password":"`+password+`"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(http.MethodPost, "/login", `{"email":"lifter@example.com","password":"`+password+`"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_RegisterDuplicate(t *testing.T) {
	env := newTestEnv(t, false)
	body := `{"username":"lifter","email":"lifter@example.com","password":"correct-horse"}`

	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/register", body, nil).Code)
	assert.Equal(t, http.StatusConflict, env.do(http.MethodPost, "/register", body, nil).Code)
}

func TestHandler_LoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t, false)
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/register",
		`{"username":"lifter","email":"lifter@example.com","password":"correct-horse"}`, nil).Code)

	rec := env.do(http.MethodPost, "/login", `{"email":"lifter@example.com","password":"wrong-horse"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = env.do(http.MethodPost, "/login", `{"email":"ghost@example.com","password":"correct-horse"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestHandler_Avatar(t *testing.T) {
	env := newTestEnv(t, true)
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/register",
		`{"username":"lifter","email":"lifter@example.com","password":"correct-horse"}`, nil).Code)
	cookie := sessionCookie(t, env.do(http.MethodPost, "/login", `{"email":"lifter@example.com","password":"correct-horse"}`, nil))

	rec := env.do(http.MethodPut, "/me/avatar", string(pngPixel), cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), AvatarURL("user-1"))

	u, err := env.users.GetUserByID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "/api/users/user-1/avatar", u.ProfileImageURL)

	rec = env.do(http.MethodGet, "/users/user-1/avatar", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, pngPixel, rec.Body.Bytes())

	rec = env.do(http.MethodGet, "/users/user-9/avatar", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_AvatarRejectsNonImages(t *testing.T) {
	env := newTestEnv(t, true)
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/register",
		`{"username":"lifter","email":"lifter@example.com","password":"correct-horse"}`, nil).Code)
	cookie := sessionCookie(t, env.do(http.MethodPost, "/login", `{"email":"lifter@example.com","password":"correct-horse"}`, nil))

	rec := env.do(http.MethodPut, "/me/avatar", "just some text", cookie)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = env.do(http.MethodPut, "/me/avatar", strings.Repeat("a", MaxAvatarBytes+1), cookie)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, env.avatars.objects)
}

func TestHandler_AvatarDisabled(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(http.MethodGet, "/users/user-1/avatar", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
