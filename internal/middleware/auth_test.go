package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ayush/fitness-ai/backend/internal/auth"
)

type failingSessions struct{}

func (failingSessions) Get(context.Context, string) (string, error) {
	return "", errors.New("redis: connection refused")
}

func newSessions(t *testing.T) *auth.SessionStore {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return auth.NewSessionStore(rdb)
}

// echoUser writes the user id the middleware placed in the context.
var echoUser = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("user=" + auth.UserID(r.Context())))
})

func serve(h http.Handler, sid string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if sid != "" {
		req.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: sid})
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequireAuth(t *testing.T) {
	sessions := newSessions(t)
	sid, err := sessions.Create(context.Background(), "user-42")
	require.NoError(t, err)
	h := RequireAuth(sessions)(echoUser)

	rec := serve(h, sid)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user=user-42", rec.Body.String())

	rec = serve(h, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "not authenticated")

	rec = serve(h, "stale-session")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "session expired")

	rec = serve(RequireAuth(failingSessions{})(echoUser), sid)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "session lookup failed")
}

func TestOptionalAuth(t *testing.T) {
	sessions := newSessions(t)
	sid, err := sessions.Create(context.Background(), "user-42")
	require.NoError(t, err)
	h := OptionalAuth(sessions)(echoUser)

	assert.Equal(t, "user=user-42", serve(h, sid).Body.String())
	assert.Equal(t, "user=", serve(h, "").Body.String())
	assert.Equal(t, "user=", serve(h, "stale-session").Body.String())
}

func TestOptionalAuthRecordsStoreFailure(t *testing.T) {
	var sessionErr error
	h := OptionalAuth(failingSessions{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionErr = auth.SessionError(r.Context())
		echoUser(w, r)
	}))

	rec := serve(h, "some-session")
	assert.Equal(t, "user=", rec.Body.String())
	require.Error(t, sessionErr)
	assert.Contains(t, sessionErr.Error(), "connection refused")

	sessionErr = nil
	serve(h, "")
	assert.NoError(t, sessionErr, "no cookie means no lookup")
}

func TestOptionalAuthStoreDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	sessions := auth.NewSessionStore(rdb)
	sid, err := sessions.Create(context.Background(), "user-42")
	require.NoError(t, err)
	mr.Close()

	var sessionErr error
	h := OptionalAuth(sessions)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionErr = auth.SessionError(r.Context())
		echoUser(w, r)
	}))
	assert.Equal(t, "user=", serve(h, sid).Body.String())
	assert.Error(t, sessionErr)

	assert.Equal(t, http.StatusInternalServerError, serve(RequireAuth(sessions)(echoUser), sid).Code)
}

func TestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := Logger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	rec := serve(h, "")
	assert.Equal(t, http.StatusTeapot, rec.Code)

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, int64(http.StatusTeapot), fields["status"])
	assert.Equal(t, int64(len("short and stout")), fields["bytes"])
}
