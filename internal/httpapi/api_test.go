package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"culturetrail.org/internal/auth"
)

type testEnv struct {
	store   *auth.MemStore
	codec   *auth.Codec
	service *auth.Service
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	codec := testCodec(t)
	store := auth.NewMemStore()
	service, err := auth.NewService(store, codec)
	require.NoError(t, err)
	api := New(Config{
		Auth:    service,
		Codec:   codec,
		Store:   store,
		Version: "test",
	})
	return &testEnv{
		store:   store,
		codec:   codec,
		service: service,
		handler: api.Handler(),
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
	return v
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody[map[string]any](t, rr)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])

	rr = env.do(t, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodGet, "/v1/info", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-Id"))
}

func TestRegisterIssuesTokenPair(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/v1/auth/register", "", credentialsRequest{
		Email: "alice@example.com", Password: "secret1",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	pair := decodeBody[tokenPairResponse](t, rr)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.True(t, pair.AccessExpiresAt.After(time.Now()))
	assert.True(t, pair.RefreshExpiresAt.After(pair.AccessExpiresAt))

	rr = env.do(t, http.MethodGet, "/v1/users/me", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	me := decodeBody[meResponse](t, rr)
	assert.Equal(t, "alice@example.com", me.Email)
	assert.Empty(t, me.Roles)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/v1/auth/register", "", credentialsRequest{
		Email: "not-an-email", Password: "abc",
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	body := decodeBody[map[string]any](t, rr)
	fields, ok := body["fields"].(map[string]any)
	require.True(t, ok, "expected per-field errors: %s", rr.Body.String())
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")

	rr = env.do(t, http.MethodPost, "/v1/auth/register", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodGet, "/v1/auth/register", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	creds := credentialsRequest{Email: "alice@example.com", Password: "secret1"}

	rr := env.do(t, http.MethodPost, "/v1/auth/register", "", creds)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = env.do(t, http.MethodPost, "/v1/auth/register", "", creds)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	body := decodeBody[map[string]any](t, rr)
	assert.Equal(t, "email already registered", body["error"])
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	creds := credentialsRequest{Email: "alice@example.com", Password: "secret1"}

	rr := env.do(t, http.MethodPost, "/v1/auth/register", "", creds)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = env.do(t, http.MethodPost, "/v1/auth/login", "", creds)
	require.Equal(t, http.StatusOK, rr.Code)
	pair := decodeBody[tokenPairResponse](t, rr)
	assert.NotEmpty(t, pair.AccessToken)

	rr = env.do(t, http.MethodPost, "/v1/auth/login", "", credentialsRequest{
		Email: "alice@example.com", Password: "wrong-password",
	})
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	// Unknown account looks exactly like a wrong password.
	rr = env.do(t, http.MethodPost, "/v1/auth/login", "", credentialsRequest{
		Email: "nobody@example.com", Password: "secret1",
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRefreshRotation(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/v1/auth/register", "", credentialsRequest{
		Email: "alice@example.com", Password: "secret1",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	first := decodeBody[tokenPairResponse](t, rr)

	rr = env.do(t, http.MethodPost, "/v1/auth/refreshToken", "", refreshRequest{RefreshToken: first.RefreshToken})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	second := decodeBody[tokenPairResponse](t, rr)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// The spent token is dead even though its signature is still good.
	rr = env.do(t, http.MethodPost, "/v1/auth/refreshToken", "", refreshRequest{RefreshToken: first.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.do(t, http.MethodPost, "/v1/auth/refreshToken", "", refreshRequest{RefreshToken: second.RefreshToken})
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRefreshRejections(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/v1/auth/refreshToken", "", refreshRequest{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodPost, "/v1/auth/refreshToken", "", refreshRequest{RefreshToken: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	// Right secret, never whitelisted.
	forged, _, err := env.codec.SignRefresh("user-1", "unknown-session", 0)
	require.NoError(t, err)
	rr = env.do(t, http.MethodPost, "/v1/auth/refreshToken", "", refreshRequest{RefreshToken: forged})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/v1/auth/register", "", credentialsRequest{
		Email: "alice@example.com", Password: "secret1",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	pair := decodeBody[tokenPairResponse](t, rr)

	rr = env.do(t, http.MethodPost, "/v1/auth/logout", "", refreshRequest{RefreshToken: pair.RefreshToken})
	require.Equal(t, http.StatusNoContent, rr.Code)

	// Idempotent.
	rr = env.do(t, http.MethodPost, "/v1/auth/logout", "", refreshRequest{RefreshToken: pair.RefreshToken})
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = env.do(t, http.MethodPost, "/v1/auth/refreshToken", "", refreshRequest{RefreshToken: pair.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	// The access token is untouched by logout.
	rr = env.do(t, http.MethodGet, "/v1/users/me", pair.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMeRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/v1/users/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("WWW-Authenticate"))

	rr = env.do(t, http.MethodGet, "/v1/users/me", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	expired, _, err := env.codec.SignAccess("user-1", nil, -time.Minute)
	require.NoError(t, err)
	rr = env.do(t, http.MethodGet, "/v1/users/me", expired, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAdminRevokeSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, target, err := env.service.Register(ctx, "bob@example.com", "secret1")
	require.NoError(t, err)
	_, admin, err := env.service.Register(ctx, "root@example.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, env.store.Roles(ctx).Ensure(ctx, []string{"admin"}))
	require.NoError(t, env.store.Roles(ctx).Assign(ctx, admin.ID, "admin"))
	adminPair, _, err := env.service.Login(ctx, "root@example.com", "secret1")
	require.NoError(t, err)

	path := "/v1/admin/users/" + target.ID + "/revoke-sessions"

	rr := env.do(t, http.MethodPost, path, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	// A plain user is authenticated but not allowed.
	memberPair, _, err := env.service.Login(ctx, "bob@example.com", "secret1")
	require.NoError(t, err)
	rr = env.do(t, http.MethodPost, path, memberPair.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = env.do(t, http.MethodPost, path, adminPair.AccessToken, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decodeBody[map[string]any](t, rr)
	assert.Equal(t, float64(2), body["revoked"])

	rr = env.do(t, http.MethodPost, path, adminPair.AccessToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body = decodeBody[map[string]any](t, rr)
	assert.Equal(t, float64(0), body["revoked"])

	rr = env.do(t, http.MethodPost, "/v1/admin/users/missing-user/revoke-sessions", adminPair.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodGet, path, adminPair.AccessToken, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestRateLimit(t *testing.T) {
	limited := RateLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), 2, 1)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
		req.RemoteAddr = "203.0.113.9:4242"
		rr := httptest.NewRecorder()
		limited.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	assert.Equal(t, http.StatusTooManyRequests, codes[2])

	// A different client gets its own bucket.
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	req.RemoteAddr = "203.0.113.10:4242"
	rr := httptest.NewRecorder()
	limited.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}
