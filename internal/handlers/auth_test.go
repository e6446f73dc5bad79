package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slbhq/accounts/internal/auth"
	"github.com/slbhq/accounts/internal/queue"
	"github.com/slbhq/accounts/internal/queue/boltq"
	"github.com/slbhq/accounts/internal/storage/sqlite"
	"github.com/slbhq/accounts/internal/token"
	"github.com/slbhq/accounts/pkg/api"
)

type testEnv struct {
	router http.Handler
	store  *sqlite.Storage
	queue  *boltq.Store
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.New(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	q, err := boltq.New(ctx, filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	codec, err := token.NewCodec("access-secret", "refresh-secret", "verification-secret")
	require.NoError(t, err)

	logger := slog.Default()
	svc := auth.New(logger, codec, store, store, store, q, "https://app.example.com")

	router := NewRouter(RouterConfig{
		Logger:   logger,
		Codec:    codec,
		Service:  svc,
		Queue:    q,
		Accounts: store,
		DB:       store,
		Version:  "test",
	})

	return &testEnv{router: router, store: store, queue: q}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, m := range mutate {
		m(req)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) signup(t *testing.T, email string) api.SignupResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/auth/signup", api.SignupRequest{
		Name:     "Test User",
		Email:    email,
		Password: "Str0ng!pass",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp api.SignupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func (e *testEnv) login(t *testing.T, email string) (api.LoginResponse, *http.Cookie) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/auth/login", api.LoginRequest{
		Email:    email,
		Password: "Str0ng!pass",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp api.LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp, findRefreshCookie(t, rec)
}

func findRefreshCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == RefreshCookie {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", RefreshCookie)
	return nil
}

func TestAuthHandler_Signup(t *testing.T) {
	env := setupTestEnv(t)

	t.Run("creates account", func(t *testing.T) {
		resp := env.signup(t, "alice@example.com")
		assert.NotEmpty(t, resp.Account.ID)
		assert.Equal(t, "alice@example.com", resp.Account.Email)
		assert.False(t, resp.Account.IsVerified)
	})

	t.Run("password never leaks", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/auth/signup", api.SignupRequest{
			Name: "Bob", Email: "bob@example.com", Password: "Str0ng!pass",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.NotContains(t, rec.Body.String(), "password")
		assert.NotContains(t, rec.Body.String(), "Str0ng!pass")
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/auth/signup", api.SignupRequest{
			Name: "Alice", Email: "alice@example.com", Password: "Str0ng!pass",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("invalid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", bytes.NewReader([]byte("{not json")))
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("weak password rejected", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/auth/signup", api.SignupRequest{
			Name: "Carol", Email: "carol@example.com", Password: "password",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAuthHandler_Login(t *testing.T) {
	env := setupTestEnv(t)
	env.signup(t, "alice@example.com")

	t.Run("sets the refresh cookie", func(t *testing.T) {
		resp, cookie := env.login(t, "alice@example.com")

		assert.NotEmpty(t, resp.AccessToken)
		assert.Positive(t, resp.ExpiresIn)

		assert.True(t, cookie.HttpOnly)
		assert.True(t, cookie.Secure)
		assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
		assert.Equal(t, "/api/auth", cookie.Path)
		assert.Positive(t, cookie.MaxAge)
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/auth/login", api.LoginRequest{
			Email: "alice@example.com", Password: "Wr0ng!pass1",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAuthHandler_Refresh(t *testing.T) {
	env := setupTestEnv(t)
	env.signup(t, "alice@example.com")
	_, cookie := env.login(t, "alice@example.com")

	withCookie := func(c *http.Cookie) func(*http.Request) {
		return func(r *http.Request) { r.AddCookie(c) }
	}

	t.Run("rotates the cookie", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/auth/refresh", nil, withCookie(cookie))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp api.RefreshResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.AccessToken)

		rotated := findRefreshCookie(t, rec)
		assert.NotEqual(t, cookie.Value, rotated.Value)

		t.Run("replaying the old cookie is refused", func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/auth/refresh", nil, withCookie(cookie))
			assert.Equal(t, http.StatusForbidden, rec.Code)
		})

		t.Run("the rotated cookie still works", func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/auth/refresh", nil, withCookie(rotated))
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	})

	t.Run("missing cookie", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/auth/refresh", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAuthHandler_Logout(t *testing.T) {
	env := setupTestEnv(t)
	env.signup(t, "alice@example.com")
	_, cookie := env.login(t, "alice@example.com")

	rec := env.do(t, http.MethodPost, "/api/auth/logout", nil, func(r *http.Request) {
		r.AddCookie(cookie)
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	cleared := findRefreshCookie(t, rec)
	assert.Empty(t, cleared.Value)
	assert.Negative(t, cleared.MaxAge)

	t.Run("session is closed", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/auth/refresh", nil, func(r *http.Request) {
			r.AddCookie(cookie)
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("logout without a cookie still succeeds", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/auth/logout", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

var verificationLinkRe = regexp.MustCompile(`/verify-email/([A-Za-z0-9._-]+)"`)

func (e *testEnv) verificationToken(t *testing.T) string {
	t.Helper()

	job, err := e.queue.Claim(context.Background())
	require.NoError(t, err)
	payload, err := queue.DecodeEmailPayload(job.Payload)
	require.NoError(t, err)

	m := verificationLinkRe.FindStringSubmatch(payload.HTML)
	require.Len(t, m, 2)
	return m[1]
}

func TestAuthHandler_VerifyEmail(t *testing.T) {
	env := setupTestEnv(t)
	env.signup(t, "alice@example.com")
	verificationToken := env.verificationToken(t)

	t.Run("verifies the account", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/auth/verify-email/"+verificationToken, nil)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("second use is rejected", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/auth/verify-email/"+verificationToken, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "already verified")
	})

	t.Run("garbage token", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/auth/verify-email/not-a-jwt", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAuthHandler_RequestVerification(t *testing.T) {
	t.Run("accepted without duplicating a queued mail", func(t *testing.T) {
		env := setupTestEnv(t)
		env.signup(t, "alice@example.com")
		resp, _ := env.login(t, "alice@example.com")

		rec := env.do(t, http.MethodPost, "/api/auth/request-verification", nil, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+resp.AccessToken)
		})
		assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

		// The signup mail is still on its way; resend rides it.
		stats, err := env.queue.Stats(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Pending)
	})

	t.Run("conflicts once verified", func(t *testing.T) {
		env := setupTestEnv(t)
		env.signup(t, "alice@example.com")

		verificationToken := env.verificationToken(t)
		rec := env.do(t, http.MethodGet, "/api/auth/verify-email/"+verificationToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		resp, _ := env.login(t, "alice@example.com")
		rec = env.do(t, http.MethodPost, "/api/auth/request-verification", nil, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+resp.AccessToken)
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("requires a token", func(t *testing.T) {
		env := setupTestEnv(t)
		rec := env.do(t, http.MethodPost, "/api/auth/request-verification", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAuthHandler_Me(t *testing.T) {
	env := setupTestEnv(t)
	env.signup(t, "alice@example.com")
	resp, _ := env.login(t, "alice@example.com")

	t.Run("returns the caller's account", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/auth/me", nil, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+resp.AccessToken)
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var account api.Account
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &account))
		assert.Equal(t, "alice@example.com", account.Email)
	})

	t.Run("requires a token", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/auth/me", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAdminHandler(t *testing.T) {
	env := setupTestEnv(t)
	adminResp := env.signup(t, "admin@example.com")
	env.signup(t, "user@example.com")

	_, err := env.store.DB().Exec(`UPDATE accounts SET role = 'admin' WHERE id = ?`, adminResp.Account.ID)
	require.NoError(t, err)

	adminLogin, _ := env.login(t, "admin@example.com")
	userLogin, _ := env.login(t, "user@example.com")

	bearer := func(tok string) func(*http.Request) {
		return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }
	}

	t.Run("admin lists accounts", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/admin/accounts", nil, bearer(adminLogin.AccessToken))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp api.AccountListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Total)
	})

	t.Run("admin reads queue stats", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/admin/queue", nil, bearer(adminLogin.AccessToken))
		require.Equal(t, http.StatusOK, rec.Code)

		var stats api.QueueStatsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
		// Two signups queued two verification mails.
		assert.Equal(t, 2, stats.Pending)
	})

	t.Run("plain user is forbidden", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/admin/accounts", nil, bearer(userLogin.AccessToken))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("anonymous is unauthorized", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/admin/accounts", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestHealthHandler(t *testing.T) {
	env := setupTestEnv(t)

	t.Run("healthz", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/healthz", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"ok"`)
	})

	t.Run("readyz", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/readyz", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("metrics", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/metrics", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
