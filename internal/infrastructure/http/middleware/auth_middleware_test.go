package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnquangdev/transcript-indexer/errors"
	"github.com/johnquangdev/transcript-indexer/pkg/jwt"
)

func run(t *testing.T, m *jwt.Manager, setup func(*http.Request)) (echo.Context, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	setup(req)
	c := e.NewContext(req, httptest.NewRecorder())

	err := EchoAuth(m)(func(c echo.Context) error { return nil })(c)
	return c, err
}

func TestEchoAuth_SetsIdentity(t *testing.T) {
	m := jwt.NewManager("secret", time.Minute, "")
	userID := uuid.New()
	token, err := m.GenerateAccessToken(userID, "user")
	require.NoError(t, err)

	c, err := run(t, m, func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) })
	require.NoError(t, err)

	got, ok := GetUserID(c)
	assert.True(t, ok)
	assert.Equal(t, userID, got)
	assert.True(t, HasRole(c, "user"))
	assert.False(t, HasRole(c, "service"))
}

func TestEchoAuth_CookieFallback(t *testing.T) {
	m := jwt.NewManager("secret", time.Minute, "")
	token, err := m.GenerateAccessToken(uuid.New(), "service")
	require.NoError(t, err)

	c, err := run(t, m, func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "access_token", Value: token}) })
	require.NoError(t, err)
	assert.True(t, HasRole(c, "service"))
	assert.False(t, HasRole(c, ""))
}

func TestEchoAuth_Rejects(t *testing.T) {
	m := jwt.NewManager("secret", time.Minute, "")
	expired, err := jwt.NewManager("secret", -time.Minute, "").GenerateAccessToken(uuid.New(), "user")
	require.NoError(t, err)

	cases := map[string]struct {
		setup func(*http.Request)
		code  errors.ErrorCode
	}{
		"missing":   {func(r *http.Request) {}, errors.ErrorCode_UNAUTHENTICATED},
		"malformed": {func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, errors.ErrorCode_AUTH_INVALID_TOKEN},
		"expired":   {func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+expired) }, errors.ErrorCode_AUTH_TOKEN_EXPIRED},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := run(t, m, tc.setup)
			var appErr errors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, http.StatusUnauthorized, appErr.HTTPCode)
			assert.Equal(t, tc.code, appErr.Code)
		})
	}
}
