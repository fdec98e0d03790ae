package auth_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newIdentityRouter(validator *auth.KeycloakTokenValidator) *gin.Engine {
	r := gin.New()
	r.Use(auth.IdentityMiddleware(validator))
	r.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"gin":   c.GetString(auth.ContextKeyUserID),
			"actor": auth.ActorFrom(c.Request.Context()),
		})
	})
	return r
}

// TestIdentityMiddleware_HeaderFallback 测试未配置 Keycloak 时读取网关请求头
func TestIdentityMiddleware_HeaderFallback(t *testing.T) {
	r := newIdentityRouter(nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(auth.HeaderUserID, "u-7")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"gin":"u-7","actor":"u-7"}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// TestIdentityMiddleware_Keycloak 测试 JWKS 公钥校验
func TestIdentityMiddleware_Keycloak(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwks := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"keys": []map[string]string{{
				"kid": "k1",
				"kty": "RSA",
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			}},
		})
	}))
	defer jwks.Close()

	issuer := jwks.URL + "/realms/eprabandhan"
	validator := auth.NewKeycloakTokenValidator(issuer)
	r := newIdentityRouter(validator)

	sign := func(iss string, exp time.Time) string {
		claims := auth.KeycloakClaims{
			PreferredUsername: "asha",
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "u-42",
				Issuer:    iss,
				ExpiresAt: jwt.NewNumericDate(exp),
			},
		}
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
		token.Header["kid"] = "k1"
		signed, err := token.SignedString(key)
		require.NoError(t, err)
		return signed
	}

	cases := []struct {
		name  string
		token string
		code  int
	}{
		{"valid", sign(issuer, time.Now().Add(time.Hour)), http.StatusOK},
		{"wrong issuer", sign("https://evil.example/realms/x", time.Now().Add(time.Hour)), http.StatusUnauthorized},
		{"expired", sign(issuer, time.Now().Add(-time.Hour)), http.StatusUnauthorized},
		{"garbage", "not-a-token", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			req.Header.Set("Authorization", "Bearer "+tc.token)
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.code, w.Code)
			if tc.code == http.StatusOK {
				assert.JSONEq(t, `{"gin":"u-42","actor":"u-42"}`, w.Body.String())
			}
		})
	}
}

type countingAuthorizer struct {
	checks  int
	allowed bool
	err     error
}

func (a *countingAuthorizer) CheckPermission(ctx context.Context, userID, relation, objectType, objectID string) (bool, error) {
	a.checks++
	return a.allowed, a.err
}

func (a *countingAuthorizer) SetRelation(ctx context.Context, userID, relation, objectType, objectID string) error {
	return nil
}

func (a *countingAuthorizer) DeleteRelation(ctx context.Context, userID, relation, objectType, objectID string) error {
	return nil
}

// TestCachedAuthorizer 测试权限缓存命中与失效
func TestCachedAuthorizer(t *testing.T) {
	inner := &countingAuthorizer{allowed: true}
	cached := auth.NewCachedAuthorizer(inner, auth.NewPermissionCache(time.Minute))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := cached.CheckPermission(ctx, "u-1", auth.RelationApprover, auth.ObjectApproval, "ap-1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 1, inner.checks)

	require.NoError(t, cached.SetRelation(ctx, "u-1", auth.RelationApprover, auth.ObjectApproval, "ap-1"))
	_, _ = cached.CheckPermission(ctx, "u-1", auth.RelationApprover, auth.ObjectApproval, "ap-1")
	assert.Equal(t, 2, inner.checks)

	inner.err = errors.New("unavailable")
	_, err := cached.CheckPermission(ctx, "u-2", auth.RelationApprover, auth.ObjectApproval, "ap-1")
	assert.Error(t, err)
}

// TestPermissionMiddleware 测试关系校验中间件
func TestPermissionMiddleware(t *testing.T) {
	inner := &countingAuthorizer{allowed: false}
	r := gin.New()
	r.Use(auth.IdentityMiddleware(nil))
	r.GET("/approvals/:id", auth.PermissionMiddleware(inner, auth.ObjectApproval, "viewer"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/approvals/ap-1", nil)
	req.Header.Set(auth.HeaderUserID, "u-1")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	inner.allowed = true
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
