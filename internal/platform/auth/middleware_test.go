package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func validClaims() Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "analyst-1",
			Issuer:    "npiregistry",
			Audience:  jwt.ClaimStrings{"registry-api"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Scopes: []string{"providers:read"},
	}
}

func runMiddleware(t *testing.T, cfg JWTConfig, path, header string) (echo.Context, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath(path)

	var seen echo.Context
	h := JWTMiddleware(cfg)(func(c echo.Context) error {
		seen = c
		return c.String(http.StatusOK, "ok")
	})
	return seen, h(c)
}

func expectUnauthorized(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, err := runMiddleware(t, JWTConfig{Secret: testSigningKey}, "/api/v1/providers", "")
	expectUnauthorized(t, err)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runMiddleware(t, JWTConfig{Secret: testSigningKey}, "/api/v1/providers", tt.header)
			expectUnauthorized(t, err)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	cfg := JWTConfig{Secret: testSigningKey, Issuer: "npiregistry", Audience: "registry-api"}
	token := createTestToken(t, validClaims(), testSigningKey)

	c, err := runMiddleware(t, cfg, "/api/v1/providers", "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := c.Request().Context()
	if got := SubjectFromContext(ctx); got != "analyst-1" {
		t.Errorf("expected subject analyst-1, got %q", got)
	}
	if scopes := ScopesFromContext(ctx); len(scopes) != 1 || scopes[0] != "providers:read" {
		t.Errorf("unexpected scopes %v", scopes)
	}
}

func TestJWTMiddleware_Rejections(t *testing.T) {
	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	wrongIssuer := validClaims()
	wrongIssuer.Issuer = "someone-else"

	wrongAudience := validClaims()
	wrongAudience.Audience = jwt.ClaimStrings{"other-api"}

	tests := []struct {
		name  string
		token string
	}{
		{"expired", createTestToken(t, expired, testSigningKey)},
		{"wrong issuer", createTestToken(t, wrongIssuer, testSigningKey)},
		{"wrong audience", createTestToken(t, wrongAudience, testSigningKey)},
		{"wrong key", createTestToken(t, validClaims(), []byte("another-secret"))},
		{"garbage", "not.a.jwt"},
	}
	cfg := JWTConfig{Secret: testSigningKey, Issuer: "npiregistry", Audience: "registry-api"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runMiddleware(t, cfg, "/api/v1/providers", "Bearer "+tt.token)
			expectUnauthorized(t, err)
		})
	}
}

func TestJWTMiddleware_RejectsNoneAlgorithm(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims())
	tokenStr, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	_, err = runMiddleware(t, JWTConfig{Secret: testSigningKey}, "/api/v1/providers", "Bearer "+tokenStr)
	expectUnauthorized(t, err)
}

func TestJWTMiddleware_SkipsPublicPaths(t *testing.T) {
	cfg := JWTConfig{Secret: testSigningKey, Skipper: PublicSkipper}
	for _, path := range []string{"/health", "/health/import", "/metrics"} {
		if _, err := runMiddleware(t, cfg, path, ""); err != nil {
			t.Errorf("%s: expected public path to skip auth, got %v", path, err)
		}
	}
	_, err := runMiddleware(t, cfg, "/api/v1/providers", "")
	expectUnauthorized(t, err)
}

func TestContextHelpers_Empty(t *testing.T) {
	ctx := context.Background()
	if SubjectFromContext(ctx) != "" {
		t.Error("expected empty subject")
	}
	if ScopesFromContext(ctx) != nil {
		t.Error("expected nil scopes")
	}
}
