package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/dealguard/dealguard/internal/logging"
)

func authTestRouter(keys []string, header string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := logging.NewLogger(logging.WithOutput(&bytes.Buffer{}))

	r := gin.New()
	r.Use(APIKeyAuth(keys, header, logger))
	r.GET("/protected", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestAPIKeyAuthValidKey(t *testing.T) {
	r := authTestRouter([]string{"secret-key"}, "")

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set(DefaultAPIKeyHeader, "secret-key")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid key, got %d", w.Code)
	}
}

func TestAPIKeyAuthMissingKey(t *testing.T) {
	r := authTestRouter([]string{"secret-key"}, "")

	req := httptest.NewRequest("GET", "/protected", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", w.Code)
	}
}

func TestAPIKeyAuthInvalidKey(t *testing.T) {
	r := authTestRouter([]string{"secret-key"}, "")

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set(DefaultAPIKeyHeader, "wrong-key")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with invalid key, got %d", w.Code)
	}
}

func TestAPIKeyAuthNoKeysConfigured(t *testing.T) {
	r := authTestRouter(nil, "")

	req := httptest.NewRequest("GET", "/protected", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected auth bypass with no keys configured, got %d", w.Code)
	}
}

func TestAPIKeyAuthCustomHeader(t *testing.T) {
	r := authTestRouter([]string{"secret-key"}, "X-Custom-Auth")

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("X-Custom-Auth", "secret-key")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with custom header key, got %d", w.Code)
	}
}

func TestRequireUserExtractsPrincipal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequireUser(""))

	var seen string
	r.GET("/me", func(c *gin.Context) {
		seen = UserID(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set(DefaultUserHeader, "user-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if seen != "user-42" {
		t.Fatalf("expected user-42, got %q", seen)
	}
}

func TestRequireUserRejectsMissingHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequireUser(""))
	r.GET("/me", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for _, value := range []string{"", "   "} {
		req := httptest.NewRequest("GET", "/me", nil)
		if value != "" {
			req.Header.Set(DefaultUserHeader, value)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for header %q, got %d", value, w.Code)
		}
	}
}

func TestMaskAPIKeys(t *testing.T) {
	masked := MaskAPIKeys([]string{"abc", "abcdefgh"})

	if masked[0] != "***" {
		t.Fatalf("expected short key fully masked, got %q", masked[0])
	}
	if masked[1] != "abcd****" {
		t.Fatalf("expected partial mask, got %q", masked[1])
	}
}
