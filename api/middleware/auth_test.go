package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func authProbe(keys []string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	r := gin.New()
	r.Use(Auth(keys))
	r.GET("/probe", func(c *gin.Context) {
		key, _ := c.Get("api_key")
		keyStr, _ := key.(string)
		c.String(http.StatusOK, keyStr)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	if mutate != nil {
		mutate(req)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestAuthOpenAccessWithoutKeys(t *testing.T) {
	w := authProbe(nil, nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d for open access", w.Code, http.StatusOK)
	}
}

func TestAuthMissingKey(t *testing.T) {
	w := authProbe([]string{"secret-1"}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAuthInvalidKey(t *testing.T) {
	w := authProbe([]string{"secret-1"}, func(req *http.Request) {
		req.Header.Set("X-API-Key", "wrong")
	})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAuthHeaderStyles(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*http.Request)
	}{
		{"x-api-key", func(req *http.Request) {
			req.Header.Set("X-API-Key", "secret-1")
		}},
		{"bearer", func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer secret-1")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := authProbe([]string{"secret-1", "secret-2"}, tt.mutate)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			if got := w.Body.String(); got != "secret-1" {
				t.Errorf("api_key in context = %q, want %q", got, "secret-1")
			}
		})
	}
}
