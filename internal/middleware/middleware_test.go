package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/movieclub/backend/internal/auth"
	"github.com/movieclub/backend/internal/ratelimit"
)

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.GET("/ping", func(c *gin.Context) {
		id, _ := UserID(c)
		c.JSON(http.StatusOK, gin.H{"user": id, "role": UserRole(c)})
	})
	return r
}

func serve(r http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWT(t *testing.T) {
	jwtSvc := auth.NewJWTService("secret", 1)
	token, err := jwtSvc.Generate(7, "a@example.com", "admin")
	if err != nil {
		t.Fatal(err)
	}
	r := newRouter(JWT(jwtSvc))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + token, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := serve(r, tt.header); w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	jwtSvc := auth.NewJWTService("secret", 1)
	r := newRouter(JWT(jwtSvc), RequireRole("admin"))

	admin, _ := jwtSvc.Generate(1, "admin@example.com", "admin")
	user, _ := jwtSvc.Generate(2, "user@example.com", "user")

	if w := serve(r, "Bearer "+admin); w.Code != http.StatusOK {
		t.Fatalf("admin status = %d", w.Code)
	}
	if w := serve(r, "Bearer "+user); w.Code != http.StatusForbidden {
		t.Fatalf("user status = %d", w.Code)
	}
	if w := serve(newRouter(RequireRole("admin")), ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("no context status = %d", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	r := newRouter(RateLimit(ratelimit.NewMemoryLimiter(), 2, zap.NewNop()))

	for i := 0; i < 2; i++ {
		w := serve(r, "")
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, w.Code)
		}
		if w.Header().Get("X-RateLimit-Limit") != "2" {
			t.Fatalf("limit header = %q", w.Header().Get("X-RateLimit-Limit"))
		}
	}
	w := serve(r, "")
	// the window may have rolled over between requests; only assert when it did not
	if w.Code == http.StatusOK && w.Header().Get("X-RateLimit-Remaining") == "1" {
		t.Skip("window rolled over")
	}
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") != "1" || w.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("unexpected headers %v", w.Header())
	}
}

func TestRateLimitDisabled(t *testing.T) {
	r := newRouter(RateLimit(ratelimit.NewMemoryLimiter(), 0, nil))
	for i := 0; i < 5; i++ {
		if w := serve(r, ""); w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    string
	}{
		{"wildcard when unset", nil, "https://a.example", "*"},
		{"explicit wildcard", []string{"*"}, "https://a.example", "*"},
		{"listed origin echoed", []string{"https://a.example", " https://b.example "}, "https://b.example", "https://b.example"},
		{"unlisted origin", []string{"https://a.example"}, "https://evil.example", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(CORS(tt.allowed))
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Fatalf("allow origin = %q, want %q", got, tt.want)
			}
		})
	}

	t.Run("preflight", func(t *testing.T) {
		r := newRouter(CORS(nil))
		req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want 204", w.Code)
		}
	})
}
