package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"

	"github.com/R3E-Network/lottery_layer/pkg/logger"
)

const testSecret = "test-secret"

func generateTestToken(t *testing.T, secret, userID string, expired bool) string {
	t.Helper()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	if expired {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	}
	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return tokenString
}

// echoUser writes the resolved user ID.
var echoUser = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(GetUserID(r.Context())))
})

func TestAuthMiddleware_BearerToken(t *testing.T) {
	handler := NewAuthMiddleware(testSecret, logger.NewNop(), nil).Handler(echoUser)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantUser   string
	}{
		{"valid", "Bearer " + generateTestToken(t, testSecret, "alice", false), http.StatusOK, "alice"},
		{"expired", "Bearer " + generateTestToken(t, testSecret, "alice", true), http.StatusUnauthorized, ""},
		{"wrong secret", "Bearer " + generateTestToken(t, "other", "alice", false), http.StatusUnauthorized, ""},
		{"bad format", "Token abc", http.StatusUnauthorized, ""},
		{"anonymous", "", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/bets", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			req.Header.Set(UserIDHeader, "mallory")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && rec.Body.String() != tt.wantUser {
				t.Errorf("user = %q, want %q", rec.Body.String(), tt.wantUser)
			}
		})
	}
}

func TestAuthMiddleware_TrustedHeader(t *testing.T) {
	handler := NewAuthMiddleware("", logger.NewNop(), nil).Handler(echoUser)

	req := httptest.NewRequest(http.MethodGet, "/v1/bets", nil)
	req.Header.Set(UserIDHeader, " bob ")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Body.String() != "bob" {
		t.Errorf("user = %q, want bob", rec.Body.String())
	}
}

func TestAuthMiddleware_SkipPaths(t *testing.T) {
	handler := NewAuthMiddleware(testSecret, logger.NewNop(), []string{"/healthz"}).Handler(echoUser)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Authorization", "garbage")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRequireUserID(t *testing.T) {
	handler := RequireUserID(echoUser)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUserID(req.Context(), "alice"))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRequireAdminKey(t *testing.T) {
	handler := RequireAdminKey([]string{"k1"})(echoUser)

	for key, want := range map[string]int{"": http.StatusUnauthorized, "nope": http.StatusUnauthorized, "k1": http.StatusOK} {
		req := httptest.NewRequest(http.MethodPost, "/v1/lotteries/x/results", nil)
		if key != "" {
			req.Header.Set(AdminKeyHeader, key)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("key %q: status = %d, want %d", key, rec.Code, want)
		}
	}

	closed := RequireAdminKey(nil)(echoUser)
	rec := httptest.NewRecorder()
	closed.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no keys: status = %d, want 401", rec.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2, logger.NewNop())
	handler := rl.Handler(echoUser)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}

	if removed := rl.Cleanup(time.Now().Add(time.Hour)); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
}

func TestLoggingMiddlewareSetsTraceID(t *testing.T) {
	r := mux.NewRouter()
	r.Use(LoggingMiddleware(logger.NewNop()))
	r.HandleFunc("/v1/lotteries/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(GetTraceID(r.Context())))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/lotteries/abc", nil))
	trace := rec.Header().Get(TraceIDHeader)
	if trace == "" || rec.Body.String() != trace {
		t.Errorf("trace header %q, body %q", trace, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/lotteries/abc", nil)
	req.Header.Set(TraceIDHeader, "given")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Header().Get(TraceIDHeader) != "given" {
		t.Errorf("trace header = %q, want given", rec.Header().Get(TraceIDHeader))
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := NewCORSMiddleware([]string{"https://app.example"}).Handler(echoUser)

	req := httptest.NewRequest(http.MethodOptions, "/v1/bets", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://app.example" {
		t.Errorf("allow origin = %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/bets", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Errorf("unexpected allow origin for foreign origin")
	}
}
