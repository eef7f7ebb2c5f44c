package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/GarretWalker/marketplace-management/internal/auth"
	"github.com/GarretWalker/marketplace-management/internal/config"
	"github.com/GarretWalker/marketplace-management/internal/db/models"
	"github.com/GarretWalker/marketplace-management/internal/middleware"
	"github.com/GarretWalker/marketplace-management/internal/telemetry"
)

func TestMain(m *testing.M) {
	os.Setenv("MKT_JWT_SECRET", "test-jwt-secret-that-is-32-chars!!")
	os.Exit(m.Run())
}

// ---------------------------------------------------------------------------
// healthCheckHandler
// ---------------------------------------------------------------------------

func newHealthDB(t *testing.T, pingOK bool) *sql.DB {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if pingOK {
		mock.ExpectPing()
	} else {
		mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	}
	return db
}

func TestHealthCheckHandler(t *testing.T) {
	tests := []struct {
		name   string
		pingOK bool
		status int
		want   string
	}{
		{"healthy", true, http.StatusOK, "healthy"},
		{"database down", false, http.StatusServiceUnavailable, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/health", healthCheckHandler(newHealthDB(t, tt.pingOK)))

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			var body map[string]interface{}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if body["status"] != tt.want {
				t.Errorf("status field = %v, want %s", body["status"], tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// versionHandler
// ---------------------------------------------------------------------------

func TestVersionHandler(t *testing.T) {
	for _, tc := range []struct{ in, want string }{{"1.4.2", "1.4.2"}, {"", "dev"}} {
		r := gin.New()
		r.GET("/version", versionHandler(tc.in))

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))

		var body map[string]interface{}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if body["version"] != tc.want {
			t.Errorf("version = %v, want %s", body["version"], tc.want)
		}
		if body["api_version"] != "v1" {
			t.Errorf("api_version = %v, want v1", body["api_version"])
		}
	}
}

// ---------------------------------------------------------------------------
// LoggerMiddleware
// ---------------------------------------------------------------------------

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(telemetry.NewLogger(&buf, "json", "info", "test"))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestLoggerMiddleware(t *testing.T) {
	buf := captureLogs(t)

	r := gin.New()
	r.Use(middleware.RequestIDMiddleware())
	r.Use(LoggerMiddleware())
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	req := httptest.NewRequest(http.MethodGet, "/boom?x=1", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-123")
	r.ServeHTTP(httptest.NewRecorder(), req)

	var rec map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, buf.String())
	}
	checks := map[string]interface{}{
		"msg":        "http request",
		"level":      "ERROR",
		"path":       "/boom",
		"query":      "x=1",
		"request_id": "req-123",
		"status":     float64(500),
	}
	for k, want := range checks {
		if rec[k] != want {
			t.Errorf("%s = %v, want %v", k, rec[k], want)
		}
	}
}

// ---------------------------------------------------------------------------
// CORSMiddleware
// ---------------------------------------------------------------------------

func serveCORS(origins []string, method, origin string) *httptest.ResponseRecorder {
	cfg := &config.Config{}
	cfg.Security.CORS.AllowedOrigins = origins

	r := gin.New()
	r.Use(CORSMiddleware(cfg))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(method, "/", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		origins    []string
		method     string
		origin     string
		wantStatus int
		wantAllow  string
	}{
		{"allowed origin", []string{"https://portal.example.org"}, http.MethodGet, "https://portal.example.org", http.StatusOK, "https://portal.example.org"},
		{"disallowed origin", []string{"https://portal.example.org"}, http.MethodGet, "https://evil.example", http.StatusOK, ""},
		{"wildcard echoes origin", []string{"*"}, http.MethodGet, "https://any.example", http.StatusOK, "https://any.example"},
		{"wildcard without origin", []string{"*"}, http.MethodGet, "", http.StatusOK, "*"},
		{"preflight", []string{"*"}, http.MethodOptions, "https://any.example", http.StatusNoContent, "https://any.example"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveCORS(tt.origins, tt.method, tt.origin)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantAllow)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// NewRouter: route guards end to end
// ---------------------------------------------------------------------------

type staticProfiles map[uuid.UUID]*models.Profile

func (s staticProfiles) GetByID(_ context.Context, id uuid.UUID) (*models.Profile, error) {
	return s[id], nil
}

func newTestRouter(t *testing.T, rateLimit bool) (*gin.Engine, staticProfiles) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Security.CORS.AllowedOrigins = []string{"*"}
	cfg.Security.RateLimiting = config.RateLimitingConfig{Enabled: rateLimit, RequestsPerMinute: 60, Burst: 2}

	profiles := staticProfiles{}
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	chamber := &models.Chamber{ID: testChamberID, Name: "Springfield"}
	r, bg := NewRouter(cfg, db, Deps{
		Profiles: profiles,
		Chambers: &fakeChamberService{chamber: chamber},
		Claims:   &fakeClaimWorkflow{claim: &models.ClaimRequest{ID: uuid.New()}},
		Version:  "test",
	})
	t.Cleanup(bg.Shutdown)
	return r, profiles
}

func bearerFor(t *testing.T, profiles staticProfiles, role models.Role) string {
	t.Helper()
	id := uuid.New()
	chamberID := testChamberID
	profiles[id] = &models.Profile{ID: id, Email: "u@example.com", Role: role, ChamberID: &chamberID, CreatedAt: time.Now()}
	token, err := auth.GenerateJWT(id.String(), "u@example.com", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	return "Bearer " + token
}

func TestNewRouter_RouteGuards(t *testing.T) {
	r, profiles := newTestRouter(t, false)
	admin := bearerFor(t, profiles, models.RoleChamberAdmin)
	visitor := bearerFor(t, profiles, models.RoleVisitor)
	chamber := "/api/v1/chambers/" + testChamberID.String()

	tests := []struct {
		name   string
		method string
		path   string
		auth   string
		body   string
		want   int
	}{
		{"no token", http.MethodGet, chamber, "", "", http.StatusUnauthorized},
		{"visitor on chamber route", http.MethodGet, chamber, visitor, "", http.StatusForbidden},
		{"admin on chamber route", http.MethodGet, chamber, admin, "", http.StatusOK},
		{"visitor lists claims", http.MethodGet, "/api/v1/claims?chamber_id=" + testChamberID.String(), visitor, "", http.StatusForbidden},
		{"visitor approves", http.MethodPost, "/api/v1/claims/" + uuid.NewString() + "/approve", visitor, "", http.StatusForbidden},
		{"visitor files claim", http.MethodPost, "/api/v1/claims", visitor, `{"contact_name":"Pat"}`, http.StatusCreated},
		{"visitor reads notifications", http.MethodGet, "/api/v1/notifications", visitor, "", http.StatusOK},
		{"version is public", http.MethodGet, "/version", "", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d; body=%s", w.Code, tt.want, w.Body.String())
			}
			if w.Header().Get(middleware.RequestIDHeader) == "" {
				t.Error("missing X-Request-ID on response")
			}
		})
	}
}

func TestNewRouter_RateLimitsPerUser(t *testing.T) {
	r, profiles := newTestRouter(t, true)
	admin := bearerFor(t, profiles, models.RoleChamberAdmin)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
		req.Header.Set("Authorization", admin)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 200 429]", codes)
	}
}
