package httpkit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"recruitment_backend/platform/apperr"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type jwtSecret string

func (s jwtSecret) GetJWTAccessSecret() string { return string(s) }

const testSecret = jwtSecret("test-secret")

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthRequired(testSecret))
	r.GET("/me", func(c *gin.Context) {
		id := MustGetIdentity(c)
		if id == nil {
			return
		}
		tenant := ""
		if id.TenantID() != nil {
			tenant = id.TenantID().String()
		}
		c.JSON(http.StatusOK, gin.H{"tenant": tenant, "admin": id.HasRole(RoleAdmin)})
	})
	r.POST("/admin", RequireRole(RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestAuthRequiredRejectsMissingToken(t *testing.T) {
	r := newAuthRouter()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthRequiredSetsTenantFromClaim(t *testing.T) {
	tenantID := uuid.New()
	token := signToken(t, jwt.MapClaims{
		"sub":       uuid.NewString(),
		"type":      "access",
		"tenant_id": tenantID.String(),
		"roles":     []string{"admin"},
		"exp":       time.Now().Add(time.Hour).Unix(),
	})

	r := newAuthRouter()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	want := `{"admin":true,"tenant":"` + tenantID.String() + `"}`
	if rec.Body.String() != want {
		t.Fatalf("unexpected body %s, want %s", rec.Body.String(), want)
	}
}

func TestAuthRequiredRejectsRefreshTokens(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"sub":  uuid.NewString(),
		"type": "refresh",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	r := newAuthRouter()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for refresh token, got %d", rec.Code)
	}
}

func TestRequireRoleForbidsNonAdmin(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"sub":   uuid.NewString(),
		"type":  "access",
		"roles": []string{"recruiter"},
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	r := newAuthRouter()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHandleErrorMapsKinds(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err  error
		want int
	}{
		{apperr.NotFound("missing"), http.StatusNotFound},
		{apperr.Validation("bad"), http.StatusBadRequest},
		{apperr.Unprocessable("render"), http.StatusUnprocessableEntity},
		{http.ErrBodyNotAllowed, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		if !HandleError(c, tc.err) {
			t.Fatalf("expected error to be handled")
		}
		if rec.Code != tc.want {
			t.Fatalf("HandleError(%v) status = %d, want %d", tc.err, rec.Code, tc.want)
		}
	}
}
