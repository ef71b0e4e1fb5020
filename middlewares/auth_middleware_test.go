package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, ttl time.Duration) string {
	t.Helper()
	vehicleID := uint(3)
	claims := Claims{
		DriverID:  7,
		VehicleID: &vehicleID,
		Role:      "driver",
		Name:      "Carlos Oliveira",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func runAuth(t *testing.T, header string, mw ...echo.MiddlewareFunc) (int, echo.Context) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	for i := len(mw) - 1; i >= 0; i-- {
		handler = mw[i](handler)
	}
	err := handler(c)
	if err == nil {
		return http.StatusOK, c
	}
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("unexpected error type: %v", err)
	}
	return he.Code, c
}

func TestRequireAuthValidToken(t *testing.T) {
	tok := signToken(t, testSecret, time.Hour)
	code, c := runAuth(t, "Bearer "+tok, RequireAuth(testSecret))
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if got, _ := c.Get("driver_id").(uint); got != 7 {
		t.Fatalf("driver_id = %v, want 7", c.Get("driver_id"))
	}
	vid, _ := c.Get("vehicle_id").(*uint)
	if vid == nil || *vid != 3 {
		t.Fatalf("vehicle_id = %v, want 3", c.Get("vehicle_id"))
	}
}

func TestRequireAuthMissingHeader(t *testing.T) {
	code, _ := runAuth(t, "", RequireAuth(testSecret))
	if code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", code)
	}
}

func TestRequireAuthWrongSecret(t *testing.T) {
	tok := signToken(t, "other-secret", time.Hour)
	code, _ := runAuth(t, "Bearer "+tok, RequireAuth(testSecret))
	if code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", code)
	}
}

func TestRequireAuthExpiredToken(t *testing.T) {
	tok := signToken(t, testSecret, -time.Minute)
	code, _ := runAuth(t, "Bearer "+tok, RequireAuth(testSecret))
	if code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", code)
	}
}

func TestRequireRole(t *testing.T) {
	tok := signToken(t, testSecret, time.Hour)

	code, _ := runAuth(t, "Bearer "+tok, RequireAuth(testSecret), RequireRole("driver"))
	if code != http.StatusOK {
		t.Fatalf("driver role status = %d, want 200", code)
	}

	code, _ = runAuth(t, "Bearer "+tok, RequireAuth(testSecret), RequireRole("admin"))
	if code != http.StatusForbidden {
		t.Fatalf("admin-only status = %d, want 403", code)
	}
}
