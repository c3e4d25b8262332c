package routes

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
	"github.com/stretchr/testify/assert"

	"house-rent-server/utils"
)

// buildVerificationTestApp wires the verification routes behind a real JWT
// verifier, without the storage-backed quota middleware.
func buildVerificationTestApp() *iris.Application {
	os.Setenv("ACCESS_TOKEN_SECRET", "testsecret")
	app := iris.New()

	accessTokenVerifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("ACCESS_TOKEN_SECRET")))
	accessTokenVerifierMiddleware := accessTokenVerifier.Verify(func() interface{} { return new(utils.AccessToken) })

	verification := app.Party("/api/verification", accessTokenVerifierMiddleware)
	{
		verification.Post("/auto", SubmitVerification)
		verification.Get("/{id:uint}/status", utils.SelfOrAdminMiddleware, VerificationStatus)
		verification.Patch("/{id:uint}/review", utils.AdminOnlyMiddleware, ReviewVerification)
	}
	if err := app.Build(); err != nil {
		panic(err)
	}
	return app
}

func signVerificationTestToken(id uint, role string) string {
	signer := jwt.NewSigner(jwt.HS256, os.Getenv("ACCESS_TOKEN_SECRET"), time.Hour)
	token, _ := signer.Sign(utils.AccessToken{ID: id, Role: role})
	return string(token)
}

func TestSubmitVerificationRequiresAllFields(t *testing.T) {
	app := buildVerificationTestApp()

	req := httptest.NewRequest(http.MethodPost, "/api/verification/auto",
		strings.NewReader("idType=passport"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+signVerificationTestToken(1, "landlord"))
	resp := httptest.NewRecorder()
	app.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "required")
}

func TestSubmitVerificationRequiresAuth(t *testing.T) {
	app := buildVerificationTestApp()

	req := httptest.NewRequest(http.MethodPost, "/api/verification/auto", nil)
	resp := httptest.NewRecorder()
	app.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestVerificationStatusForbiddenForOtherUsers(t *testing.T) {
	app := buildVerificationTestApp()

	req := httptest.NewRequest(http.MethodGet, "/api/verification/2/status", nil)
	req.Header.Set("Authorization", "Bearer "+signVerificationTestToken(1, "tenant"))
	resp := httptest.NewRecorder()
	app.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestReviewVerificationAdminOnly(t *testing.T) {
	app := buildVerificationTestApp()

	req := httptest.NewRequest(http.MethodPatch, "/api/verification/2/review",
		strings.NewReader(`{"status":"verified"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+signVerificationTestToken(1, "landlord"))
	resp := httptest.NewRecorder()
	app.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestReviewVerificationRejectsUnknownStatus(t *testing.T) {
	app := buildVerificationTestApp()

	req := httptest.NewRequest(http.MethodPatch, "/api/verification/2/review",
		strings.NewReader(`{"status":"approved"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+signVerificationTestToken(1, "admin"))
	resp := httptest.NewRecorder()
	app.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "verified, rejected, pending_review")
}
