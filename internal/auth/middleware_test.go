package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abduss/clientdrop/internal/token"
)

func newTestRouter(service *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api")
	RegisterRoutes(api, service)
	protected := api.Group("")
	protected.Use(AuthMiddleware(service))
	protected.GET("/whoami", func(c *gin.Context) {
		id, account, ok := RequireAccount(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id, "code": account.Code})
	})
	return r
}

func login(t *testing.T, r *gin.Engine, code, password string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"clientCode": code, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestLoginHandler(t *testing.T) {
	service, _ := newTestService(t)
	r := newTestRouter(service)

	tests := []struct {
		name     string
		code     string
		password string
		status   int
	}{
		{name: "valid", code: "CLIENT456", password: "client2024", status: http.StatusOK},
		{name: "wrong password", code: "CLIENT456", password: "nope", status: http.StatusUnauthorized},
		{name: "unknown code", code: "GHOST", password: "client2024", status: http.StatusUnauthorized},
		{name: "missing fields", code: "", password: "", status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := login(t, r, tt.code, tt.password)
			assert.Equal(t, tt.status, rr.Code)
			if tt.status == http.StatusOK {
				var resp loginResponse
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
				assert.NotEmpty(t, resp.Token)
				assert.Equal(t, "Μαρία Κωνσταντίνου", resp.Name)
			}
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	service, _ := newTestService(t)
	r := newTestRouter(service)

	rr := login(t, r, "DEMO123", "demo2024")
	require.Equal(t, http.StatusOK, rr.Code)
	var resp loginResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

	issuer := token.NewIssuer([]byte(testAuthConfig.JWTSecret), 0, 0)
	capability, _, err := issuer.IssueCapability(uuid.New())
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "valid session", header: "Bearer " + resp.Token, status: http.StatusOK},
		{name: "lowercase scheme", header: "bearer " + resp.Token, status: http.StatusOK},
		{name: "missing header", header: "", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer garbage", status: http.StatusUnauthorized},
		{name: "capability as session", header: "Bearer " + capability, status: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequestWithContext(context.Background(), http.MethodGet, "/api/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)
			assert.Equal(t, tt.status, rr.Code)
		})
	}
}
