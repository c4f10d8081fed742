package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abduss/clientdrop/internal/auth"
	"github.com/abduss/clientdrop/internal/blob"
	"github.com/abduss/clientdrop/internal/config"
	"github.com/abduss/clientdrop/internal/events"
	"github.com/abduss/clientdrop/internal/file"
	"github.com/abduss/clientdrop/internal/share"
	"github.com/abduss/clientdrop/internal/storage"
	"github.com/abduss/clientdrop/internal/storage/migrations"
	"github.com/abduss/clientdrop/internal/token"
)

const testMaxUpload = 4 * 1024

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	log := zap.NewNop()

	cfg := config.Config{
		Server:  config.ServerConfig{AllowedOrigins: []string{"*"}},
		Storage: config.StorageConfig{Backend: config.StorageLocal, PublicPrefix: "/uploads", MaxUploadBytes: testMaxUpload},
		Auth:    config.AuthConfig{JWTSecret: "router-test", SessionTTL: 8 * time.Hour, ShareTTL: time.Hour, BcryptCost: 4},
		Metrics: config.MetricsConfig{PrometheusPath: "/metrics"},
	}

	db, err := storage.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Up(ctx, db, migrations.DialectSQLite, log))

	local, err := blob.NewLocalStore(t.TempDir(), cfg.Storage.PublicPrefix)
	require.NoError(t, err)

	issuer := token.NewIssuer([]byte(cfg.Auth.JWTSecret), cfg.Auth.SessionTTL, cfg.Auth.ShareTTL)
	authService := auth.NewService(auth.NewSQLiteRepository(db), issuer, cfg.Auth, log)
	_, err = authService.SeedAccounts(ctx, auth.DemoAccounts)
	require.NoError(t, err)

	registry := file.NewRegistry(file.NewSQLiteRepository(db), local, log)
	fileService := file.NewService(registry, local, events.Nop{}, cfg.Storage.MaxUploadBytes, log)
	shareService := share.NewService(fileService, issuer, events.Nop{}, log)

	return NewHandler(Dependencies{
		Config:       cfg,
		Log:          log,
		AuthService:  authService,
		FileService:  fileService,
		ShareService: shareService,
		StaticDir:    local.Root(),
		Checks: []ReadinessCheck{
			{Component: "sqlite", Check: db.PingContext},
		},
	})
}

type client struct {
	t       *testing.T
	handler http.Handler
	token   string
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	rr := httptest.NewRecorder()
	c.handler.ServeHTTP(rr, req)
	return rr
}

func (c *client) get(path string) *httptest.ResponseRecorder {
	return c.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (c *client) delete(path string) *httptest.ResponseRecorder {
	return c.do(httptest.NewRequest(http.MethodDelete, path, nil))
}

func (c *client) login(code, password string) {
	c.t.Helper()
	body, _ := json.Marshal(map[string]string{"clientCode": code, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := c.do(req)
	require.Equal(c.t, http.StatusOK, rr.Code, rr.Body.String())

	var resp struct {
		Token string `json:"token"`
		Name  string `json:"name"`
	}
	require.NoError(c.t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(c.t, resp.Token)
	c.token = resp.Token
}

func (c *client) upload(field, filename string, content []byte) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("note", "ignored")
	part, err := w.CreateFormFile(field, filename)
	require.NoError(c.t, err)
	_, _ = part.Write(content)
	require.NoError(c.t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.do(req)
}

type entry struct {
	ID           string `json:"id"`
	OriginalName string `json:"original_name"`
	Size         int64  `json:"size"`
	Mime         string `json:"mime"`
	UploadDate   string `json:"upload_date"`
}

func (c *client) list() []entry {
	c.t.Helper()
	rr := c.get("/api/files")
	require.Equal(c.t, http.StatusOK, rr.Code)
	var entries []entry
	require.NoError(c.t, json.Unmarshal(rr.Body.Bytes(), &entries))
	return entries
}

func TestTwoClientsScenario(t *testing.T) {
	handler := newTestHandler(t)
	demo := &client{t: t, handler: handler}
	other := &client{t: t, handler: handler}
	anon := &client{t: t, handler: handler}

	demo.login("DEMO123", "demo2024")
	other.login("CLIENT456", "client2024")

	content := []byte("%PDF-1.4 contract body")
	rr := demo.upload("file", "σύμβαση.pdf", content)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var uploaded struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &uploaded))
	require.NotEmpty(t, uploaded.ID)

	entries := demo.list()
	require.Len(t, entries, 1)
	assert.Equal(t, uploaded.ID, entries[0].ID)
	assert.Equal(t, "σύμβαση.pdf", entries[0].OriginalName)
	assert.Equal(t, int64(len(content)), entries[0].Size)
	_, err := time.Parse(time.RFC3339, entries[0].UploadDate)
	assert.NoError(t, err)

	// the other client sees nothing and cannot touch the file
	assert.Empty(t, other.list())
	assert.Equal(t, http.StatusNotFound, other.get("/api/files/"+uploaded.ID+"/download").Code)
	assert.Equal(t, http.StatusNotFound, other.get("/api/files/"+uploaded.ID+"/share").Code)
	assert.Equal(t, http.StatusNotFound, other.delete("/api/files/"+uploaded.ID).Code)

	rr = demo.get("/api/files/" + uploaded.ID + "/download")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, content, rr.Body.Bytes())
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "attachment")
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))

	rr = demo.get("/api/files/" + uploaded.ID + "/url")
	require.Equal(t, http.StatusOK, rr.Code)
	var located struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &located))
	require.True(t, strings.HasPrefix(located.URL, "/uploads/"), located.URL)
	rr = anon.get(located.URL)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, content, rr.Body.Bytes())

	rr = demo.get("/api/files/" + uploaded.ID + "/share")
	require.Equal(t, http.StatusOK, rr.Code)
	var shared struct {
		URL       string    `json:"url"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &shared))
	link, err := url.Parse(shared.URL)
	require.NoError(t, err)
	assert.Equal(t, "example.com", link.Host)
	require.True(t, strings.HasPrefix(link.Path, "/api/shared/"), link.Path)

	rr = anon.get(link.Path)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, content, rr.Body.Bytes())

	// credential kinds are not interchangeable
	assert.Equal(t, http.StatusNotFound, anon.get("/api/shared/"+demo.token).Code)
	capability := strings.TrimPrefix(link.Path, "/api/shared/")
	impostor := &client{t: t, handler: handler, token: capability}
	assert.Equal(t, http.StatusUnauthorized, impostor.get("/api/files").Code)
	assert.Equal(t, http.StatusNotFound, anon.get("/api/shared/not-a-token").Code)

	rr = demo.delete("/api/files/" + uploaded.ID)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, http.StatusNotFound, demo.delete("/api/files/"+uploaded.ID).Code)
	assert.Equal(t, http.StatusNotFound, anon.get(link.Path).Code)
	assert.Equal(t, http.StatusNotFound, anon.get(located.URL).Code)
	assert.Empty(t, demo.list())
}

func TestUploadValidation(t *testing.T) {
	handler := newTestHandler(t)
	demo := &client{t: t, handler: handler}
	demo.login("DEMO123", "demo2024")

	rr := demo.upload("file", "big.bin", bytes.Repeat([]byte("x"), testMaxUpload+1))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)

	rr = demo.upload("attachment", "a.txt", []byte("wrong field"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = demo.upload("file", "exact.bin", bytes.Repeat([]byte("x"), testMaxUpload))
	assert.Equal(t, http.StatusCreated, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader("plain"))
	req.Header.Set("Content-Type", "text/plain")
	assert.Equal(t, http.StatusBadRequest, demo.do(req).Code)

	assert.Len(t, demo.list(), 1)
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	handler := newTestHandler(t)
	anon := &client{t: t, handler: handler}

	for _, path := range []string{"/api/files", "/api/files/00000000-0000-0000-0000-000000000000/download"} {
		assert.Equal(t, http.StatusUnauthorized, anon.get(path).Code, path)
	}

	body := strings.NewReader(`{"clientCode":"DEMO123","password":"wrong"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/login", body)
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusUnauthorized, anon.do(req).Code)

	demo := &client{t: t, handler: handler}
	demo.login("DEMO123", "demo2024")
	assert.Equal(t, http.StatusNotFound, demo.get("/api/files/not-a-uuid/download").Code)
}

func TestHealthAndMetrics(t *testing.T) {
	handler := newTestHandler(t)
	anon := &client{t: t, handler: handler}

	assert.Equal(t, http.StatusOK, anon.get("/health/live").Code)
	assert.Equal(t, http.StatusOK, anon.get("/health/ready").Code)

	rr := anon.get("/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	body, _ := io.ReadAll(rr.Body)
	assert.Contains(t, string(body), "clientdrop_http_requests_total")
}

func TestCORSPreflight(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/files", nil)
	req.Header.Set("Origin", "https://portal.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
