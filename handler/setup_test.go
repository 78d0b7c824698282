package handler

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/preferrrr/blocker-server/config"
	"github.com/preferrrr/blocker-server/middleware"
	"github.com/preferrrr/blocker-server/service"
)

func testConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:        "test-secret",
			TokenExpireHours: 1,
		},
		Users: []config.User{
			{Email: "alice@test.com", Name: "Alice", Password: "alice-pw"},
			{Email: "bob@test.com", Name: "Bob", Password: "bob-pw"},
			{Email: "carol@test.com", Name: "Carol", Password: "carol-pw"},
		},
	}
}

// setupRouter wires the handlers the way main does, on an in-memory store
// with the ledger, notifier and archive left out.
func setupRouter(t *testing.T) (*gin.Engine, *config.Config, service.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := testConfig()
	store := service.NewMemoryStore()
	ids := service.NewConfigIdentityStore(cfg.Users)
	engine := service.NewSignEngine(store, ids, nil, nil, nil)

	authHandler := NewAuthHandler(cfg)
	contractHandler := NewContractHandler(store)
	signHandler := NewSignHandler(engine, nil)

	r := gin.New()
	r.POST("/api/auth/login", authHandler.Login)

	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(&cfg.Auth))
	api.GET("/auth/me", authHandler.GetCurrentUser)
	api.POST("/contracts", contractHandler.Create)
	api.GET("/contracts", contractHandler.List)
	api.GET("/contracts/:id", contractHandler.Get)
	api.PUT("/contracts/:id", contractHandler.Update)
	api.DELETE("/contracts/:id", contractHandler.Delete)
	api.POST("/contracts/:id/proceed", signHandler.Proceed)
	api.POST("/contracts/:id/sign", signHandler.Sign)
	api.POST("/contracts/:id/break", signHandler.Break)
	api.GET("/contracts/:id/signs", signHandler.GetSigns)
	api.POST("/contracts/:id/cancel", signHandler.ProposeCancel)
	api.POST("/contracts/:id/cancel/sign", signHandler.SignCancel)
	api.GET("/contracts/:id/archive", signHandler.ArchiveURL)

	return r, cfg, store
}

func tokenFor(t *testing.T, cfg *config.Config, email string) string {
	t.Helper()
	user := cfg.FindUser(email)
	if user == nil {
		t.Fatalf("no such test user: %s", email)
	}
	token, _, err := middleware.GenerateToken(user.Email, user.Name, &cfg.Auth)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	return token
}

// doJSON performs a request with an optional bearer token and JSON body and
// returns the recorder.
func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return out
}
