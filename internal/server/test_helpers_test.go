package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/imitation/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/imitation/backend/internal/database"
	"github.com/MarcoPoloResearchLab/imitation/backend/internal/feed"
	"github.com/MarcoPoloResearchLab/imitation/backend/internal/flashcards"
	"github.com/MarcoPoloResearchLab/imitation/backend/internal/metrics"
	"github.com/MarcoPoloResearchLab/imitation/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testSigningSecret = "integration-secret"
	testAudience      = "authenticated"
)

type testServer struct {
	handler http.Handler
	db      *gorm.DB
	issuer  *auth.TokenIssuer
	metrics *metrics.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "server.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := database.Migrate(db, zap.NewNop()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	verifier, err := auth.NewSecretVerifier(auth.SecretVerifierConfig{
		SigningSecret: []byte(testSigningSecret),
		Audience:      testAudience,
	})
	if err != nil {
		t.Fatalf("failed to create verifier: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		Audience:      testAudience,
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to create issuer: %v", err)
	}

	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to create users service: %v", err)
	}
	feedService, err := feed.NewService(feed.ServiceConfig{Database: db, Authors: userService})
	if err != nil {
		t.Fatalf("failed to create feed service: %v", err)
	}
	registry := metrics.NewRegistry()
	flashcardService, err := flashcards.NewService(flashcards.ServiceConfig{Database: db, Reviews: registry})
	if err != nil {
		t.Fatalf("failed to create flashcards service: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Verifier:   verifier,
		Users:      userService,
		Feed:       feedService,
		Flashcards: flashcardService,
		Metrics:    registry,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return &testServer{handler: handler, db: db, issuer: issuer, metrics: registry}
}

func (s *testServer) token(t *testing.T, subject, email string) string {
	t.Helper()
	token, _, err := s.issuer.IssueToken(auth.Identity{Subject: subject, Email: email})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else if raw, ok := body.(string); ok {
		reader = bytes.NewReader([]byte(raw))
	} else {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeJSON[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	if err := json.Unmarshal(recorder.Body.Bytes(), &value); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return value
}

func expectStatus(t *testing.T, recorder *httptest.ResponseRecorder, want int) {
	t.Helper()
	if recorder.Code != want {
		t.Fatalf("unexpected status: got %d, want %d, body %s", recorder.Code, want, recorder.Body.String())
	}
}
