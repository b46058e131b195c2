package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cycore-edu/cycore/backend/internal/identity"
	chatservice "github.com/cycore-edu/cycore/backend/internal/service/chat"
	"github.com/cycore-edu/cycore/backend/internal/service/title"
	tutorservice "github.com/cycore-edu/cycore/backend/internal/service/tutor"
	"github.com/cycore-edu/cycore/backend/internal/trigger"
)

const testSecret = "router-secret"

func setupRouter(health func(*http.Request) error) http.Handler {
	chatSvc := chatservice.NewService(nil, nil)
	tutorSvc := tutorservice.NewService(chatSvc, nil, title.NewService(nil, nil), nil, tutorservice.WithCoin(trigger.Never))
	return NewRouter(Deps{
		Chat:           chatSvc,
		Tutor:          tutorSvc,
		Auth:           identity.NewAuthenticator(testSecret, false, nil),
		AllowedOrigins: []string{"http://localhost:5173"},
		Health:         health,
	})
}

func TestHealthz(t *testing.T) {
	r := setupRouter(nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	r = setupRouter(func(*http.Request) error { return errors.New("store down") })
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

func TestTutorProfileHidesInstruction(t *testing.T) {
	r := setupRouter(nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/tutor", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["name"] != "CyCore" {
		t.Fatalf("unexpected profile %+v", body)
	}
	if _, ok := body["systemInstruction"]; ok {
		t.Fatal("system instruction must not be exposed")
	}
	categories, ok := body["categories"].([]any)
	if !ok || len(categories) == 0 || categories[0] != "auth_access" {
		t.Fatalf("unexpected categories %v", body["categories"])
	}
}

func TestAnonymousCookieKeepsSession(t *testing.T) {
	r := setupRouter(nil)

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/conversations", nil))
	cookies := first.Result().Cookies()
	if len(cookies) == 0 || cookies[0].Name != identity.AnonCookie {
		t.Fatalf("expected anonymous cookie, got %+v", cookies)
	}

	var list struct {
		ActiveID string `json:"activeId"`
	}
	if err := json.NewDecoder(first.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/conversations/"+list.ActiveID, nil)
	req.AddCookie(cookies[0])
	second := httptest.NewRecorder()
	r.ServeHTTP(second, req)
	if second.Code != http.StatusOK {
		t.Fatalf("expected same session with cookie, got %d", second.Code)
	}

	stranger := httptest.NewRecorder()
	r.ServeHTTP(stranger, httptest.NewRequest(http.MethodGet, "/api/conversations/"+list.ActiveID, nil))
	if stranger.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another visitor, got %d", stranger.Code)
	}
}

func TestBearerTokenIdentifiesUser(t *testing.T) {
	r := setupRouter(nil)
	token, err := identity.IssueToken(testSecret, "user-42", "Ada", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken err: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var list struct {
		User identity.User `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.User.ID != "user-42" || !list.User.Authenticated {
		t.Fatalf("unexpected user %+v", list.User)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://localhost:5173"})
	req := httptest.NewRequest(http.MethodGet, "/api/ws", nil)
	if !check(req) {
		t.Fatal("requests without origin should pass")
	}
	req.Header.Set("Origin", "http://evil.example")
	if check(req) {
		t.Fatal("unexpected origin accepted")
	}
	req.Header.Set("Origin", "http://localhost:5173")
	if !check(req) {
		t.Fatal("allowed origin rejected")
	}
}
