package editions

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jimdaga/newscast/internal/auth"
	"github.com/jimdaga/newscast/internal/models"
)

func newRouter(f *fixture, user *models.User) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if user != nil {
			auth.SetUser(c, user)
		}
		c.Next()
	})
	r.POST("/api/editions", GenerateHandler(f.svc))
	r.GET("/api/editions/usage", UsageHandler(f.ledger))
	r.GET("/api/editions/:id", GetHandler(f.svc))
	return r
}

func postEdition(r http.Handler, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/editions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestGenerateHandler(t *testing.T) {
	f := newFixture(t, &fakeGenerator{})
	pro := &models.User{Plan: "pro"}
	pro.ID = 1
	r := newRouter(f, pro)

	w := postEdition(r, `{"editionType":"morning","region":"Global","language":"English"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp GenerateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Cached || resp.Degraded || resp.Data.ID == 0 || resp.Data.Date != "2026-03-14" || len(resp.Stages) != 4 {
		t.Fatalf("unexpected response %+v", resp)
	}

	w = postEdition(r, `{"editionType":"morning","region":"Global","language":"English"}`)
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Cached {
		t.Error("expected second request to be served from cache")
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/editions/usage", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("usage: expected 200, got %d", w.Code)
	}
	var usage struct {
		Editions struct {
			Used  int `json:"used"`
			Limit int `json:"limit"`
		} `json:"editions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &usage); err != nil {
		t.Fatal(err)
	}
	if usage.Editions.Used != 1 || usage.Editions.Limit != 20 {
		t.Errorf("unexpected usage %+v", usage)
	}
}

func TestGenerateHandlerErrors(t *testing.T) {
	free := &models.User{Plan: "free"}
	free.ID = 2

	tests := []struct {
		name       string
		gen        *fakeGenerator
		user       *models.User
		body       string
		wantStatus int
		wantError  string
	}{
		{"unauthenticated", &fakeGenerator{}, nil, `{}`, http.StatusUnauthorized, "unauthorized"},
		{"missing fields", &fakeGenerator{}, free, `{"editionType":"morning"}`, http.StatusBadRequest, ""},
		{"unknown type", &fakeGenerator{}, free, `{"editionType":"brunch","region":"Global","language":"English"}`, http.StatusBadRequest, "invalid_request"},
		{"restricted region", &fakeGenerator{}, free, `{"editionType":"morning","region":"Asia","language":"English"}`, http.StatusForbidden, "plan_restricted"},
		{"search failure", &fakeGenerator{searchErr: errors.New("provider said: key=abc")}, free, `{"editionType":"morning","region":"Global","language":"English"}`, http.StatusBadGateway, "generation_failed"},
		{"unknown plan", &fakeGenerator{}, &models.User{Plan: "platinum"}, `{"editionType":"morning","region":"Global","language":"English"}`, http.StatusInternalServerError, "account plan misconfigured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.gen)
			w := postEdition(newRouter(f, tt.user), tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if strings.Contains(w.Body.String(), "key=abc") {
				t.Error("provider output leaked into the response")
			}
			if tt.wantError == "" {
				return
			}
			var body map[string]interface{}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body["error"] != tt.wantError {
				t.Errorf("expected error %q, got %v", tt.wantError, body["error"])
			}
		})
	}
}

func TestGenerateHandlerQuotaExceeded(t *testing.T) {
	f := newFixture(t, &fakeGenerator{})
	free := &models.User{Plan: "free"}
	free.ID = 2
	r := newRouter(f, free)

	for _, typ := range []string{"morning", "midday", "evening"} {
		if w := postEdition(r, `{"editionType":"`+typ+`","region":"Global","language":"English"}`); w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", typ, w.Code)
		}
	}
	f.clock.Advance(2 * f.svc.cache.TTL())

	w := postEdition(r, `{"editionType":"morning","region":"Global","language":"English"}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d: %s", w.Code, w.Body.String())
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["error"] != "quota_exceeded" || body["upgrade"] != true {
		t.Errorf("unexpected body %v", body)
	}
}

func TestGetHandler(t *testing.T) {
	f := newFixture(t, &fakeGenerator{})
	pro := &models.User{Plan: "pro"}
	pro.ID = 1
	r := newRouter(f, pro)
	postEdition(r, `{"editionType":"morning","region":"Global","language":"English"}`)

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/api/editions/1", http.StatusOK},
		{"/api/editions/99", http.StatusNotFound},
		{"/api/editions/abc", http.StatusBadRequest},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if w.Code != tt.wantStatus {
			t.Errorf("%s: expected %d, got %d", tt.path, tt.wantStatus, w.Code)
		}
	}
}

func TestGenerateHandlerReportsRetryScheduled(t *testing.T) {
	f := newFixture(t, &fakeGenerator{searchErr: errors.New("boom")})
	pro := &models.User{Plan: "pro"}
	pro.ID = 1
	r := newRouter(f, pro)

	w := postEdition(r, `{"editionType":"morning","region":"Global","language":"English"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["retry_scheduled"] != true || body["stage"] != "search" {
		t.Errorf("unexpected body %v", body)
	}
}
