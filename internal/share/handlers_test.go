package share

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jimdaga/newscast/internal/auth"
	"github.com/jimdaga/newscast/internal/models"
)

func newRouter(reg *Registry, user *models.User) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/s/:token", ResolveHandler(reg))

	api := r.Group("/api", func(c *gin.Context) {
		auth.SetUser(c, user)
		c.Next()
	})
	api.POST("/editions/:id/shares", CreateHandler(reg))
	api.GET("/editions/:id/shares", ListHandler(reg))
	api.DELETE("/shares/:id", RevokeHandler(reg))
	return r
}

func proUser(id uint) *models.User {
	u := &models.User{Plan: "pro"}
	u.ID = id
	return u
}

func TestShareLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t, nil)
	e := f.edition(t)
	owner := newRouter(f.reg, proUser(7))

	w := httptest.NewRecorder()
	owner.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/editions/"+strconv.Itoa(int(e.ID))+"/shares", nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		Data LinkData `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}

	w = httptest.NewRecorder()
	owner.ServeHTTP(w, httptest.NewRequest(http.MethodGet, created.Data.URL, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("resolve: expected 200, got %d", w.Code)
	}
	var resolved ResolveResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resolved); err != nil {
		t.Fatal(err)
	}
	if resolved.Data.Text != "news" || resolved.AudioURLs["default"] == "" {
		t.Errorf("unexpected resolve body %+v", resolved)
	}
	if resolved.Data.ID != 0 {
		t.Error("public payload must not expose the edition id")
	}

	w = httptest.NewRecorder()
	newRouter(f.reg, proUser(8)).ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/shares/"+strconv.Itoa(int(created.Data.ID)), nil))
	if w.Code != http.StatusForbidden {
		t.Errorf("revoke by stranger: expected 403, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	owner.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/shares/"+strconv.Itoa(int(created.Data.ID)), nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("revoke by owner: expected 204, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	owner.ServeHTTP(w, httptest.NewRequest(http.MethodGet, created.Data.URL, nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("resolve revoked: expected 404, got %d", w.Code)
	}
}

func TestResolveHandlerExpired(t *testing.T) {
	f := newFixture(t, nil)
	e := f.edition(t)
	link, err := f.reg.Create(context.Background(), e.ID, 7)
	if err != nil {
		t.Fatal(err)
	}
	f.clock.Set(link.ExpiresAt.Add(time.Second))

	w := httptest.NewRecorder()
	newRouter(f.reg, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/s/"+link.ShareToken, nil))
	if w.Code != http.StatusGone {
		t.Fatalf("expected 410, got %d", w.Code)
	}
}

func TestCreateHandlerFreePlan(t *testing.T) {
	f := newFixture(t, nil)
	e := f.edition(t)
	user := &models.User{Plan: "free"}
	user.ID = 9

	w := httptest.NewRecorder()
	newRouter(f.reg, user).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/editions/"+strconv.Itoa(int(e.ID))+"/shares", nil))
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}
