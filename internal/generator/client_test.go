package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jimdaga/newscast/internal/models"
)

var key = models.EditionKey{Type: models.EditionMorning, Region: "Global", Language: "English", Date: "2026-03-14"}

func TestStubMode(t *testing.T) {
	c, err := NewClient("", "", 0, true, 0)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	res, err := c.Search(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(res.Content, "Morning edition") || len(res.Links) == 0 {
		t.Errorf("unexpected stub search result %+v", res)
	}

	script, err := c.WriteScript(ctx, key, res.Content, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(script, "Alex:") || !strings.Contains(script, "\nSam:") {
		t.Errorf("stub script should use default hosts, got %q", script)
	}

	audio, err := c.SynthesizeAudio(ctx, script, "warm")
	if err != nil || audio.URL == "" {
		t.Fatalf("unexpected audio %+v, %v", audio, err)
	}
}

func TestSearchOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Generator-Secret") != "s3cret" {
			t.Errorf("missing secret header")
		}
		var req searchRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Region != "Global" || req.Date != "2026-03-14" {
			t.Errorf("unexpected request %+v", req)
		}
		w.Write([]byte(`{"content":"Top stories","links":[{"uri":"https://a.example","title":"A"}],"flash_summary":"Short"}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL+"/", "s3cret", 0, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	res, err := c.Search(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	if res.Content != "Top stories" || res.Links[0].URI != "https://a.example" || res.FlashSummary != "Short" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestSearchRejectsInvalidResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"links":[]}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, "", 0, false, 0)
	if _, err := c.Search(context.Background(), key); err == nil {
		t.Fatal("expected validation error for response without content")
	}
}

func TestNonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exhausted", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, "", 0, false, 0)
	if _, err := c.RenderCover(context.Background(), key, "content"); err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status error, got %v", err)
	}
}
