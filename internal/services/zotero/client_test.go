package zotero_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"citetrack/internal/config"
	"citetrack/internal/item"
	"citetrack/internal/services"
	"citetrack/internal/services/zotero"
)

func mustCitation() item.Citation {
	return item.Citation{
		Title:    "Created Work",
		Creators: []item.Creator{{Family: "Roe", Given: "Sam"}},
		Date:     "2023",
	}
}

func newClient(t *testing.T, baseURL string) *zotero.Client {
	t.Helper()
	client, err := zotero.New(config.Zotero{BaseURL: baseURL, TimeoutSeconds: 2})
	if err != nil {
		t.Fatalf("zotero.New: %v", err)
	}
	return client
}

func TestSaveURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/save" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["url"] != "https://example.org/article" {
			t.Errorf("url = %q", body["url"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"key":   "ABCD1234",
			"title": "An Article",
			"date":  "2024-01-02",
			"creators": []map[string]string{
				{"firstName": "Jan", "lastName": "Doe"},
			},
		})
	}))
	defer srv.Close()

	key, cit, err := newClient(t, srv.URL).SaveURL(context.Background(), "https://example.org/article")
	if err != nil {
		t.Fatalf("SaveURL: %v", err)
	}
	if key != "ABCD1234" {
		t.Fatalf("key = %q", key)
	}
	if cit.Title != "An Article" || len(cit.Creators) != 1 || cit.Creators[0].Family != "Doe" {
		t.Fatalf("citation = %+v", cit)
	}
	if !cit.Complete() {
		t.Fatalf("citation with title, creator, date should be complete: %+v", cit)
	}
}

func TestSaveURLNoTranslator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no translator available", http.StatusNotFound)
	}))
	defer srv.Close()

	_, _, err := newClient(t, srv.URL).SaveURL(context.Background(), "https://example.org/blob")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestVerifyItem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/items/GOOD":
			json.NewEncoder(w).Encode(map[string]any{"key": "GOOD", "title": "Known Work"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := newClient(t, srv.URL)

	cit, err := client.VerifyItem(context.Background(), "GOOD")
	if err != nil {
		t.Fatalf("VerifyItem: %v", err)
	}
	if cit.Title != "Known Work" {
		t.Fatalf("citation = %+v", cit)
	}

	if _, err := client.VerifyItem(context.Background(), "MISSING"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestCreateAndRemoveLink(t *testing.T) {
	var deleted string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/items":
			json.NewEncoder(w).Encode(map[string]string{"key": "NEW1"})
		case r.Method == http.MethodDelete:
			deleted = r.URL.Path
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := newClient(t, srv.URL)
	key, err := client.CreateLink(context.Background(), mustCitation())
	if err != nil {
		t.Fatalf("CreateLink: %v", err)
	}
	if key != "NEW1" {
		t.Fatalf("key = %q", key)
	}

	if err := client.RemoveLink(context.Background(), "NEW1"); err != nil {
		t.Fatalf("RemoveLink: %v", err)
	}
	if deleted != "/items/NEW1" {
		t.Fatalf("deleted path = %q", deleted)
	}
}

func TestUnreachableManager(t *testing.T) {
	// A closed server reliably refuses connections.
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := newClient(t, srv.URL).VerifyItem(context.Background(), "KEY")
	if !errors.Is(err, services.ErrUnavailable) {
		t.Fatalf("err = %v, want unavailable", err)
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := zotero.New(config.Zotero{}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("err = %v, want configuration error", err)
	}
}
