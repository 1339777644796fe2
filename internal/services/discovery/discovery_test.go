package discovery_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"citetrack/internal/config"
	"citetrack/internal/item"
	"citetrack/internal/services"
	"citetrack/internal/services/discovery"
)

func serveHTML(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newDiscoverer(max int) *discovery.Discoverer {
	return discovery.New(config.Discovery{TimeoutSeconds: 2, MaxCandidates: max})
}

func TestDiscoverFindsIdentifiers(t *testing.T) {
	srv := serveHTML(t, `<html><head>
		<meta name="citation_doi" content="10.1234/meta.doi">
		<meta name="citation_arxiv_id" content="2101.00001">
	</head><body>
		<a href="https://doi.org/10.5555/anchor.doi">full text</a>
		<a href="https://arxiv.org/abs/2202.12345v2">preprint</a>
		<p>As discussed in 10.9999/text.scan, results vary.</p>
	</body></html>`)

	candidates, err := newDiscoverer(10).Discover(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(candidates) != 5 {
		t.Fatalf("candidates = %+v, want 5", candidates)
	}

	// Meta tags come first, then anchors, then the text scan.
	want := []struct {
		kind   string
		value  string
		method string
	}{
		{item.IdentifierDOI, "10.1234/meta.doi", discovery.MethodMetaTag},
		{item.IdentifierArxiv, "2101.00001", discovery.MethodMetaTag},
		{item.IdentifierDOI, "10.5555/anchor.doi", discovery.MethodAnchor},
		{item.IdentifierArxiv, "2202.12345", discovery.MethodAnchor},
		{item.IdentifierDOI, "10.9999/text.scan", discovery.MethodTextScan},
	}
	for i, w := range want {
		got := candidates[i]
		if got.Kind != w.kind || got.Value != w.value || got.Method != w.method {
			t.Errorf("candidate %d = %+v, want %+v", i, got, w)
		}
		if got.ID != i+1 {
			t.Errorf("candidate %d id = %d", i, got.ID)
		}
		if got.Status != item.CandidateUnreviewed {
			t.Errorf("candidate %d status = %s", i, got.Status)
		}
	}
}

func TestDiscoverDeduplicates(t *testing.T) {
	srv := serveHTML(t, `<html><head>
		<meta name="citation_doi" content="10.1234/same">
	</head><body>
		<a href="https://doi.org/10.1234/same">link</a>
		<p>See 10.1234/same for details.</p>
	</body></html>`)

	candidates, err := newDiscoverer(10).Discover(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates = %+v, want the duplicate collapsed", candidates)
	}
	if candidates[0].Method != discovery.MethodMetaTag {
		t.Fatalf("first sighting should win: %+v", candidates[0])
	}
}

func TestDiscoverCapsCandidates(t *testing.T) {
	body := "<html><body>"
	for i := 0; i < 8; i++ {
		body += fmt.Sprintf("<p>10.1000/paper.%d</p>\n", i)
	}
	body += "</body></html>"
	srv := serveHTML(t, body)

	candidates, err := newDiscoverer(3).Discover(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("candidates = %d, want cap of 3", len(candidates))
	}
}

func TestDiscoverEmptyPage(t *testing.T) {
	srv := serveHTML(t, `<html><body><p>No identifiers here.</p></body></html>`)

	candidates, err := newDiscoverer(10).Discover(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("candidates = %+v, want none", candidates)
	}
}

func TestDiscoverUnreadablePage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	_, err := newDiscoverer(10).Discover(context.Background(), srv.URL)
	if !errors.Is(err, services.ErrContentUnreadable) {
		t.Fatalf("err = %v, want content unreadable", err)
	}
}

func TestDiscoverServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newDiscoverer(10).Discover(context.Background(), srv.URL)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("err = %v, want transient", err)
	}
}
