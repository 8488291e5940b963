package zendesk_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"supportkb/src/infrastructure/integrations/zendesk"
)

func articlePage(title, body string) string {
	return fmt.Sprintf(`<html><body>
		<header class="article-header"><h1>%s</h1></header>
		<div class="article-body"><p>%s</p><li>extra regel</li></div>
		<div class="meta-data"><time datetime="2025-03-01T10:00:00Z"></time></div>
	</body></html>`, title, body)
}

// newHelpCenter serves a category page linking 10 articles, 2 of which are
// malformed (no title, no body).
func newHelpCenter(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/category", func(w http.ResponseWriter, _ *http.Request) {
		var links strings.Builder
		links.WriteString(`<html><body><h1>Voor deelnemers</h1>`)
		for i := 1; i <= 10; i++ {
			fmt.Fprintf(&links, `<a class="article-list-link" href="/articles/%d">Artikel %d</a>`, i, i)
		}
		links.WriteString(`</body></html>`)
		fmt.Fprint(w, links.String())
	})

	for i := 1; i <= 10; i++ {
		switch i {
		case 3:
			mux.HandleFunc("/articles/3", func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, `<html><body><div class="article-body"><p>tekst zonder titel</p></div></body></html>`)
			})
		case 7:
			mux.HandleFunc("/articles/7", func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, `<html><body><header class="article-header"><h1>Lege inhoud</h1></header></body></html>`)
			})
		default:
			title := fmt.Sprintf("Artikel %d", i)
			mux.HandleFunc(fmt.Sprintf("/articles/%d", i), func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, articlePage(title, "inhoud van "+title))
			})
		}
	}

	return httptest.NewServer(mux)
}

func newScraper(t *testing.T, categoryURL string) *zendesk.Scraper {
	t.Helper()
	s, err := zendesk.NewScraper(zendesk.Config{
		CategoryURL:       categoryURL,
		RequestsPerSecond: 1000,
		RetryInterval:     time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewScraper() error = %v", err)
	}
	return s
}

func TestScrapePartialFailures(t *testing.T) {
	srv := newHelpCenter(t)
	defer srv.Close()

	s := newScraper(t, srv.URL+"/category")
	result, err := s.Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}

	if len(result.Articles) != 8 {
		t.Errorf("Scrape() returned %d articles, want 8", len(result.Articles))
	}
	if len(result.Failures) != 2 {
		t.Errorf("Scrape() reported %d failures, want 2", len(result.Failures))
	}

	for _, a := range result.Articles {
		if a.Title == "" || a.Content == "" || a.URL == "" {
			t.Errorf("article missing required field: %+v", a)
		}
		if a.Category != "Voor deelnemers" {
			t.Errorf("article category = %q, want category page title", a.Category)
		}
		if a.UpdatedAt.IsZero() {
			t.Error("article UpdatedAt not parsed")
		}
	}
}

func TestScrapeUnreachableSite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s := newScraper(t, srv.URL+"/category")
	if _, err := s.Scrape(context.Background()); !errors.Is(err, zendesk.ErrNoPages) {
		t.Errorf("Scrape() error = %v, want ErrNoPages", err)
	}
}

func TestScrapeRetriesTransientErrors(t *testing.T) {
	var categoryHits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/category", func(w http.ResponseWriter, _ *http.Request) {
		// First two attempts fail with a 503, the third succeeds.
		if atomic.AddInt32(&categoryHits, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `<html><body><h1>Cat</h1><a class="article-list-link" href="/articles/1">A</a></body></html>`)
	})
	mux.HandleFunc("/articles/1", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, articlePage("Artikel 1", "inhoud"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := newScraper(t, srv.URL+"/category")
	result, err := s.Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if len(result.Articles) != 1 {
		t.Errorf("Scrape() returned %d articles, want 1", len(result.Articles))
	}
	if hits := atomic.LoadInt32(&categoryHits); hits != 3 {
		t.Errorf("category page fetched %d times, want 3 (two retries)", hits)
	}
}

func TestScrapeWalksSectionsAndPagination(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/category", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><h1>Hoofdcategorie</h1>
			<div class="section-name"><a href="/sections/betalingen">Betalingen</a></div>
		</body></html>`)
	})
	mux.HandleFunc("/sections/betalingen", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `<html><body><a class="article-list-link" href="/articles/2">A2</a></body></html>`)
			return
		}
		fmt.Fprint(w, `<html><body>
			<a class="article-list-link" href="/articles/1">A1</a>
			<div class="pagination-next"><a href="/sections/betalingen?page=2"></a></div>
		</body></html>`)
	})
	mux.HandleFunc("/articles/1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articlePage("Artikel 1", "eerste"))
	})
	mux.HandleFunc("/articles/2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articlePage("Artikel 2", "tweede"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := newScraper(t, srv.URL+"/category")
	result, err := s.Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if len(result.Articles) != 2 {
		t.Fatalf("Scrape() returned %d articles, want 2 (section + next page)", len(result.Articles))
	}
	for _, a := range result.Articles {
		if a.Category != "Betalingen" {
			t.Errorf("article category = %q, want section name", a.Category)
		}
	}
}

func TestScrapeCancellation(t *testing.T) {
	srv := newHelpCenter(t)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newScraper(t, srv.URL+"/category")
	if _, err := s.Scrape(ctx); err == nil {
		t.Error("Scrape() with cancelled context expected error")
	}
}
