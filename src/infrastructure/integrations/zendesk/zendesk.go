package zendesk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"supportkb/src/log"
)

// ErrNoPages is returned when not a single page could be retrieved: the
// support site is unreachable. Individual page failures are reported in the
// Result instead and never abort a run.
var ErrNoPages = errors.New("zendesk: no pages could be retrieved")

// Article is a scraped support article, not yet stored.
type Article struct {
	Title     string
	Content   string
	URL       string
	Category  string
	UpdatedAt time.Time
}

// PageFailure records one page that was skipped after retries or because a
// required field was missing.
type PageFailure struct {
	URL    string
	Reason string
}

// Result is the outcome of one scrape run.
type Result struct {
	Articles []Article
	Failures []PageFailure
}

// Archive receives the raw HTML of every fetched page, typically backed by
// an object store. May be nil.
type Archive interface {
	ArchivePage(ctx context.Context, pageURL string, body []byte) error
}

// Config configures a Scraper.
type Config struct {
	// CategoryURL is the help-center category page the scrape starts from.
	CategoryURL string
	// RequestsPerSecond limits outbound fetches. Zero means 2 req/s.
	RequestsPerSecond float64
	// MaxRetries bounds the retry attempts per page. Zero means 3.
	MaxRetries uint64
	// RetryInterval is the initial backoff interval. Zero means 1s.
	RetryInterval time.Duration
	// HTTPClient is the client used for fetches; nil uses a 30s-timeout client.
	HTTPClient *http.Client
	// Archive stores raw page HTML; nil disables archiving.
	Archive Archive
}

// Scraper walks a Zendesk help-center category and extracts its articles.
type Scraper struct {
	categoryURL   string
	httpClient    *http.Client
	limiter       *rate.Limiter
	maxRetries    uint64
	retryInterval time.Duration
	archive       Archive
}

// NewScraper creates a Scraper for the configured category page.
func NewScraper(cfg Config) (*Scraper, error) {
	if cfg.CategoryURL == "" {
		return nil, errors.New("zendesk: category URL is required")
	}
	if _, err := url.Parse(cfg.CategoryURL); err != nil {
		return nil, fmt.Errorf("zendesk: invalid category URL: %w", err)
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Scraper{
		categoryURL:   cfg.CategoryURL,
		httpClient:    cfg.HTTPClient,
		limiter:       rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		maxRetries:    cfg.MaxRetries,
		retryInterval: cfg.RetryInterval,
		archive:       cfg.Archive,
	}, nil
}

// Scrape walks the category page, its sections and their pagination, and
// returns every parsable article. Articles are deduplicated by URL with the
// last one seen winning. Pages that fail after retries or parse without a
// required field are skipped and reported; the run errors only when nothing
// at all was retrievable.
func (s *Scraper) Scrape(ctx context.Context) (*Result, error) {
	result := &Result{}
	byURL := make(map[string]int) // article URL -> index in result.Articles
	visited := make(map[string]bool)
	retrieved := 0

	categoryDoc, err := s.fetchDocument(ctx, s.categoryURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrNoPages, err)
	}
	retrieved++
	visited[s.categoryURL] = true
	categoryName := strings.TrimSpace(categoryDoc.Find("h1").First().Text())

	type listing struct {
		url      string
		category string
	}
	queue := []listing{}

	// Articles linked directly from the category page.
	articleURLs := s.collectArticleLinks(categoryDoc, s.categoryURL)

	// Sections get their own listing pages.
	categoryDoc.Find(".section-name a, .section-list .section-item a").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		abs, err := s.resolve(s.categoryURL, href)
		if err != nil || visited[abs] {
			return
		}
		visited[abs] = true
		name := strings.TrimSpace(sel.Text())
		if name == "" {
			name = categoryName
		}
		queue = append(queue, listing{url: abs, category: name})
	})

	type pending struct {
		url      string
		category string
	}
	var articles []pending
	for _, u := range articleURLs {
		articles = append(articles, pending{url: u, category: categoryName})
	}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		l := queue[0]
		queue = queue[1:]

		doc, err := s.fetchDocument(ctx, l.url)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			result.Failures = append(result.Failures, PageFailure{URL: l.url, Reason: err.Error()})
			continue
		}
		retrieved++

		for _, u := range s.collectArticleLinks(doc, l.url) {
			articles = append(articles, pending{url: u, category: l.category})
		}

		// Follow pagination within the section.
		if next, ok := doc.Find(".pagination-next a").First().Attr("href"); ok {
			abs, err := s.resolve(l.url, next)
			if err == nil && !visited[abs] {
				visited[abs] = true
				queue = append(queue, listing{url: abs, category: l.category})
			}
		}
	}

	for _, p := range articles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if visited[p.url] {
			continue
		}
		visited[p.url] = true

		doc, err := s.fetchDocument(ctx, p.url)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			result.Failures = append(result.Failures, PageFailure{URL: p.url, Reason: err.Error()})
			continue
		}
		retrieved++

		article, err := parseArticle(doc, p.url, p.category)
		if err != nil {
			result.Failures = append(result.Failures, PageFailure{URL: p.url, Reason: err.Error()})
			continue
		}

		// Last seen wins.
		if i, ok := byURL[article.URL]; ok {
			result.Articles[i] = article
		} else {
			byURL[article.URL] = len(result.Articles)
			result.Articles = append(result.Articles, article)
		}
	}

	if retrieved == 0 {
		return nil, ErrNoPages
	}

	log.Info("scrape finished",
		"articles", len(result.Articles),
		"failures", len(result.Failures),
		"pages", retrieved)
	return result, nil
}

// collectArticleLinks extracts absolute article URLs from a listing page.
func (s *Scraper) collectArticleLinks(doc *goquery.Document, pageURL string) []string {
	var urls []string
	doc.Find(".article-list-link, .article-list .article-item a").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		abs, err := s.resolve(pageURL, href)
		if err != nil {
			return
		}
		urls = append(urls, abs)
	})
	return urls
}

func (s *Scraper) resolve(pageURL, href string) (string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

// fetchDocument retrieves a page with rate limiting and bounded exponential
// backoff, archiving the raw HTML when an archive is configured.
func (s *Scraper) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	var body []byte

	operation := func() error {
		if err := s.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("status %d fetching %s", resp.StatusCode, pageURL)
		default:
			return backoff.Permanent(fmt.Errorf("status %d fetching %s", resp.StatusCode, pageURL))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.retryInterval
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, s.maxRetries), ctx)); err != nil {
		return nil, err
	}

	if s.archive != nil {
		if err := s.archive.ArchivePage(ctx, pageURL, body); err != nil {
			log.Error(err, "failed to archive page", "url", pageURL)
		}
	}

	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

// parseArticle extracts the structured fields from an article page. Title
// and body are required; a page missing either is a parse failure.
func parseArticle(doc *goquery.Document, pageURL, category string) (Article, error) {
	title := strings.TrimSpace(doc.Find(".article-header h1").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	if title == "" {
		return Article{}, fmt.Errorf("article at %s has no title", pageURL)
	}

	var parts []string
	doc.Find(".article-body p, .article-body h1, .article-body h2, .article-body h3, .article-body h4, .article-body h5, .article-body h6, .article-body li").Each(func(_ int, sel *goquery.Selection) {
		if text := strings.TrimSpace(sel.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	if len(parts) == 0 {
		return Article{}, fmt.Errorf("article at %s has no body", pageURL)
	}

	updatedAt := time.Now().UTC()
	if raw, ok := doc.Find(".meta-data time").First().Attr("datetime"); ok {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			updatedAt = parsed
		}
	}

	return Article{
		Title:     title,
		Content:   strings.Join(parts, "\n"),
		URL:       pageURL,
		Category:  category,
		UpdatedAt: updatedAt,
	}, nil
}
