package scraper

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/deusflow/marketbrief/internal/logger"
)

// ErrUnavailable marks every soft extraction failure: timeouts, non-200
// responses, paywalled or junk pages. Callers fall back to the feed summary.
var ErrUnavailable = errors.New("scraper: article unavailable")

const (
	minTextLen = 400   // below this the page is likely nav/paywall junk
	maxTextLen = 20000 // cap payload passed downstream
	maxBody    = 2 << 20
	userAgent  = "Mozilla/5.0 (compatible; marketbrief/1.0)"
)

// Scraper is the best-effort article-text collaborator.
type Scraper struct {
	client *http.Client
}

// New builds a Scraper with the given per-request timeout. insecureTLS disables
// certificate verification for this client only; it is loud on purpose.
func New(timeout time.Duration, insecureTLS bool) *Scraper {
	client := &http.Client{Timeout: timeout}
	if insecureTLS {
		logger.Warn("TLS certificate verification DISABLED for article fetches")
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return &Scraper{client: client}
}

// Extract fetches the page at rawURL and returns its article text, collapsed to
// single-space whitespace and bounded to [minTextLen, maxTextLen]. Any failure
// is reported as ErrUnavailable.
func (s *Scraper) Extract(ctx context.Context, rawURL string) (string, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: bad url %q", ErrUnavailable, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	text := extractReadability(body, pageURL)
	if text == "" {
		text = extractGeneric(body)
	}

	text = collapse(text)
	runeCount := utf8.RuneCountInString(text)
	if runeCount < minTextLen {
		return "", fmt.Errorf("%w: extracted %d chars", ErrUnavailable, runeCount)
	}
	if runeCount > maxTextLen {
		text = truncateRunes(text, maxTextLen)
	}
	return text, nil
}

func extractReadability(body []byte, pageURL *url.URL) string {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return ""
	}
	return article.TextContent
}

// extractGeneric is the fallback for pages readability cannot handle: strip
// chrome elements and walk the usual content selectors.
func extractGeneric(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	doc.Find("script, style, nav, footer, aside, form").Remove()

	selectors := []string{
		"article p",
		".article-body p",
		".post-content p",
		".entry-content p",
		"main p",
		"#content p",
		"p",
	}

	var paragraphs []string
	for _, selector := range selectors {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			text := strings.TrimSpace(sel.Text())
			if len(text) > 20 {
				paragraphs = append(paragraphs, text)
			}
		})
		if len(paragraphs) >= 3 {
			break
		}
		paragraphs = paragraphs[:0]
	}
	if len(paragraphs) == 0 {
		return strings.TrimSpace(doc.Text())
	}
	return strings.Join(paragraphs, " ")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateRunes cuts on a rune boundary, preferring a sentence end when one
// lands reasonably deep into the text.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	trimmed := string(runes[:n])
	if idx := strings.LastIndex(trimmed, ". "); idx > n/2 {
		return trimmed[:idx+1]
	}
	return trimmed
}
