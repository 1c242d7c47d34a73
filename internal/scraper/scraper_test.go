package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestScraper() *Scraper {
	return New(5*time.Second, false)
}

func articleHTML(paragraphs int, sentence string) string {
	var b strings.Builder
	b.WriteString("<html><head><title>Test</title></head><body><nav>menu menu</nav><article>")
	for i := 0; i < paragraphs; i++ {
		fmt.Fprintf(&b, "<p>%s</p>", sentence)
	}
	b.WriteString("</article><footer>footer junk</footer></body></html>")
	return b.String()
}

const longSentence = "Markets rallied sharply after the central bank signalled that the tightening cycle has likely reached its peak, with traders repricing the path of policy rates into next year."

func TestExtractReturnsArticleText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articleHTML(6, longSentence))
	}))
	defer srv.Close()

	text, err := newTestScraper().Extract(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(text, "Markets rallied sharply") {
		t.Errorf("text missing article body: %q", text[:80])
	}
	if strings.Contains(text, "footer junk") || strings.Contains(text, "menu menu") {
		t.Errorf("text contains page chrome: %q", text)
	}
	if strings.Contains(text, "\n") || strings.Contains(text, "  ") {
		t.Error("whitespace not collapsed")
	}
}

func TestExtractRejectsShortBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body><article><p>Too short to be an article.</p></article></body></html>")
	}))
	defer srv.Close()

	_, err := newTestScraper().Extract(context.Background(), srv.URL)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestExtractRejectsShortMultibyteText(t *testing.T) {
	// Under 400 runes yet well over 400 bytes; the floor counts characters.
	const cyrillic = "Рынки выросли после заседания центрального банка, так как трейдеры пересмотрели траекторию ставок на следующий год."
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articleHTML(3, cyrillic))
	}))
	defer srv.Close()

	_, err := newTestScraper().Extract(context.Background(), srv.URL)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestExtractRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestScraper().Extract(context.Background(), srv.URL)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestExtractCapsLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articleHTML(200, longSentence))
	}))
	defer srv.Close()

	text, err := newTestScraper().Extract(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(text) > maxTextLen {
		t.Errorf("len = %d, want <= %d", len(text), maxTextLen)
	}
}

func TestExtractTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		fmt.Fprint(w, articleHTML(6, longSentence))
	}))
	defer srv.Close()

	s := New(50*time.Millisecond, false)
	_, err := s.Extract(context.Background(), srv.URL)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestTruncateRunes(t *testing.T) {
	s := strings.Repeat("a", 90) + ". " + strings.Repeat("b", 30)
	got := truncateRunes(s, 100)
	if !strings.HasSuffix(got, ".") {
		t.Errorf("expected sentence-boundary cut, got %q", got)
	}
	if len([]rune(got)) > 100 {
		t.Errorf("len = %d, want <= 100", len([]rune(got)))
	}
}
