package crawl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/pocketnews/internal/logger"
	"github.com/hitoshi/pocketnews/internal/model"
)

// mockSSRFGuard はSSRFGuardServiceのテスト用モック。
// httptestサーバーへの接続を許可するため素のhttp.Clientを返す。
type mockSSRFGuard struct {
	validateErr error
}

func (m *mockSSRFGuard) NewSafeClient(timeout time.Duration, _ int64) *http.Client {
	return &http.Client{Timeout: timeout}
}

func (m *mockSSRFGuard) ValidateURL(_ string) error {
	return m.validateErr
}

// mockNormalizer はEntryNormalizerのテスト用モック。
type mockNormalizer struct {
	failTitles map[string]bool
}

func (m *mockNormalizer) Normalize(item *gofeed.Item, sourceName string) (*model.Article, error) {
	if m.failTitles[item.Title] {
		return nil, &model.NormalizationError{Reason: model.NormalizeMissingURL, Source: sourceName}
	}
	return &model.Article{
		Title:  item.Title,
		URL:    item.Link,
		Source: sourceName,
	}, nil
}

func newTestFetcher(guard *mockSSRFGuard, normalizer EntryNormalizer, timeout time.Duration) *SourceFetcher {
	return NewSourceFetcher(guard, normalizer, logger.Setup(&strings.Builder{}), timeout, 5242880)
}

// rssFeed は指定件数のアイテムを持つRSSフィードXMLを生成する。
func rssFeed(itemCount int) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>Test Feed</title>`)
	for i := 0; i < itemCount; i++ {
		fmt.Fprintf(&b, `<item><title>Article %d</title><link>https://example.com/articles/%d</link></item>`, i, i)
	}
	b.WriteString(`</channel></rss>`)
	return b.String()
}

func TestFetch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, rssFeed(3))
	}))
	defer server.Close()

	f := newTestFetcher(&mockSSRFGuard{}, &mockNormalizer{}, 5*time.Second)
	outcome, err := f.Fetch(context.Background(), model.Source{Name: "CoinDesk", FeedURL: server.URL})

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(outcome.Articles) != 3 {
		t.Errorf("len(Articles) = %d, want 3", len(outcome.Articles))
	}
	if outcome.EntryErrors != 0 {
		t.Errorf("EntryErrors = %d, want 0", outcome.EntryErrors)
	}
	if outcome.HTTPStatus != http.StatusOK {
		t.Errorf("HTTPStatus = %d, want %d", outcome.HTTPStatus, http.StatusOK)
	}
}

func TestFetch_SetsUserAgent(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		fmt.Fprint(w, rssFeed(1))
	}))
	defer server.Close()

	f := newTestFetcher(&mockSSRFGuard{}, &mockNormalizer{}, 5*time.Second)
	if _, err := f.Fetch(context.Background(), model.Source{Name: "CoinDesk", FeedURL: server.URL}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if gotUA != "PocketNews/1.0 Crawler" {
		t.Errorf("User-Agent = %q, want %q", gotUA, "PocketNews/1.0 Crawler")
	}
}

func TestFetch_CapsEntriesPerSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rssFeed(25))
	}))
	defer server.Close()

	f := newTestFetcher(&mockSSRFGuard{}, &mockNormalizer{}, 5*time.Second)
	outcome, err := f.Fetch(context.Background(), model.Source{Name: "CoinDesk", FeedURL: server.URL})

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(outcome.Articles) != maxEntriesPerSource {
		t.Errorf("len(Articles) = %d, want %d (capped)", len(outcome.Articles), maxEntriesPerSource)
	}
	// 直近のエントリ（フィード先頭側）が残る
	if outcome.Articles[0].Title != "Article 0" {
		t.Errorf("Articles[0].Title = %q, want %q", outcome.Articles[0].Title, "Article 0")
	}
}

func TestFetch_NonOKStatus_ReturnsBadStatusError(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"404", http.StatusNotFound},
		{"500", http.StatusInternalServerError},
		{"301", http.StatusMovedPermanently},
		{"202", http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := &http.Client{
				// 30xを追って成功扱いにしないことを検証するためリダイレクトは追わない
				CheckRedirect: func(req *http.Request, via []*http.Request) error {
					return http.ErrUseLastResponse
				},
			}
			f := NewSourceFetcher(
				&redirectAwareGuard{client: client},
				&mockNormalizer{}, logger.Setup(&strings.Builder{}),
				5*time.Second, 5242880,
			)

			outcome, err := f.Fetch(context.Background(), model.Source{Name: "CoinDesk", FeedURL: server.URL})
			if err == nil {
				t.Fatal("expected error for non-200 status")
			}

			var fetchErr *model.FetchError
			if !errors.As(err, &fetchErr) {
				t.Fatalf("expected *model.FetchError, got %T", err)
			}
			if fetchErr.Kind != model.FetchBadStatus {
				t.Errorf("Kind = %q, want %q", fetchErr.Kind, model.FetchBadStatus)
			}
			if fetchErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", fetchErr.StatusCode, tt.status)
			}
			if outcome == nil || outcome.HTTPStatus != tt.status {
				t.Errorf("outcome.HTTPStatus = %v, want %d", outcome, tt.status)
			}
		})
	}
}

// redirectAwareGuard はリダイレクト設定済みクライアントを返すテスト用モック。
type redirectAwareGuard struct {
	client *http.Client
}

func (g *redirectAwareGuard) NewSafeClient(timeout time.Duration, _ int64) *http.Client {
	g.client.Timeout = timeout
	return g.client
}

func (g *redirectAwareGuard) ValidateURL(_ string) error { return nil }

func TestFetch_MalformedFeed_ReturnsParseFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "this is not XML at all")
	}))
	defer server.Close()

	f := newTestFetcher(&mockSSRFGuard{}, &mockNormalizer{}, 5*time.Second)
	_, err := f.Fetch(context.Background(), model.Source{Name: "CoinDesk", FeedURL: server.URL})

	if err == nil {
		t.Fatal("expected error for malformed feed")
	}
	var fetchErr *model.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *model.FetchError, got %T", err)
	}
	if fetchErr.Kind != model.FetchParseFailure {
		t.Errorf("Kind = %q, want %q", fetchErr.Kind, model.FetchParseFailure)
	}
}

func TestFetch_Timeout_ReturnsTimeoutError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		fmt.Fprint(w, rssFeed(1))
	}))
	defer server.Close()

	f := newTestFetcher(&mockSSRFGuard{}, &mockNormalizer{}, 50*time.Millisecond)
	_, err := f.Fetch(context.Background(), model.Source{Name: "SlowFeed", FeedURL: server.URL})

	if err == nil {
		t.Fatal("expected timeout error")
	}
	var fetchErr *model.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *model.FetchError, got %T", err)
	}
	if fetchErr.Kind != model.FetchTimeout {
		t.Errorf("Kind = %q, want %q", fetchErr.Kind, model.FetchTimeout)
	}
}

func TestFetch_UnreachableHost_ReturnsNetworkError(t *testing.T) {
	// 事前にクローズしたサーバーのURLで接続失敗させる
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	f := newTestFetcher(&mockSSRFGuard{}, &mockNormalizer{}, time.Second)
	_, err := f.Fetch(context.Background(), model.Source{Name: "Gone", FeedURL: url})

	if err == nil {
		t.Fatal("expected connection error")
	}
	var fetchErr *model.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *model.FetchError, got %T", err)
	}
	if fetchErr.Kind != model.FetchNetworkUnreachable {
		t.Errorf("Kind = %q, want %q", fetchErr.Kind, model.FetchNetworkUnreachable)
	}
}

func TestFetch_ValidateURLFailure_SkipsRequest(t *testing.T) {
	requested := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = true
	}))
	defer server.Close()

	guard := &mockSSRFGuard{validateErr: errors.New("blocked host")}
	f := newTestFetcher(guard, &mockNormalizer{}, time.Second)

	_, err := f.Fetch(context.Background(), model.Source{Name: "Evil", FeedURL: server.URL})
	if err == nil {
		t.Fatal("expected error for blocked URL")
	}
	if requested {
		t.Error("request should not be sent when URL validation fails")
	}
}

func TestFetch_EntryFailureIsolation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rssFeed(5))
	}))
	defer server.Close()

	// 2番目と4番目のエントリだけ正規化に失敗させる
	normalizer := &mockNormalizer{failTitles: map[string]bool{
		"Article 1": true,
		"Article 3": true,
	}}
	f := newTestFetcher(&mockSSRFGuard{}, normalizer, 5*time.Second)

	outcome, err := f.Fetch(context.Background(), model.Source{Name: "CoinDesk", FeedURL: server.URL})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(outcome.Articles) != 3 {
		t.Errorf("len(Articles) = %d, want 3 (failed entries skipped)", len(outcome.Articles))
	}
	if outcome.EntryErrors != 2 {
		t.Errorf("EntryErrors = %d, want 2", outcome.EntryErrors)
	}
	// 後続エントリの処理は継続されている
	if outcome.Articles[2].Title != "Article 4" {
		t.Errorf("last article = %q, want %q", outcome.Articles[2].Title, "Article 4")
	}
}
