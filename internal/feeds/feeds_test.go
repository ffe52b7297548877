package feeds

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/fundwatch/internal/common"
	"github.com/Veraticus/fundwatch/internal/config"
	"github.com/Veraticus/fundwatch/internal/model"
)

func testOptions() Options {
	return Options{
		Timeout: 5 * time.Second,
		Retry: common.RetryPolicy{
			MaxAttempts:  2,
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
		},
	}
}

const feedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>Deals</title>
<link>https://www.pehub.com</link>
<description>Deal news</description>
<item>
  <title>Acme Capital closes Fund III at $500M</title>
  <link>https://www.pehub.com/2025/01/acme/?utm_source=rss&amp;utm_medium=feed</link>
  <description>&lt;p&gt;Acme &lt;b&gt;Capital&lt;/b&gt; held a final close.&lt;/p&gt;</description>
  <pubDate>Wed, 08 Jan 2025 10:00:00 GMT</pubDate>
</item>
<item>
  <title>Acme Capital closes Fund III (updated)</title>
  <link>https://www.pehub.com/2025/01/acme/?utm_source=other</link>
  <description>Repeat.</description>
</item>
<item>
  <title>Zenith launches credit fund</title>
  <link>https://other.example.com/zenith#top</link>
  <description>Plain text.</description>
  <pubDate>Thu, 09 Jan 2025 10:00:00 GMT</pubDate>
</item>
</channel>
</rss>`

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "HTTPS://WWW.Example.com/a/b?utm_source=x&id=2&b=1#frag", want: "https://www.example.com/a/b?b=1&id=2"},
		{in: "http://example.com:80", want: "http://example.com/"},
		{in: "example.com/path", want: "https://example.com/path"},
		{in: "https://example.com/x?fbclid=abc", want: "https://example.com/x"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := CanonicalURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := CanonicalURL("  ")
	require.Error(t, err)
}

func TestSplitTitle(t *testing.T) {
	tests := []struct {
		in, title, source string
	}{
		{in: "Acme closes Fund III - Reuters", title: "Acme closes Fund III", source: "Reuters"},
		{in: "Acme - the sequel - closes fund - Bloomberg", title: "Acme - the sequel - closes fund", source: "Bloomberg"},
		{in: "Zenith launches credit fund — PE Hub", title: "Zenith launches credit fund", source: "PE Hub"},
		{in: "No outlet here", title: "No outlet here"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			title, source := SplitTitle(tt.in)
			assert.Equal(t, tt.title, title)
			assert.Equal(t, tt.source, source)
		})
	}
}

func TestTitleKey(t *testing.T) {
	assert.Equal(t, TitleKey("Acme closes Fund III!"), TitleKey("  acme CLOSES fund iii "))
	assert.Equal(t, "", TitleKey(" -- "))
}

func TestHTMLToTextAndTruncate(t *testing.T) {
	assert.Equal(t, "Hello world", HTMLToText("<div><p>Hello</p>\n<script>x()</script><p>world</p></div>"))
	assert.Equal(t, "plain text", HTMLToText("plain   text"))
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "one two…", Truncate("one two three", 9))
}

func TestRSSFetcher_Fetch(t *testing.T) {
	var userAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, feedXML)
	}))
	defer srv.Close()

	fetcher := NewRSSFetcher(testOptions(), config.DefaultTables())
	articles, outcome := fetcher.Fetch(context.Background(), Source{Name: "Deals Feed", URL: srv.URL, Enabled: true})

	require.True(t, outcome.Success)
	require.NoError(t, outcome.Err)
	assert.Equal(t, 2, outcome.ArticleCount)
	assert.Equal(t, UserAgent, userAgent)
	require.Len(t, articles, 2)

	acme := articles[0]
	assert.Equal(t, "Acme Capital closes Fund III at $500M", acme.Title)
	assert.Equal(t, "https://www.pehub.com/2025/01/acme/", acme.URL)
	assert.Equal(t, "Acme Capital held a final close.", acme.Snippet)
	assert.Equal(t, "pehub.com", acme.SourceDomain)
	assert.Equal(t, "PE Hub", acme.SourceName)
	assert.Equal(t, "Deals Feed", acme.FeedName)
	assert.True(t, time.Date(2025, 1, 8, 10, 0, 0, 0, time.UTC).Equal(acme.Published))

	zenith := articles[1]
	assert.Equal(t, "https://other.example.com/zenith", zenith.URL)
	assert.Equal(t, "Deals Feed", zenith.SourceName)
}

func TestRSSFetcher_MaxAge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, feedXML)
	}))
	defer srv.Close()

	opts := testOptions()
	opts.MaxAge = 36 * time.Hour
	fetcher := NewRSSFetcher(opts, nil)
	fetcher.now = func() time.Time { return time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC) }

	articles, outcome := fetcher.Fetch(context.Background(), Source{Name: "Deals", URL: srv.URL})
	require.True(t, outcome.Success)

	titles := make([]string, 0, len(articles))
	for _, a := range articles {
		titles = append(titles, a.Title)
	}
	// The undated item is kept; the Jan 8 item is too old.
	assert.Equal(t, []string{"Acme Capital closes Fund III (updated)", "Zenith launches credit fund"}, titles)
}

func TestRSSFetcher_Failures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantCalls int32
	}{
		{name: "not found is not retried", status: http.StatusNotFound, wantCalls: 1},
		{name: "server error is retried", status: http.StatusServiceUnavailable, wantCalls: 2},
		{name: "malformed feed", status: http.StatusOK, body: "this is not xml", wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			articles, outcome := NewRSSFetcher(testOptions(), nil).Fetch(context.Background(), Source{Name: "x", URL: srv.URL})

			assert.Empty(t, articles)
			assert.False(t, outcome.Success)
			require.Error(t, outcome.Err)
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

const searchXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Search</title><link>https://news.google.com</link><description>s</description>
<item><title>Acme closes Fund III - Reuters</title><link>https://news.google.com/rss/articles/abc?oc=5</link><pubDate>Wed, 08 Jan 2025 10:00:00 GMT</pubDate><description>Acme</description></item>
<item><title>Zenith launches credit fund — Bloomberg</title><link>https://news.google.com/rss/articles/def</link></item>
<item><title>Orbit raises venture fund</title><link>https://news.google.com/rss/articles/ghi</link></item>
</channel></rss>`

func TestSearchFetcher_Fetch(t *testing.T) {
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Query().Get("q"))
		fmt.Fprint(w, searchXML)
	}))
	defer srv.Close()

	fetcher := NewSearchFetcher(testOptions(), srv.URL+"/rss/search?q=%s&hl=en-US", "7d", config.DefaultTables())
	articles, outcomes := fetcher.Fetch(context.Background(), []string{"fund close", "final close"})

	assert.Equal(t, []string{"fund close when:7d", "final close when:7d"}, queries)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "search:fund close", outcomes[0].Source.Name)
	assert.Equal(t, 3, outcomes[0].ArticleCount)
	assert.Equal(t, 0, outcomes[1].ArticleCount)
	assert.True(t, outcomes[1].Success)

	require.Len(t, articles, 3)
	assert.Equal(t, "Acme closes Fund III", articles[0].Title)
	assert.Equal(t, "Reuters", articles[0].SourceName)
	assert.Equal(t, "Zenith launches credit fund", articles[1].Title)
	assert.Equal(t, "Bloomberg", articles[1].SourceName)
	assert.Equal(t, "Google News", articles[2].SourceName)
	assert.Equal(t, "search:fund close", articles[0].FeedName)
}

func TestSearchFetcher_QueryURL(t *testing.T) {
	fetcher := NewSearchFetcher(testOptions(), config.DefaultSearchEndpoint, "7d", nil)
	got := fetcher.QueryURL(`"final close" fund`)
	assert.Equal(t, "https://news.google.com/rss/search?q=%22final+close%22+fund+when%3A7d&hl=en-US&gl=US&ceid=US:en", got)
}

func TestEnricher(t *testing.T) {
	paragraph := strings.Repeat("Acme Capital said the fund will back lower middle market companies across North America. ", 6)
	page := `<html><head><title>Acme closes Fund III</title></head><body>
<nav>Home | About</nav>
<article><h1>Acme closes Fund III</h1>
<p>` + paragraph + `</p><p>` + paragraph + `</p><p>` + paragraph + `</p>
</article></body></html>`

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	enricher := NewEnricher(testOptions(), 200, 5000)

	thin := model.RawArticle{URL: srv.URL + "/acme", Snippet: "Acme closes."}
	enriched := enricher.Enrich(context.Background(), thin)
	assert.Contains(t, enriched.Snippet, "lower middle market companies")
	assert.Greater(t, len(enriched.Snippet), len(thin.Snippet))

	rich := model.RawArticle{URL: srv.URL + "/acme", Snippet: strings.Repeat("x", 300)}
	assert.Equal(t, rich, enricher.Enrich(context.Background(), rich))
	assert.Equal(t, int32(1), calls.Load())
}
