package acquire

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/interaction-miner/internal/domain"
	"github.com/helixir/interaction-miner/internal/papersources"
	"github.com/helixir/interaction-miner/internal/pdf"
)

var testPDF = []byte("%PDF-1.5 creatine increases muscle mass")

// stubConverter returns the PDF bytes after the magic as text.
type stubConverter struct{ err error }

func (c stubConverter) Convert(_ context.Context, content []byte) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	if err := pdf.CheckPDF(content); err != nil {
		return "", err
	}
	return strings.TrimPrefix(string(content), "%PDF-1.5 "), nil
}

type stubResolver struct {
	name  string
	doc   *domain.Document
	err   error
	calls int
}

func (r *stubResolver) Name() string { return r.name }

func (r *stubResolver) Resolve(context.Context, domain.Paper) (*domain.Document, error) {
	r.calls++
	return r.doc, r.err
}

func testDownloader() *pdf.Downloader {
	return pdf.NewDownloader(pdf.Config{Timeout: 5 * time.Second, AllowPrivateNetworks: true})
}

func testAPI() *papersources.HTTPClient {
	return papersources.NewHTTPClient(papersources.HTTPClientConfig{RateLimit: 1000, MaxRetries: -1})
}

func TestAcquirer_FirstSuccessWins(t *testing.T) {
	first := &stubResolver{name: "first", err: pdf.ErrPaywalled}
	skipped := &stubResolver{name: "skipped", err: ErrNotApplicable}
	second := &stubResolver{name: "second", doc: &domain.Document{Text: "full text"}}
	third := &stubResolver{name: "third", doc: &domain.Document{Text: "never"}}

	a := New(zerolog.Nop(), nil, first, skipped, second, third)
	doc, err := a.Acquire(context.Background(), domain.Paper{DOI: "10.1/abc"})
	require.NoError(t, err)

	assert.Equal(t, "full text", doc.Text)
	assert.Equal(t, "second", doc.Source)
	assert.Equal(t, "10.1/abc", doc.DOI)
	assert.Equal(t, 0, third.calls)
}

func TestAcquirer_AllFail(t *testing.T) {
	a := New(zerolog.Nop(), nil,
		&stubResolver{name: "arxiv", err: ErrNotApplicable},
		&stubResolver{name: "unpaywall", err: pdf.ErrPaywalled},
		&stubResolver{name: "pmc", doc: &domain.Document{}},
	)

	_, err := a.Acquire(context.Background(), domain.Paper{DOI: "10.1/abc"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDocumentUnavailable)

	var ue *domain.UnavailableError
	require.True(t, errors.As(err, &ue))
	require.Len(t, ue.Attempts, 2)
	assert.Equal(t, "unpaywall", ue.Attempts[0].Source)
	assert.True(t, ue.Paywalled())
	assert.Equal(t, "pmc", ue.Attempts[1].Source)
	assert.Equal(t, "empty text", ue.Attempts[1].Reason)
}

func TestAcquirer_NoDOI(t *testing.T) {
	r := &stubResolver{name: "any"}
	_, err := New(zerolog.Nop(), nil, r).Acquire(context.Background(), domain.Paper{PMID: "1"})
	assert.ErrorIs(t, err, domain.ErrDocumentUnavailable)
	assert.Equal(t, 0, r.calls)
}

func TestAcquirer_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(zerolog.Nop(), nil, &stubResolver{name: "any"}).Acquire(ctx, domain.Paper{DOI: "10.1/abc"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrDocumentUnavailable)
}

func TestArxivID(t *testing.T) {
	tests := []struct {
		doi    string
		want   string
		wantOK bool
	}{
		{"10.48550/arXiv.2301.01234", "2301.01234", true},
		{"10.48550/ARXIV.2301.01234", "2301.01234", true},
		{" 10.48550/arXiv.hep-th/9901001 ", "hep-th/9901001", true},
		{"10.48550/arXiv.", "", false},
		{"10.1038/nature12373", "", false},
	}
	for _, tt := range tests {
		got, ok := ArxivID(tt.doi)
		assert.Equal(t, tt.wantOK, ok, tt.doi)
		assert.Equal(t, tt.want, got, tt.doi)
	}
}

func TestArxivResolver(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write(testPDF)
	}))
	defer server.Close()

	r := NewArxivResolver(server.URL, testDownloader(), stubConverter{})

	_, err := r.Resolve(context.Background(), domain.Paper{DOI: "10.1000/journal"})
	assert.ErrorIs(t, err, ErrNotApplicable)

	doc, err := r.Resolve(context.Background(), domain.Paper{DOI: "10.48550/arXiv.2301.01234"})
	require.NoError(t, err)
	assert.Equal(t, "/2301.01234.pdf", path)
	assert.Equal(t, "creatine increases muscle mass", doc.Text)
	assert.Equal(t, "arxiv", doc.Source)
}

func unpaywallServer(t *testing.T, pdfURL string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/10.1000/xyz", r.URL.Path)
		assert.Equal(t, "ops@example.org", r.URL.Query().Get("email"))
		record := map[string]interface{}{"doi": "10.1000/xyz", "is_oa": pdfURL != ""}
		if pdfURL != "" {
			record["best_oa_location"] = map[string]string{"url_for_pdf": pdfURL}
		}
		json.NewEncoder(w).Encode(record)
	}))
}

func TestUnpaywallResolver(t *testing.T) {
	t.Run("downloads best open access pdf", func(t *testing.T) {
		host := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write(testPDF)
		}))
		defer host.Close()
		api := unpaywallServer(t, host.URL+"/paper.pdf")
		defer api.Close()

		r := NewUnpaywallResolver(UnpaywallConfig{BaseURL: api.URL, Email: "ops@example.org"}, testAPI(), testDownloader(), nil, stubConverter{})
		doc, err := r.Resolve(context.Background(), domain.Paper{DOI: "10.1000/XYZ"})
		require.NoError(t, err)
		assert.Equal(t, "unpaywall", doc.Source)
		assert.Equal(t, "creatine increases muscle mass", doc.Text)
	})

	t.Run("no open access location", func(t *testing.T) {
		api := unpaywallServer(t, "")
		defer api.Close()

		r := NewUnpaywallResolver(UnpaywallConfig{BaseURL: api.URL, Email: "ops@example.org"}, testAPI(), testDownloader(), nil, stubConverter{})
		_, err := r.Resolve(context.Background(), domain.Paper{DOI: "10.1000/xyz"})
		assert.ErrorIs(t, err, ErrNoOpenAccess)
	})

	t.Run("unknown doi", func(t *testing.T) {
		api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer api.Close()

		r := NewUnpaywallResolver(UnpaywallConfig{BaseURL: api.URL}, testAPI(), testDownloader(), nil, stubConverter{})
		_, err := r.Resolve(context.Background(), domain.Paper{DOI: "10.1000/xyz"})
		assert.ErrorIs(t, err, ErrNoOpenAccess)
	})

	t.Run("html from publisher is paywalled", func(t *testing.T) {
		host := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<!DOCTYPE html><html>Subscribe</html>"))
		}))
		defer host.Close()
		api := unpaywallServer(t, host.URL+"/paper.pdf")
		defer api.Close()

		r := NewUnpaywallResolver(UnpaywallConfig{BaseURL: api.URL, Email: "ops@example.org"}, testAPI(), testDownloader(), nil, stubConverter{})
		_, err := r.Resolve(context.Background(), domain.Paper{DOI: "10.1000/xyz"})
		assert.ErrorIs(t, err, pdf.ErrPaywalled)
	})
}

func TestUnpaywallResolver_Unlocker(t *testing.T) {
	var directCalls atomic.Int32
	host := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		directCalls.Add(1)
		w.Write(testPDF)
	}))
	defer host.Close()
	api := unpaywallServer(t, host.URL+"/paper.pdf")
	defer api.Close()

	t.Run("unlocker first", func(t *testing.T) {
		var got unlockerRequest
		var auth string
		proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth = r.Header.Get("Authorization")
			json.NewDecoder(r.Body).Decode(&got)
			w.Write(testPDF)
		}))
		defer proxy.Close()

		directCalls.Store(0)
		unlocker := NewUnlocker(UnlockerConfig{URL: proxy.URL, APIKey: "secret"}, testDownloader())
		r := NewUnpaywallResolver(UnpaywallConfig{BaseURL: api.URL, Email: "ops@example.org"}, testAPI(), testDownloader(), unlocker, stubConverter{})

		_, err := r.Resolve(context.Background(), domain.Paper{DOI: "10.1000/xyz"})
		require.NoError(t, err)
		assert.Equal(t, "Bearer secret", auth)
		assert.Equal(t, unlockerRequest{Zone: "web_unlocker1", URL: host.URL + "/paper.pdf", Format: "raw"}, got)
		assert.Equal(t, int32(0), directCalls.Load())
	})

	t.Run("falls back to direct download", func(t *testing.T) {
		proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer proxy.Close()

		directCalls.Store(0)
		unlocker := NewUnlocker(UnlockerConfig{URL: proxy.URL, APIKey: "secret"}, testDownloader())
		r := NewUnpaywallResolver(UnpaywallConfig{BaseURL: api.URL, Email: "ops@example.org"}, testAPI(), testDownloader(), unlocker, stubConverter{})

		doc, err := r.Resolve(context.Background(), domain.Paper{DOI: "10.1000/xyz"})
		require.NoError(t, err)
		assert.NotEmpty(t, doc.Text)
		assert.Equal(t, int32(1), directCalls.Load())
	})
}

func TestNewUnlocker_RequiresKey(t *testing.T) {
	assert.Nil(t, NewUnlocker(UnlockerConfig{}, testDownloader()))
}

func TestPMCResolver(t *testing.T) {
	body := strings.Repeat("Creatine supplementation increased muscle mass in older adults. ", 50)
	page := `<!DOCTYPE html><html><head><script>track()</script><style>p{}</style></head>
<body><article><h1>Creatine and ageing</h1><p>` + body + `</p>
<table><tr><th>Group</th><th>Mass</th></tr><tr><td>CR</td><td>+1.4 kg</td></tr></table></article></body></html>`

	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(page))
	}))
	defer server.Close()

	r := NewPMCResolver(server.URL, testDownloader())

	_, err := r.Resolve(context.Background(), domain.Paper{DOI: "10.1/x"})
	assert.ErrorIs(t, err, ErrNotApplicable)

	doc, err := r.Resolve(context.Background(), domain.Paper{DOI: "10.1/x", PMCID: "7934567"})
	require.NoError(t, err)
	assert.Equal(t, "/PMC7934567/", path)
	assert.Equal(t, "pmc", doc.Source)
	assert.Contains(t, doc.Text, "# Creatine and ageing")
	assert.Contains(t, doc.Text, "increased muscle mass")
	assert.Contains(t, doc.Text, "+1.4 kg")
	assert.NotContains(t, doc.Text, "track()")
}

func TestPMCResolver_ShortPage(t *testing.T) {
	_, err := NewPMCResolver("", testDownloader()).HTMLToText("<html><body><p>Please verify you are human</p></body></html>", "https://example.org")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too short")
}
