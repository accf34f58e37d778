package pubmed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/interaction-miner/internal/domain"
	"github.com/helixir/interaction-miner/internal/papersources"
)

const esearchResponseXML = `<?xml version="1.0" encoding="UTF-8" ?>
<!DOCTYPE eSearchResult PUBLIC "-//NLM//DTD esearch 20060628//EN" "https://eutils.ncbi.nlm.nih.gov/eutils/dtd/20060628/esearch.dtd">
<eSearchResult>
	<Count>2</Count>
	<RetMax>2</RetMax>
	<RetStart>0</RetStart>
	<IdList>
		<Id>31234567</Id>
		<Id>29876543</Id>
	</IdList>
</eSearchResult>`

const esearchEmptyResponseXML = `<?xml version="1.0" encoding="UTF-8" ?>
<eSearchResult>
	<Count>0</Count>
	<RetMax>0</RetMax>
	<RetStart>0</RetStart>
	<IdList></IdList>
	<ErrorList>
		<PhraseNotFound>creatinez</PhraseNotFound>
	</ErrorList>
</eSearchResult>`

const efetchResponseXML = `<?xml version="1.0" encoding="UTF-8" ?>
<PubmedArticleSet>
	<PubmedArticle>
		<MedlineCitation Status="MEDLINE" Owner="NLM">
			<PMID Version="1">31234567</PMID>
			<Article PubModel="Print-Electronic">
				<Journal>
					<JournalIssue CitedMedium="Internet">
						<PubDate><Year>2021</Year><Month>Mar</Month><Day>04</Day></PubDate>
					</JournalIssue>
					<Title>Journal of the International Society of Sports Nutrition</Title>
					<ISOAbbreviation>J Int Soc Sports Nutr</ISOAbbreviation>
				</Journal>
				<ArticleTitle>Effects of <i>creatine</i> supplementation on muscle strength &amp; power</ArticleTitle>
				<ELocationID EIdType="doi" ValidYN="Y">10.1186/s12970-021-00412-w</ELocationID>
				<Abstract>
					<AbstractText Label="BACKGROUND">Creatine is widely used.</AbstractText>
					<AbstractText Label="RESULTS">Strength increased in the <b>creatine</b> group.</AbstractText>
				</Abstract>
				<AuthorList CompleteYN="Y">
					<Author ValidYN="Y">
						<LastName>Kreider</LastName>
						<ForeName>Richard B</ForeName>
						<AffiliationInfo><Affiliation>Texas A&amp;M University</Affiliation></AffiliationInfo>
					</Author>
					<Author ValidYN="N"><LastName>Ghost</LastName></Author>
					<Author><CollectiveName>ISSN Working Group</CollectiveName></Author>
				</AuthorList>
			</Article>
			<KeywordList Owner="NOTNLM">
				<Keyword MajorTopicYN="N">creatine</Keyword>
				<Keyword MajorTopicYN="N">ergogenic aid</Keyword>
			</KeywordList>
		</MedlineCitation>
		<PubmedData>
			<ArticleIdList>
				<ArticleId IdType="pubmed">31234567</ArticleId>
				<ArticleId IdType="doi">10.1186/s12970-021-00412-w</ArticleId>
				<ArticleId IdType="pmc">PMC7934567</ArticleId>
			</ArticleIdList>
		</PubmedData>
	</PubmedArticle>
	<PubmedArticle>
		<MedlineCitation>
			<PMID>29876543</PMID>
			<Article>
				<Journal>
					<JournalIssue><PubDate><MedlineDate>2018 Jan-Feb</MedlineDate></PubDate></JournalIssue>
					<ISOAbbreviation>Nutrients</ISOAbbreviation>
				</Journal>
				<ArticleTitle>Creatine and cognition: a letter</ArticleTitle>
			</Article>
		</MedlineCitation>
		<PubmedData><ArticleIdList><ArticleId IdType="pubmed">29876543</ArticleId></ArticleIdList></PubmedData>
	</PubmedArticle>
</PubmedArticleSet>`

func newTestClient(baseURL string) *Client {
	return NewWithHTTPClient(
		Config{BaseURL: baseURL, Email: "ops@example.org", APIKey: "ncbi-key"},
		papersources.NewHTTPClient(papersources.HTTPClientConfig{RateLimit: 1000, MaxRetries: -1}),
	)
}

type recordedQueries struct {
	mu   sync.Mutex
	byEP map[string]url.Values
}

func (r *recordedQueries) record(req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byEP == nil {
		r.byEP = map[string]url.Values{}
	}
	r.byEP[req.URL.Path] = req.URL.Query()
}

func TestClient_Search(t *testing.T) {
	t.Run("maps articles to papers", func(t *testing.T) {
		var seen recordedQueries
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen.record(r)
			w.Header().Set("Content-Type", "application/xml")
			switch {
			case strings.HasSuffix(r.URL.Path, "/esearch.fcgi"):
				w.Write([]byte(esearchResponseXML))
			case strings.HasSuffix(r.URL.Path, "/efetch.fcgi"):
				w.Write([]byte(efetchResponseXML))
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))
		defer server.Close()

		papers, err := newTestClient(server.URL).Search(context.Background(), `creatine AND "randomized controlled trial"[pt]`, 50)
		require.NoError(t, err)
		require.Len(t, papers, 2)

		p := papers[0]
		assert.Equal(t, "31234567", p.PMID)
		assert.Equal(t, "10.1186/s12970-021-00412-w", p.DOI)
		assert.Equal(t, "PMC7934567", p.PMCID)
		assert.Equal(t, "Effects of creatine supplementation on muscle strength & power", p.Title)
		assert.Equal(t, "BACKGROUND: Creatine is widely used. RESULTS: Strength increased in the creatine group.", p.Abstract)
		assert.Equal(t, "Journal of the International Society of Sports Nutrition", p.Journal)
		assert.Equal(t, "2021-Mar-04", p.PublishedDate)
		require.Len(t, p.Authors, 2)
		assert.Equal(t, "Richard B Kreider", p.Authors[0].Name)
		assert.Equal(t, "Texas A&M University", p.Authors[0].Affiliation)
		assert.Equal(t, "ISSN Working Group", p.Authors[1].Name)
		assert.Equal(t, []string{"creatine", "ergogenic aid"}, p.Keywords)

		q := papers[1]
		assert.False(t, q.HasDOI())
		assert.Equal(t, "Nutrients", q.Journal)
		assert.Equal(t, "2018 Jan-Feb", q.PublishedDate)

		es := seen.byEP["/esearch.fcgi"]
		assert.Equal(t, "pubmed", es.Get("db"))
		assert.Equal(t, "50", es.Get("retmax"))
		assert.Equal(t, "ops@example.org", es.Get("email"))
		assert.Equal(t, DefaultTool, es.Get("tool"))
		assert.Equal(t, "ncbi-key", es.Get("api_key"))
		assert.Equal(t, "31234567,29876543", seen.byEP["/efetch.fcgi"].Get("id"))
	})

	t.Run("caps max results", func(t *testing.T) {
		var retmax string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			retmax = r.URL.Query().Get("retmax")
			w.Write([]byte(esearchEmptyResponseXML))
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).Search(context.Background(), "creatine", 5000)
		require.NoError(t, err)
		assert.Equal(t, "100", retmax)
	})

	t.Run("no hits is an empty result", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/efetch.fcgi") {
				t.Error("efetch must not be called without ids")
			}
			w.Write([]byte(esearchEmptyResponseXML))
		}))
		defer server.Close()

		papers, err := newTestClient(server.URL).Search(context.Background(), "creatinez", 10)
		require.NoError(t, err)
		assert.NotNil(t, papers)
		assert.Empty(t, papers)
	})

	t.Run("upstream error is reported", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("bad term"))
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).Search(context.Background(), "creatine", 10)
		var apiErr *domain.ExternalAPIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	})

	t.Run("malformed query error element", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<eSearchResult><ERROR>Invalid query</ERROR></eSearchResult>`))
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).Search(context.Background(), "((", 10)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Invalid query")
	})

	t.Run("blank query", func(t *testing.T) {
		_, err := newTestClient("http://unused").Search(context.Background(), "  ", 10)
		assert.True(t, errors.Is(err, papersources.ErrEmptyQuery))
	})
}

func TestClient_Name(t *testing.T) {
	assert.Equal(t, "PubMed", New(Config{}).Name())
}

func TestFormatPubDate(t *testing.T) {
	tests := []struct {
		name string
		in   PubDate
		want string
	}{
		{"full", PubDate{Year: "2020", Month: "Jan", Day: "15"}, "2020-Jan-15"},
		{"year month", PubDate{Year: "2020", Month: "12"}, "2020-12"},
		{"year only", PubDate{Year: "2019"}, "2019"},
		{"medline range", PubDate{MedlineDate: "2020 Spring"}, "2020 Spring"},
		{"empty", PubDate{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatPubDate(tt.in))
		})
	}
}

func TestExtractDOI_FallsBackToELocation(t *testing.T) {
	article := Article{ELocationID: []ELocationID{
		{EIdType: "pii", Value: "S0000"},
		{EIdType: "doi", Valid: "N", Value: "10.1/invalid"},
		{EIdType: "doi", Valid: "Y", Value: " 10.1/valid "},
	}}
	assert.Equal(t, "10.1/valid", extractDOI(article, ArticleIdList{}))
}
