package pubmed

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/helixir/interaction-miner/internal/domain"
	"github.com/helixir/interaction-miner/internal/papersources"
)

const (
	// DefaultBaseURL is the base URL for NCBI E-utilities API.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// DefaultRateLimit is the NCBI limit without an API key. With a key it
	// rises to 10 requests per second.
	DefaultRateLimit = 3.0

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per search.
	DefaultMaxResults = 100

	// DefaultTool identifies the application to NCBI.
	DefaultTool = "interaction_miner"

	sourceName = "PubMed"
)

// Config holds the configuration for the PubMed client.
type Config struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	// APIKey is the optional NCBI API key.
	APIKey string

	// Email and Tool are sent with every request as NCBI asks.
	Email string
	Tool  string

	Timeout    time.Duration
	RateLimit  float64
	MaxResults int
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Tool == "" {
		c.Tool = DefaultTool
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
}

// Client searches PubMed.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
	sanitizer  *bluemonday.Policy
}

// Compile-time check that Client implements Source.
var _ papersources.Source = (*Client)(nil)

// New creates a new PubMed client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()
	return NewWithHTTPClient(cfg, papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: int(cfg.RateLimit),
	}))
}

// NewWithHTTPClient creates a client over a caller-supplied HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{
		config:     cfg,
		httpClient: httpClient,
		sanitizer:  bluemonday.StrictPolicy(),
	}
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// Search returns up to maxResults papers for query in PubMed relevance
// order. Papers are returned whether or not they carry a DOI.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]domain.Paper, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, papersources.ErrEmptyQuery
	}
	if maxResults <= 0 || maxResults > c.config.MaxResults {
		maxResults = c.config.MaxResults
	}

	found, err := c.esearch(ctx, query, maxResults)
	if err != nil {
		return nil, fmt.Errorf("esearch failed: %w", err)
	}
	if found.ERROR != "" {
		return nil, domain.NewExternalAPIError(sourceName, 200, found.ERROR, nil)
	}
	if len(found.IDList.IDs) == 0 {
		return []domain.Paper{}, nil
	}

	articles, err := c.efetch(ctx, found.IDList.IDs)
	if err != nil {
		return nil, fmt.Errorf("efetch failed: %w", err)
	}

	papers := make([]domain.Paper, 0, len(articles.Articles))
	for _, article := range articles.Articles {
		papers = append(papers, c.articleToPaper(article))
	}
	return papers, nil
}

func (c *Client) esearch(ctx context.Context, query string, maxResults int) (*ESearchResult, error) {
	q := c.baseParams()
	q.Set("term", query)
	q.Set("retmax", strconv.Itoa(maxResults))
	q.Set("usehistory", "n")

	var result ESearchResult
	if err := c.get(ctx, "esearch.fcgi", q, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) efetch(ctx context.Context, pmids []string) (*PubmedArticleSet, error) {
	q := c.baseParams()
	q.Set("id", strings.Join(pmids, ","))
	q.Set("rettype", "abstract")

	var result PubmedArticleSet
	if err := c.get(ctx, "efetch.fcgi", q, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) baseParams() url.Values {
	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("retmode", "xml")
	q.Set("tool", c.config.Tool)
	if c.config.Email != "" {
		q.Set("email", c.config.Email)
	}
	if c.config.APIKey != "" {
		q.Set("api_key", c.config.APIKey)
	}
	return q
}

func (c *Client) get(ctx context.Context, endpoint string, q url.Values, out interface{}) error {
	resp, err := c.httpClient.Get(ctx, c.config.BaseURL+"/"+endpoint+"?"+q.Encode(), "application/xml")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if err := papersources.CheckStatus(sourceName, resp); err != nil {
		return err
	}
	body, err := papersources.ReadBody(resp, papersources.DefaultMaxBodySize)
	if err != nil {
		return err
	}
	if err := xml.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse XML response: %w", err)
	}
	return nil
}

// articleToPaper converts a PubmedArticle to a domain.Paper.
func (c *Client) articleToPaper(article PubmedArticle) domain.Paper {
	citation := article.MedlineCitation
	ids := article.PubmedData.ArticleIdList

	journal := citation.Article.Journal.Title
	if journal == "" {
		journal = citation.Article.Journal.ISOAbbreviation
	}

	paper := domain.Paper{
		PMID:          strings.TrimSpace(citation.PMID),
		DOI:           extractDOI(citation.Article, ids),
		PMCID:         articleID(ids, "pmc"),
		Title:         c.plainText(citation.Article.ArticleTitle.Inner),
		Abstract:      c.extractAbstract(citation.Article.Abstract),
		Journal:       journal,
		PublishedDate: formatPubDate(citation.Article.Journal.JournalIssue.PubDate),
		Authors:       extractAuthors(citation.Article.AuthorList),
	}
	if citation.KeywordList != nil {
		for _, kw := range citation.KeywordList.Keywords {
			if kw = strings.TrimSpace(kw); kw != "" {
				paper.Keywords = append(paper.Keywords, kw)
			}
		}
	}
	return paper
}

// plainText strips inline markup and decodes entities.
func (c *Client) plainText(inner string) string {
	text := html.UnescapeString(c.sanitizer.Sanitize(inner))
	return strings.Join(strings.Fields(text), " ")
}

// extractDOI prefers the article's PubmedData identifier and falls back to
// a valid ELocationID.
func extractDOI(article Article, ids ArticleIdList) string {
	if doi := articleID(ids, "doi"); doi != "" {
		return doi
	}
	for _, eloc := range article.ELocationID {
		if eloc.EIdType == "doi" && (eloc.Valid == "" || eloc.Valid == "Y") {
			return strings.TrimSpace(eloc.Value)
		}
	}
	return ""
}

func articleID(ids ArticleIdList, idType string) string {
	for _, aid := range ids.ArticleIds {
		if aid.IdType == idType {
			return strings.TrimSpace(aid.Value)
		}
	}
	return ""
}

// formatPubDate joins the non-empty year, month and day parts with "-",
// e.g. "2021-Mar-04" or "2019". A MedlineDate is returned as is.
func formatPubDate(d PubDate) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{d.Year, d.Month, d.Day} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return strings.TrimSpace(d.MedlineDate)
	}
	return strings.Join(parts, "-")
}

// extractAbstract concatenates abstract sections, prefixing labelled ones.
func (c *Client) extractAbstract(abstract *Abstract) string {
	if abstract == nil {
		return ""
	}
	parts := make([]string, 0, len(abstract.AbstractTexts))
	for _, at := range abstract.AbstractTexts {
		text := c.plainText(at.Inner)
		if text == "" {
			continue
		}
		if at.Label != "" {
			text = at.Label + ": " + text
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, " ")
}

// extractAuthors converts PubMed authors to domain authors.
func extractAuthors(authorList *AuthorList) []domain.Author {
	if authorList == nil {
		return nil
	}
	authors := make([]domain.Author, 0, len(authorList.Authors))
	for _, a := range authorList.Authors {
		if a.ValidYN == "N" {
			continue
		}
		name := a.CollectiveName
		if name == "" {
			name = strings.TrimSpace(strings.Join([]string{a.ForeName, a.LastName}, " "))
		}
		if name == "" {
			continue
		}
		author := domain.Author{Name: name}
		if len(a.AffiliationInfo) > 0 {
			author.Affiliation = a.AffiliationInfo[0].Affiliation
		}
		authors = append(authors, author)
	}
	return authors
}
