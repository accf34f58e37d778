package acquire

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"

	"github.com/helixir/interaction-miner/internal/domain"
)

const (
	// DefaultPMCBaseURL serves PubMed Central article pages by PMCID.
	DefaultPMCBaseURL = "https://www.ncbi.nlm.nih.gov/pmc/articles"

	// minArticleChars rejects landing pages, captchas and abstracts-only views.
	minArticleChars = 2000
)

// PMCResolver converts the PubMed Central HTML view of an open-access
// article to markdown-flavoured plain text.
type PMCResolver struct {
	baseURL   string
	fetcher   Fetcher
	sanitizer *bluemonday.Policy
	markdown  *converter.Converter
}

// NewPMCResolver creates a PMCResolver. An empty baseURL uses DefaultPMCBaseURL.
func NewPMCResolver(baseURL string, fetcher Fetcher) *PMCResolver {
	if baseURL == "" {
		baseURL = DefaultPMCBaseURL
	}
	return &PMCResolver{
		baseURL:   strings.TrimRight(baseURL, "/"),
		fetcher:   fetcher,
		sanitizer: bluemonday.UGCPolicy(),
		markdown: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Name implements Resolver.
func (r *PMCResolver) Name() string { return "pmc" }

// Resolve implements Resolver.
func (r *PMCResolver) Resolve(ctx context.Context, paper domain.Paper) (*domain.Document, error) {
	pmcid := strings.ToUpper(strings.TrimSpace(paper.PMCID))
	if pmcid == "" {
		return nil, ErrNotApplicable
	}
	if !strings.HasPrefix(pmcid, "PMC") {
		pmcid = "PMC" + pmcid
	}

	pageURL := fmt.Sprintf("%s/%s/", r.baseURL, pmcid)
	result, err := r.fetcher.Fetch(ctx, pageURL, "text/html,application/xhtml+xml")
	if err != nil {
		return nil, err
	}

	text, err := r.HTMLToText(string(result.Content), pageURL)
	if err != nil {
		return nil, err
	}
	return &domain.Document{Source: r.Name(), ContentType: "text/html", Text: text}, nil
}

// HTMLToText sanitizes page markup and renders it as markdown text.
// Scripts, styles and forms are dropped by the sanitizer before conversion.
func (r *PMCResolver) HTMLToText(html, pageURL string) (string, error) {
	clean := r.sanitizer.Sanitize(html)
	text, err := r.markdown.ConvertString(clean, converter.WithDomain(pageURL))
	if err != nil {
		return "", fmt.Errorf("html conversion: %w", err)
	}
	text = strings.TrimSpace(text)
	if n := utf8.RuneCountInString(text); n < minArticleChars {
		return "", fmt.Errorf("article page too short (%d chars)", n)
	}
	return text, nil
}
