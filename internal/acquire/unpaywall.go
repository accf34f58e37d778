package acquire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/helixir/interaction-miner/internal/domain"
	"github.com/helixir/interaction-miner/internal/papersources"
)

// DefaultUnpaywallBaseURL is the Unpaywall v2 API.
const DefaultUnpaywallBaseURL = "https://api.unpaywall.org/v2"

// ErrNoOpenAccess is returned when Unpaywall knows no open-access PDF.
var ErrNoOpenAccess = errors.New("no open-access PDF location")

// unpaywallRecord is the part of an Unpaywall DOI record the resolver reads.
type unpaywallRecord struct {
	DOI            string `json:"doi"`
	IsOA           bool   `json:"is_oa"`
	BestOALocation *struct {
		URLForPDF string `json:"url_for_pdf"`
		URL       string `json:"url"`
		HostType  string `json:"host_type"`
	} `json:"best_oa_location"`
}

// UnpaywallResolver looks up the best open-access PDF for a DOI on
// Unpaywall and downloads it, through the unlocker proxy first when one is
// configured.
type UnpaywallResolver struct {
	baseURL   string
	email     string
	api       *papersources.HTTPClient
	fetcher   Fetcher
	unlocker  *Unlocker
	converter Converter
}

// UnpaywallConfig configures an UnpaywallResolver.
type UnpaywallConfig struct {
	BaseURL string
	// Email is required by Unpaywall's terms of use.
	Email string
}

// NewUnpaywallResolver creates an UnpaywallResolver. unlocker may be nil.
func NewUnpaywallResolver(cfg UnpaywallConfig, api *papersources.HTTPClient, fetcher Fetcher, unlocker *Unlocker, converter Converter) *UnpaywallResolver {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultUnpaywallBaseURL
	}
	return &UnpaywallResolver{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		email:     cfg.Email,
		api:       api,
		fetcher:   fetcher,
		unlocker:  unlocker,
		converter: converter,
	}
}

// Name implements Resolver.
func (r *UnpaywallResolver) Name() string { return "unpaywall" }

// Resolve implements Resolver.
func (r *UnpaywallResolver) Resolve(ctx context.Context, paper domain.Paper) (*domain.Document, error) {
	pdfURL, err := r.lookup(ctx, domain.NormalizeDOI(paper.DOI))
	if err != nil {
		return nil, err
	}

	content, err := r.download(ctx, pdfURL)
	if err != nil {
		return nil, err
	}
	text, err := r.converter.Convert(ctx, content)
	if err != nil {
		return nil, err
	}
	return &domain.Document{Source: r.Name(), ContentType: "application/pdf", Text: text}, nil
}

// lookup returns best_oa_location.url_for_pdf for doi.
func (r *UnpaywallResolver) lookup(ctx context.Context, doi string) (string, error) {
	// DOIs keep their slash in the path, as Unpaywall expects.
	escaped := strings.ReplaceAll(url.PathEscape(doi), "%2F", "/")
	endpoint := fmt.Sprintf("%s/%s?%s", r.baseURL, escaped, url.Values{"email": {r.email}}.Encode())

	resp, err := r.api.Get(ctx, endpoint, "application/json")
	if err != nil {
		return "", fmt.Errorf("unpaywall lookup failed: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		_ = resp.Body.Close()
		return "", fmt.Errorf("%w: DOI unknown to Unpaywall", ErrNoOpenAccess)
	}
	if err := papersources.CheckStatus("Unpaywall", resp); err != nil {
		return "", err
	}
	body, err := papersources.ReadBody(resp, papersources.DefaultMaxBodySize)
	if err != nil {
		return "", err
	}

	var record unpaywallRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return "", fmt.Errorf("failed to parse Unpaywall response: %w", err)
	}
	if record.BestOALocation == nil || record.BestOALocation.URLForPDF == "" {
		return "", ErrNoOpenAccess
	}
	return record.BestOALocation.URLForPDF, nil
}

// download tries the unlocker then a direct download.
func (r *UnpaywallResolver) download(ctx context.Context, pdfURL string) ([]byte, error) {
	var unlockErr error
	if r.unlocker != nil {
		result, err := r.unlocker.Download(ctx, pdfURL)
		if err == nil {
			return result.Content, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		unlockErr = err
	}

	result, err := r.fetcher.Download(ctx, pdfURL)
	if err != nil {
		if unlockErr != nil {
			return nil, fmt.Errorf("%w (%v)", err, unlockErr)
		}
		return nil, err
	}
	return result.Content, nil
}
