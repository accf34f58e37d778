package domain

import (
	"strings"
)

// Author represents a paper author.
type Author struct {
	Name        string `json:"name"`
	Affiliation string `json:"affiliation,omitempty"`
}

// Paper is a search candidate. The DOI is its identity for deduplication
// within a job; papers without one never reach the relevance check.
type Paper struct {
	PMID          string   `json:"pmid,omitempty"`
	DOI           string   `json:"doi,omitempty"`
	PMCID         string   `json:"pmcid,omitempty"`
	Title         string   `json:"title"`
	Abstract      string   `json:"abstract,omitempty"`
	Journal       string   `json:"journal,omitempty"`
	PublishedDate string   `json:"published_date,omitempty"`
	Authors       []Author `json:"authors,omitempty"`
	Keywords      []string `json:"keywords,omitempty"`
}

// HasDOI reports whether the paper carries a usable DOI.
func (p Paper) HasDOI() bool {
	return strings.TrimSpace(p.DOI) != ""
}

// NormalizeDOI strips resolver prefixes and whitespace and lowercases the DOI.
// DOIs are case-insensitive, so "10.1000/ABC" and "https://doi.org/10.1000/abc"
// identify the same paper.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	lower := strings.ToLower(doi)
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/", "doi:"} {
		if strings.HasPrefix(lower, prefix) {
			lower = lower[len(prefix):]
			break
		}
	}
	return strings.TrimSpace(lower)
}
