package acquire

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/helixir/interaction-miner/internal/pdf"
)

// DefaultUnlockerURL is the Bright Data request endpoint.
const DefaultUnlockerURL = "https://api.brightdata.com/request"

// UnlockerConfig configures the web unlocker proxy.
type UnlockerConfig struct {
	URL    string
	Zone   string
	APIKey string
}

// Requester sends a prepared request; *pdf.Downloader satisfies it.
type Requester interface {
	Do(req *http.Request) (*pdf.DownloadResult, error)
}

// Unlocker fetches a URL through a web unlocker proxy that solves bot
// checks on publisher sites and returns the raw target body.
type Unlocker struct {
	cfg       UnlockerConfig
	requester Requester
}

// NewUnlocker creates an Unlocker. It returns nil when no API key is set, and
// a nil *Unlocker is never consulted.
func NewUnlocker(cfg UnlockerConfig, requester Requester) *Unlocker {
	if cfg.APIKey == "" {
		return nil
	}
	if cfg.URL == "" {
		cfg.URL = DefaultUnlockerURL
	}
	if cfg.Zone == "" {
		cfg.Zone = "web_unlocker1"
	}
	return &Unlocker{cfg: cfg, requester: requester}
}

type unlockerRequest struct {
	Zone   string `json:"zone"`
	URL    string `json:"url"`
	Format string `json:"format"`
}

// Download fetches target through the proxy and requires a PDF body.
func (u *Unlocker) Download(ctx context.Context, target string) (*pdf.DownloadResult, error) {
	body, err := json.Marshal(unlockerRequest{Zone: u.cfg.Zone, URL: target, Format: "raw"})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal unlocker request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build unlocker request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+u.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	result, err := u.requester.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unlocker: %w", err)
	}
	if err := pdf.CheckPDF(result.Content); err != nil {
		return nil, fmt.Errorf("unlocker: %w", err)
	}
	return result, nil
}
