// Package pdf fetches full-text documents and converts PDFs to plain text.
package pdf

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Sentinel errors for download operations.
var (
	// ErrNotPDF is returned when the body does not start with the %PDF- magic.
	ErrNotPDF = errors.New("pdf: content is not a PDF")
	// ErrPaywalled is returned when an HTML page came back where a PDF was
	// expected, which almost always means a login or paywall page.
	ErrPaywalled = errors.New("pdf: received HTML instead of PDF (likely paywalled)")
	// ErrTooLarge is returned when the body exceeds the maximum allowed size.
	ErrTooLarge = errors.New("pdf: file exceeds maximum size")
	// ErrDownloadFailed is returned when the download fails due to network or HTTP errors.
	ErrDownloadFailed = errors.New("pdf: download failed")
	// ErrSSRF is returned when the URL resolves to a private/internal network address.
	ErrSSRF = errors.New("pdf: request to private network denied")
)

// DefaultUserAgent is sent on direct downloads. Several open-access hosts
// refuse requests that do not look like a browser.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

var pdfMagic = []byte("%PDF-")

// DownloadResult holds a fetched body.
type DownloadResult struct {
	// Content is the response body.
	Content []byte
	// ContentHash is the SHA-256 hex digest of the content.
	ContentHash string
	// SizeBytes is the size of the content in bytes.
	SizeBytes int64
	// ContentType is the Content-Type header from the response.
	ContentType string
	// FinalURL is the URL after redirects.
	FinalURL string
}

// Config holds downloader configuration.
type Config struct {
	// Timeout is the HTTP request timeout. Default: 60 seconds.
	Timeout time.Duration
	// MaxSize is the maximum body size in bytes. Default: 50MB.
	MaxSize int64
	// UserAgent is the User-Agent header. Default: DefaultUserAgent.
	UserAgent string
	// AllowPrivateNetworks disables SSRF private-IP checks. This MUST only be
	// set to true in test environments.
	AllowPrivateNetworks bool
}

// Downloader fetches documents over HTTP with a size bound and SSRF guard.
// It is safe for concurrent use.
type Downloader struct {
	client               *http.Client
	maxSize              int64
	userAgent            string
	allowPrivateNetworks bool
}

// NewDownloader creates a new Downloader with the given configuration.
func NewDownloader(cfg Config) *Downloader {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = 50 * 1024 * 1024
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	d := &Downloader{
		maxSize:              cfg.MaxSize,
		userAgent:            cfg.UserAgent,
		allowPrivateNetworks: cfg.AllowPrivateNetworks,
	}

	d.client = &http.Client{
		Timeout: cfg.Timeout,
		// Open-access links routinely redirect through resolvers; every hop
		// is re-checked so a redirect cannot land on an internal address.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("%w: too many redirects", ErrDownloadFailed)
			}
			if !d.allowPrivateNetworks {
				return validateURLNotPrivate(req.URL.String())
			}
			return nil
		},
	}

	return d
}

// isPrivateIP returns true if the IP address is in a private, loopback, or
// otherwise non-routable range.
func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}

// validateURLNotPrivate resolves the hostname and rejects private IPs.
func validateURLNotPrivate(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}

	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("%w: scheme %q is not allowed", ErrSSRF, parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrDownloadFailed)
	}
	ips, err := net.LookupHost(host)
	if err != nil {
		return fmt.Errorf("%w: DNS lookup failed for %s: %w", ErrDownloadFailed, host, err)
	}
	for _, ipStr := range ips {
		ip := net.ParseIP(ipStr)
		if ip != nil && isPrivateIP(ip) {
			return fmt.Errorf("%w: %s resolves to private address %s", ErrSSRF, host, ipStr)
		}
	}
	return nil
}

// Download fetches rawURL and requires the body to be a PDF.
// Returns ErrPaywalled for HTML bodies, ErrNotPDF for anything else that
// lacks the %PDF- magic, ErrTooLarge past MaxSize and ErrDownloadFailed
// for network or non-2xx failures.
func (d *Downloader) Download(ctx context.Context, rawURL string) (*DownloadResult, error) {
	result, err := d.Fetch(ctx, rawURL, "application/pdf, */*;q=0.8")
	if err != nil {
		return nil, err
	}
	if err := CheckPDF(result.Content); err != nil {
		return nil, err
	}
	return result, nil
}

// Fetch GETs rawURL and returns the body whatever its type.
func (d *Downloader) Fetch(ctx context.Context, rawURL, accept string) (*DownloadResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL: %w", ErrDownloadFailed, err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return d.Do(req)
}

// Do sends a prepared request and reads the bounded body. It is used for
// proxy fetches that need a POST body and their own credentials.
func (d *Downloader) Do(req *http.Request) (*DownloadResult, error) {
	if !d.allowPrivateNetworks {
		if err := validateURLNotPrivate(req.URL.String()); err != nil {
			return nil, err
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrDownloadFailed, resp.StatusCode)
	}

	// Read one extra byte to detect an oversized body.
	content, err := io.ReadAll(io.LimitReader(resp.Body, d.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrDownloadFailed, err)
	}
	if int64(len(content)) > d.maxSize {
		return nil, fmt.Errorf("%w: exceeded %d bytes", ErrTooLarge, d.maxSize)
	}

	hash := sha256.Sum256(content)
	return &DownloadResult{
		Content:     content,
		ContentHash: hex.EncodeToString(hash[:]),
		SizeBytes:   int64(len(content)),
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    resp.Request.URL.String(),
	}, nil
}

// CheckPDF validates the %PDF- magic. Servers lie about Content-Type in
// both directions, so only the bytes are trusted.
func CheckPDF(content []byte) error {
	if bytes.HasPrefix(content, pdfMagic) {
		return nil
	}
	if looksLikeHTML(content) {
		return ErrPaywalled
	}
	return ErrNotPDF
}

func looksLikeHTML(content []byte) bool {
	head := content
	if len(head) > 512 {
		head = head[:512]
	}
	head = bytes.ToLower(bytes.TrimSpace(head))
	return bytes.HasPrefix(head, []byte("<")) ||
		bytes.Contains(head, []byte("<html")) ||
		bytes.Contains(head, []byte("<!doctype html"))
}
