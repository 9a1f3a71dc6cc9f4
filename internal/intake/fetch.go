package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bogofit/internal/domain"
	"bogofit/internal/infra"
)

var (
	// ErrHostNotAllowed is returned for remote images outside the host allow-list.
	ErrHostNotAllowed = errors.New("intake: image host not allowed")
	// ErrInvalidURL is returned for URLs that are not absolute http(s).
	ErrInvalidURL = errors.New("intake: invalid image url")
	// ErrTooLarge is returned when a remote body exceeds the fetcher's byte limit.
	ErrTooLarge = errors.New("intake: remote body too large")
)

const maxRedirects = 5

// FetcherOptions configures remote image fetching.
type FetcherOptions struct {
	Allowlist      []string
	MaxBytes       int64
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
	Now            func() time.Time
}

// Fetcher downloads remote images on behalf of the caller so browsers never
// make cross-origin requests for slot inputs.
type Fetcher struct {
	allow      map[string]struct{}
	maxBytes   int64
	validator  Validator
	httpClient *http.Client
	logger     *infra.Logger
	now        func() time.Time
}

// NewFetcher constructs a Fetcher. An empty allow-list accepts any host.
func NewFetcher(opts FetcherOptions) *Fetcher {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	} else {
		copied := *httpClient
		httpClient = &copied
	}
	allow := make(map[string]struct{}, len(opts.Allowlist))
	for _, host := range opts.Allowlist {
		if host = strings.ToLower(strings.TrimSpace(host)); host != "" {
			allow[host] = struct{}{}
		}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	v := NewValidator(opts.MaxBytes)
	f := &Fetcher{
		allow:      allow,
		maxBytes:   v.MaxBytes,
		validator:  v,
		httpClient: httpClient,
		logger:     infra.LoggerOrDiscard(opts.Logger),
		now:        now,
	}
	// Every hop goes through the allow-list, not just the first URL.
	httpClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("intake: stopped after %d redirects", maxRedirects)
		}
		return f.Allowed(req.URL.String())
	}
	return f
}

// Allowed reports whether rawURL may be fetched.
func (f *Fetcher) Allowed(rawURL string) error {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	if len(f.allow) == 0 {
		return nil
	}
	if _, ok := f.allow[strings.ToLower(parsed.Hostname())]; !ok {
		return fmt.Errorf("%w: %s", ErrHostNotAllowed, parsed.Hostname())
	}
	return nil
}

// Download returns the bytes and normalized content type of a remote image.
func (f *Fetcher) Download(ctx context.Context, rawURL string) ([]byte, string, error) {
	if err := f.Allowed(rawURL); err != nil {
		return nil, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSpace(rawURL), nil)
	if err != nil {
		return nil, "", fmt.Errorf("intake: build download request: %w", err)
	}
	req.Header.Set("Accept", "image/jpeg, image/png, image/webp")
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("intake: download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("intake: download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("intake: read image: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, "", fmt.Errorf("%w: over %d bytes", ErrTooLarge, f.maxBytes)
	}
	contentType := NormalizeMIME(resp.Header.Get("Content-Type"))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = NormalizeMIME(http.DetectContentType(data))
	}
	f.logger.Debug().
		Str("url", rawURL).
		Str("content_type", contentType).
		Int("bytes", len(data)).
		Msg("intake: fetched remote image")
	return data, contentType, nil
}

// Fetch downloads rawURL and validates it for slot, naming the file
// <slot>-<unix>.<ext>.
func (f *Fetcher) Fetch(ctx context.Context, slot domain.Slot, rawURL string) (*File, error) {
	data, contentType, err := f.Download(ctx, rawURL)
	if err != nil {
		f.logger.Warn().Err(err).Str("slot", string(slot)).Msg("intake: remote image rejected")
		if errors.Is(err, ErrTooLarge) {
			return nil, invalid(slot, CodeTooLarge, fmt.Sprintf("file exceeds %d MB", f.maxBytes>>20))
		}
		return nil, invalid(slot, CodeFetch, "could not load the image from the given address")
	}
	ext := Extension(contentType)
	if ext == "" {
		ext = "img"
	}
	name := fmt.Sprintf("%s-%d.%s", slot, f.now().Unix(), ext)
	file, err := f.validator.Validate(slot, name, contentType, data)
	if err != nil {
		return nil, err
	}
	file.SourceURL = strings.TrimSpace(rawURL)
	return file, nil
}
