package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bogofit/internal/infra"
)

// PresignPath is the backend route that hands out signed upload URLs.
const PresignPath = "/v1/uploads/presign"

var (
	ErrPresignFailed = errors.New("storage: presign request failed")
	ErrUploadFailed  = errors.New("storage: upload failed")
)

// PresignRequest is the body of a presign call.
type PresignRequest struct {
	Filename    string `json:"filename" validate:"required,max=255"`
	ContentType string `json:"contentType" validate:"required,oneof=image/jpeg image/png image/webp video/mp4 video/webm"`
	Prefix      string `json:"prefix,omitempty" validate:"omitempty,max=64,alphanum"`
}

// UploaderOptions configures an Uploader.
type UploaderOptions struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Uploader performs the two-step direct upload: ask the backend for a signed
// URL, then PUT the bytes to it.
type Uploader struct {
	baseURL string
	token   string
	http    *http.Client
	logger  infra.Logger
}

// NewUploader constructs an Uploader for the backend at opts.BaseURL.
func NewUploader(opts UploaderOptions) (*Uploader, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("storage: backend base url is required")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Uploader{
		baseURL: base,
		token:   strings.TrimSpace(opts.Token),
		http:    client,
		logger:  infra.LoggerOrDiscard(opts.Logger).With().Str("component", "uploader").Logger(),
	}, nil
}

// Upload sends data and returns its public URL. The PUT is only issued after
// the presign step succeeded.
func (u *Uploader) Upload(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	signed, err := u.presign(ctx, PresignRequest{Filename: filename, ContentType: contentType})
	if err != nil {
		return "", err
	}
	if err := u.put(ctx, signed, data); err != nil {
		return "", err
	}
	u.logger.Info().Str("key", signed.Key).Int("bytes", len(data)).Msg("storage: upload complete")
	return signed.PublicURL, nil
}

func (u *Uploader) presign(ctx context.Context, body PresignRequest) (PresignedUpload, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return PresignedUpload{}, fmt.Errorf("storage: encode presign request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+PresignPath, bytes.NewReader(payload))
	if err != nil {
		return PresignedUpload{}, fmt.Errorf("storage: build presign request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if u.token != "" {
		req.Header.Set("Authorization", "Bearer "+u.token)
	}

	resp, err := u.http.Do(req)
	if err != nil {
		return PresignedUpload{}, fmt.Errorf("%w: %v", ErrPresignFailed, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return PresignedUpload{}, fmt.Errorf("%w: read body: %v", ErrPresignFailed, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return PresignedUpload{}, fmt.Errorf("%w: status %d: %s", ErrPresignFailed, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var signed PresignedUpload
	if err := json.Unmarshal(raw, &signed); err != nil {
		return PresignedUpload{}, fmt.Errorf("%w: decode response: %v", ErrPresignFailed, err)
	}
	if signed.UploadURL == "" || signed.PublicURL == "" {
		return PresignedUpload{}, fmt.Errorf("%w: response is missing urls", ErrPresignFailed)
	}
	return signed, nil
}

func (u *Uploader) put(ctx context.Context, signed PresignedUpload, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, signed.UploadURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("storage: build upload request: %w", err)
	}
	if signed.ContentType != "" {
		req.Header.Set("Content-Type", signed.ContentType)
	}
	req.ContentLength = int64(len(data))

	resp, err := u.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrUploadFailed, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
