package synth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"bogofit/internal/infra"
)

// ErrMissingBaseURL indicates that the client was configured without an endpoint.
var ErrMissingBaseURL = errors.New("synth: base url is required")

// maxResponseBytes bounds how much of an upstream body is read.
const maxResponseBytes = 4 << 20

// Options configures a multipart synthesis client.
type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client posts multipart forms to a synthesis service. Each call is made at
// most once; callers bound it with a context deadline.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *infra.Logger
}

// Part is one file field of a multipart request.
type Part struct {
	Field string
	Name  string
	MIME  string
	Data  []byte
}

// Request is a multipart submission to Path.
type Request struct {
	Path   string
	Files  []Part
	Fields map[string]string
}

// NewClient constructs a client. The HTTP client carries no timeout of its
// own; per-call deadlines come from ctx.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(opts.APIKey),
		httpClient: httpClient,
		logger:     infra.LoggerOrDiscard(opts.Logger),
	}, nil
}

// Submit sends req and parses the response for an artifact of the given kind.
// Every failure is returned as *Error.
func (c *Client) Submit(ctx context.Context, req Request, artifact Artifact) (*Result, error) {
	body, contentType, err := encodeMultipart(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Stage: artifact, Err: err}
	}
	endpoint := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Stage: artifact, Err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		kind := KindNetwork
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = KindTimeout
		}
		return nil, &Error{Kind: kind, Stage: artifact, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		kind := KindNetwork
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = KindTimeout
		}
		return nil, &Error{Kind: kind, Stage: artifact, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	log := c.logger.With().
		Str("artifact", string(artifact)).
		Str("path", req.Path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Logger()

	if resp.StatusCode >= 300 {
		text := string(raw)
		log.Error().Str("body", snippet(text, 300)).Msg("synth: upstream error status")
		return nil, &Error{Kind: Classify(text), Stage: artifact, StatusCode: resp.StatusCode, Body: text}
	}

	result, wellFormed := ParseResponse(raw, artifact)
	if result == nil {
		text := string(raw)
		log.Error().Str("body", snippet(text, 300)).Msg("synth: unparseable response")
		return nil, &Error{Kind: Classify(text), Stage: artifact, StatusCode: resp.StatusCode, Body: text}
	}
	if !wellFormed {
		log.Warn().Bool("lenient", true).Str("url", result.URL).Msg("synth: recovered artifact url from malformed response")
	}
	if !result.Success {
		log.Warn().Str("error", result.ErrorText).Msg("synth: upstream rejected request")
		return nil, &Error{Kind: KindRejected, Stage: artifact, StatusCode: resp.StatusCode, Body: result.ErrorText}
	}
	log.Debug().Str("url", result.URL).Msg("synth: artifact ready")
	return result, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func encodeMultipart(req Request) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range req.Files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, quoteEscaper.Replace(p.Field), quoteEscaper.Replace(p.Name)))
		mimeType := p.MIME
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		h.Set("Content-Type", mimeType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create part %s: %w", p.Field, err)
		}
		if _, err := part.Write(p.Data); err != nil {
			return nil, "", fmt.Errorf("write part %s: %w", p.Field, err)
		}
	}
	for key, value := range req.Fields {
		if err := w.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", key, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
