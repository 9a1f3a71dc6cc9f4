package synth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
	"google.golang.org/genai"

	"bogofit/internal/infra"
)

// DefaultGeminiModel is the image model used when none is configured.
const DefaultGeminiModel = "gemini-2.5-flash-image"

// ErrMissingAPIKey indicates that the Gemini engine was configured without credentials.
var ErrMissingAPIKey = errors.New("synth: gemini api key is required")

// ContentGenerator is the subset of *genai.Models used by the engine.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// ArtifactStore persists generated bytes and returns their public URL.
type ArtifactStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// GeminiOptions configures the Gemini image engine.
type GeminiOptions struct {
	Generator   ContentGenerator
	Store       ArtifactStore
	Model       string
	WebPQuality float32
	Logger      *infra.Logger
}

// GeminiEngine composites slot images with a Gemini image model and stores
// the result so later stages can reference it by URL.
type GeminiEngine struct {
	gen     ContentGenerator
	store   ArtifactStore
	model   string
	quality float32
	logger  *infra.Logger
}

// NewGeminiModels creates the genai client used by NewGeminiEngine.
func NewGeminiModels(ctx context.Context, apiKey string) (ContentGenerator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("synth: create genai client: %w", err)
	}
	return client.Models, nil
}

// NewGeminiEngine validates options and applies defaults.
func NewGeminiEngine(opts GeminiOptions) (*GeminiEngine, error) {
	if opts.Generator == nil {
		return nil, ErrMissingAPIKey
	}
	if opts.Store == nil {
		return nil, errors.New("synth: artifact store is required")
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultGeminiModel
	}
	quality := opts.WebPQuality
	if quality <= 0 || quality > 100 {
		quality = 90
	}
	return &GeminiEngine{
		gen:     opts.Generator,
		store:   opts.Store,
		model:   model,
		quality: quality,
		logger:  infra.LoggerOrDiscard(opts.Logger),
	}, nil
}

// SynthesizeImage sends the prompt and every slot image in one request and
// stores the first inline image of the response.
func (e *GeminiEngine) SynthesizeImage(ctx context.Context, req ImageRequest) (*Result, error) {
	if len(req.Inputs) == 0 {
		return nil, ErrNoInputs
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		prompt = DefaultFittingPrompt(req)
	}
	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	for _, in := range req.Inputs {
		parts = append(parts, genai.NewPartFromBytes(in.Data, in.MIME))
	}

	started := time.Now()
	resp, err := e.gen.GenerateContent(ctx, e.model, []*genai.Content{{Role: "user", Parts: parts}}, &genai.GenerateContentConfig{
		Temperature: float32Ptr(0.4),
	})
	if err != nil {
		kind := KindNetwork
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = KindTimeout
		} else if Classify(err.Error()) == KindImageProcessing {
			kind = KindImageProcessing
		}
		e.logger.Error().Err(err).Str("model", e.model).Msg("synth: gemini request failed")
		return nil, &Error{Kind: kind, Stage: ArtifactImage, Err: err}
	}

	data, mimeType, text := firstInlineImage(resp)
	if len(data) == 0 {
		if text == "" {
			text = "no image returned"
		}
		e.logger.Warn().Str("model", e.model).Str("text", snippet(text, 200)).Msg("synth: gemini returned no image")
		return nil, &Error{Kind: KindRejected, Stage: ArtifactImage, Body: text}
	}

	data, mimeType = e.compress(data, mimeType)
	key := fmt.Sprintf("fitting/%s/%s.%s", time.Now().UTC().Format("2006/01/02"), uuid.NewString(), extensionFor(mimeType))
	url, err := e.store.Put(ctx, key, mimeType, data)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Stage: ArtifactImage, Err: fmt.Errorf("store artifact: %w", err)}
	}
	e.logger.Info().
		Str("model", e.model).
		Int("bytes", len(data)).
		Dur("elapsed", time.Since(started)).
		Str("url", url).
		Msg("synth: gemini image stored")
	return &Result{Success: true, URL: url}, nil
}

// compress re-encodes PNG output as lossy WebP; on failure the original is kept.
func (e *GeminiEngine) compress(data []byte, mimeType string) ([]byte, string) {
	if mimeType != "image/png" {
		return data, mimeType
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return data, mimeType
	}
	opts, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, e.quality)
	if err != nil {
		return data, mimeType
	}
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, opts); err != nil {
		e.logger.Warn().Err(err).Msg("synth: webp encode failed, keeping png")
		return data, mimeType
	}
	return buf.Bytes(), "image/webp"
}

func firstInlineImage(resp *genai.GenerateContentResponse) ([]byte, string, string) {
	if resp == nil {
		return nil, "", ""
	}
	var text strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mimeType := part.InlineData.MIMEType
				if mimeType == "" {
					mimeType = "image/png"
				}
				return part.InlineData.Data, mimeType, ""
			}
			if part.Text != "" {
				text.WriteString(part.Text)
			}
		}
	}
	return nil, "", strings.TrimSpace(text.String())
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/webp":
		return "webp"
	case "image/jpeg":
		return "jpg"
	default:
		return "png"
	}
}

var _ ImageEngine = (*GeminiEngine)(nil)

func float32Ptr(f float32) *float32 {
	return &f
}
