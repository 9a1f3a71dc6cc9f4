package synth

import (
	"context"
	"errors"
	"strings"

	"bogofit/internal/domain"
)

// Input is one slot image handed to an image engine.
type Input struct {
	Slot domain.Slot
	Name string
	MIME string
	Data []byte
}

// ImageRequest is the Stage 1 input.
type ImageRequest struct {
	Inputs       []Input
	ProductTitle string
	Prompt       string
}

// HasSlot reports whether the request carries an image for slot.
func (r ImageRequest) HasSlot(slot domain.Slot) bool {
	for _, in := range r.Inputs {
		if in.Slot == slot {
			return true
		}
	}
	return false
}

// VideoRequest is the Stage 2 input: the source image URL and a prompt.
type VideoRequest struct {
	ImageURL     string
	Prompt       string
	ProductTitle string
}

// ImageEngine produces a composited image.
type ImageEngine interface {
	SynthesizeImage(ctx context.Context, req ImageRequest) (*Result, error)
}

// VideoEngine produces a short video from an image.
type VideoEngine interface {
	SynthesizeVideo(ctx context.Context, req VideoRequest) (*Result, error)
}

// ErrNoInputs is returned when an image request carries no files.
var ErrNoInputs = errors.New("synth: at least one input image is required")

// ErrNoSourceImage is returned when a video request has no image URL.
var ErrNoSourceImage = errors.New("synth: source image url is required")

// HTTPEngine submits both stages to multipart endpoints.
type HTTPEngine struct {
	Image     *Client
	Video     *Client
	ImagePath string
	VideoPath string
}

// Default endpoint paths.
const (
	DefaultImagePath = "/api/virtual-fitting"
	DefaultVideoPath = "/api/generate-video"
)

// SynthesizeImage posts each input as <slot>_file plus the product title.
func (e *HTTPEngine) SynthesizeImage(ctx context.Context, req ImageRequest) (*Result, error) {
	if len(req.Inputs) == 0 {
		return nil, ErrNoInputs
	}
	if e.Image == nil {
		return nil, ErrMissingBaseURL
	}
	files := make([]Part, 0, len(req.Inputs))
	for _, in := range req.Inputs {
		files = append(files, Part{Field: in.Slot.FieldName(), Name: in.Name, MIME: in.MIME, Data: in.Data})
	}
	fields := map[string]string{}
	if title := strings.TrimSpace(req.ProductTitle); title != "" {
		fields["product_title"] = title
	}
	if prompt := strings.TrimSpace(req.Prompt); prompt != "" {
		fields["prompt"] = prompt
	}
	path := e.ImagePath
	if path == "" {
		path = DefaultImagePath
	}
	return e.Image.Submit(ctx, Request{Path: path, Files: files, Fields: fields}, ArtifactImage)
}

// SynthesizeVideo posts the source image URL and prompt.
func (e *HTTPEngine) SynthesizeVideo(ctx context.Context, req VideoRequest) (*Result, error) {
	if strings.TrimSpace(req.ImageURL) == "" {
		return nil, ErrNoSourceImage
	}
	client := e.Video
	if client == nil {
		client = e.Image
	}
	if client == nil {
		return nil, ErrMissingBaseURL
	}
	path := e.VideoPath
	if path == "" {
		path = DefaultVideoPath
	}
	fields := map[string]string{
		"image_url": strings.TrimSpace(req.ImageURL),
		"prompt":    req.Prompt,
	}
	if title := strings.TrimSpace(req.ProductTitle); title != "" {
		fields["product_title"] = title
	}
	return client.Submit(ctx, Request{Path: path, Fields: fields}, ArtifactVideo)
}

var (
	_ ImageEngine = (*HTTPEngine)(nil)
	_ VideoEngine = (*HTTPEngine)(nil)
)
