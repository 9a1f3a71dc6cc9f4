// Package productform holds the product-registration form state as an
// immutable value updated through pure transitions.
package productform

import (
	"errors"
	"fmt"
	"strings"
)

// MaxImages bounds the gallery of one product.
const MaxImages = 10

var (
	ErrIndexOutOfRange = errors.New("productform: image index out of range")
	ErrGalleryFull     = errors.New("productform: gallery is full")
	ErrEmptyURL        = errors.New("productform: image url is required")
	ErrUnknownAction   = errors.New("productform: unknown action")
)

// Source tells where a gallery image came from.
type Source string

const (
	SourceUpload  Source = "upload"
	SourceFitting Source = "fitting"
)

// Image is one gallery entry.
type Image struct {
	URL    string `json:"url"`
	Video  bool   `json:"video,omitempty"`
	Source Source `json:"source"`
}

// State is the form. MainIndex is -1 while the gallery is empty.
type State struct {
	Title     string  `json:"title"`
	Images    []Image `json:"images"`
	MainIndex int     `json:"mainIndex"`
}

// New returns an empty form.
func New() State {
	return State{Images: []Image{}, MainIndex: -1}
}

// Main returns the main image, if any.
func (s State) Main() (Image, bool) {
	if s.MainIndex < 0 || s.MainIndex >= len(s.Images) {
		return Image{}, false
	}
	return s.Images[s.MainIndex], true
}

func (s State) clone() State {
	out := s
	out.Images = append([]Image(nil), s.Images...)
	return out
}

func (s State) indexOf(url string) int {
	for i, img := range s.Images {
		if img.URL == url {
			return i
		}
	}
	return -1
}

// Action is a transition of State.
type Action interface {
	apply(State) (State, error)
}

// Apply returns the state after action. s is never modified.
func Apply(s State, action Action) (State, error) {
	if action == nil {
		return s, ErrUnknownAction
	}
	if s.Images == nil {
		s.Images = []Image{}
		s.MainIndex = -1
	}
	next, err := action.apply(s.clone())
	if err != nil {
		return s, err
	}
	return next, nil
}

// AddImage appends an uploaded image. The first image becomes main.
type AddImage struct {
	URL string
}

func (a AddImage) apply(s State) (State, error) {
	return add(s, Image{URL: strings.TrimSpace(a.URL), Source: SourceUpload})
}

// RemoveImage drops the image at Index, keeping MainIndex on the same image
// when it survives.
type RemoveImage struct {
	Index int
}

func (a RemoveImage) apply(s State) (State, error) {
	if a.Index < 0 || a.Index >= len(s.Images) {
		return s, fmt.Errorf("%w: %d", ErrIndexOutOfRange, a.Index)
	}
	s.Images = append(s.Images[:a.Index], s.Images[a.Index+1:]...)
	switch {
	case len(s.Images) == 0:
		s.MainIndex = -1
	case a.Index < s.MainIndex:
		s.MainIndex--
	case a.Index == s.MainIndex:
		s.MainIndex = 0
	}
	return s, nil
}

// SetMain selects the main image.
type SetMain struct {
	Index int
}

func (a SetMain) apply(s State) (State, error) {
	if a.Index < 0 || a.Index >= len(s.Images) {
		return s, fmt.Errorf("%w: %d", ErrIndexOutOfRange, a.Index)
	}
	s.MainIndex = a.Index
	return s, nil
}

// SetTitle replaces the product title.
type SetTitle struct {
	Title string
}

func (a SetTitle) apply(s State) (State, error) {
	s.Title = strings.TrimSpace(a.Title)
	return s, nil
}

// MergeArtifact adds a fitting result. Merging a URL already in the gallery
// is a no-op.
type MergeArtifact struct {
	URL   string
	Video bool
}

func (a MergeArtifact) apply(s State) (State, error) {
	url := strings.TrimSpace(a.URL)
	if url != "" && s.indexOf(url) >= 0 {
		return s, nil
	}
	return add(s, Image{URL: url, Video: a.Video, Source: SourceFitting})
}

func add(s State, img Image) (State, error) {
	if img.URL == "" {
		return s, ErrEmptyURL
	}
	if len(s.Images) >= MaxImages {
		return s, ErrGalleryFull
	}
	s.Images = append(s.Images, img)
	if s.MainIndex < 0 {
		s.MainIndex = 0
	}
	return s, nil
}
