// Package synth talks to the external image and video synthesis services.
package synth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"bogofit/internal/domain"
)

// Kind classifies a failed synthesis call.
type Kind string

const (
	KindMalformedHTML   Kind = "malformed_html"
	KindImageProcessing Kind = "image_processing"
	KindNetwork         Kind = "network"
	KindTimeout         Kind = "timeout"
	KindRejected        Kind = "upstream_rejected"
)

// Artifact selects which URL keys a response is searched for.
type Artifact string

const (
	ArtifactImage Artifact = "image"
	ArtifactVideo Artifact = "video"
)

// Result is the parsed outcome of one synthesis call.
type Result struct {
	Success   bool
	URL       string
	ErrorText string
	// Lenient marks a URL recovered from a body that was not valid JSON.
	Lenient bool
}

// Error is returned for every failed synthesis call.
type Error struct {
	Kind       Kind
	Stage      Artifact
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "synth: %s %s", e.Stage, e.Kind)
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	} else if body := snippet(e.Body, 200); body != "" {
		b.WriteString(": ")
		b.WriteString(body)
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{domain.ErrProviderFailure, e.Err}
	}
	return []error{domain.ErrProviderFailure}
}

// KindOf returns the failure kind carried by err, defaulting to network.
func KindOf(err error) Kind {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindNetwork
}

var imageProcessingMarkers = []string{
	"cannot identify image",
	"image processing",
	"invalid image",
	"unidentifiedimageerror",
	"pil",
	"decode image",
	"image file is truncated",
	"unsupported image",
}

// Classify assigns a failure kind to a raw upstream body. HTML pages point at a
// proxy or gateway error, image-library phrases at the upstream's own image
// handling, and anything else is treated as a network failure.
func Classify(body string) Kind {
	trimmed := strings.ToLower(strings.TrimSpace(body))
	if strings.HasPrefix(trimmed, "<!doctype") || strings.HasPrefix(trimmed, "<html") {
		return KindMalformedHTML
	}
	for _, marker := range imageProcessingMarkers {
		if marker == "pil" {
			if containsWord(trimmed, marker) {
				return KindImageProcessing
			}
			continue
		}
		if strings.Contains(trimmed, marker) {
			return KindImageProcessing
		}
	}
	return KindNetwork
}

func containsWord(haystack, word string) bool {
	for _, field := range strings.FieldsFunc(haystack, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		if field == word {
			return true
		}
	}
	return false
}

func snippet(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit] + "..."
}
