// Package intake accepts slot images from uploads or remote URLs and checks
// them before any synthesis call is made.
package intake

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"mime"
	"net/http"
	"strings"

	"github.com/kolesa-team/go-webp/decoder"
	"github.com/kolesa-team/go-webp/webp"

	"bogofit/internal/domain"
)

// DefaultMaxBytes bounds a single slot image.
const DefaultMaxBytes int64 = 10 << 20

// Supported MIME types.
const (
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"
	MIMEWebP = "image/webp"
)

// Validation error codes.
const (
	CodeUnsupportedType = "unsupported_type"
	CodeEmpty           = "empty"
	CodeTooLarge        = "too_large"
	CodeMismatch        = "type_mismatch"
	CodeCorrupt         = "corrupt"
	CodeFetch           = "fetch_failed"
)

var allowed = map[string]string{
	MIMEJPEG: "jpg",
	MIMEPNG:  "png",
	MIMEWebP: "webp",
}

// ValidationError is a slot-scoped, non-fatal intake failure.
type ValidationError struct {
	Slot    domain.Slot
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("intake: %s: %s", e.Slot, e.Message)
}

func (e *ValidationError) Unwrap() error { return domain.ErrValidation }

// File is an accepted slot image.
type File struct {
	Slot      domain.Slot
	Name      string
	MIME      string
	Data      []byte
	Preview   string
	SourceURL string
}

// Size returns the byte length of the image.
func (f *File) Size() int {
	if f == nil {
		return 0
	}
	return len(f.Data)
}

// Validator checks type, size and decodability of slot images.
type Validator struct {
	MaxBytes int64
}

// NewValidator returns a Validator; maxBytes <= 0 selects DefaultMaxBytes.
func NewValidator(maxBytes int64) Validator {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return Validator{MaxBytes: maxBytes}
}

// Supported reports whether the MIME type is on the allow-list.
func Supported(mimeType string) bool {
	_, ok := allowed[NormalizeMIME(mimeType)]
	return ok
}

// Extension returns the canonical extension for a supported MIME type.
func Extension(mimeType string) string {
	return allowed[NormalizeMIME(mimeType)]
}

// NormalizeMIME lowercases, strips parameters and folds image/jpg into image/jpeg.
func NormalizeMIME(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(raw); err == nil {
		raw = parsed
	}
	raw = strings.ToLower(raw)
	if raw == "image/jpg" || raw == "image/pjpeg" {
		return MIMEJPEG
	}
	return raw
}

// Validate checks one slot image. An empty declared type falls back to the
// sniffed one. On failure the returned error is a *ValidationError and no File
// is produced.
func (v Validator) Validate(slot domain.Slot, name, declared string, data []byte) (*File, error) {
	maxBytes := v.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	declared = NormalizeMIME(declared)
	sniffed := NormalizeMIME(http.DetectContentType(data))
	if declared == "" || declared == "application/octet-stream" {
		declared = sniffed
	}
	if !Supported(declared) {
		return nil, invalid(slot, CodeUnsupportedType, unsupportedMessage(declared))
	}
	if len(data) == 0 {
		return nil, invalid(slot, CodeEmpty, "file is empty")
	}
	if int64(len(data)) > maxBytes {
		return nil, invalid(slot, CodeTooLarge, fmt.Sprintf("file exceeds %d MB", maxBytes>>20))
	}
	if sniffed != declared {
		return nil, invalid(slot, CodeMismatch, fmt.Sprintf("file content is %s, not %s", sniffed, declared))
	}
	if err := decodeCheck(declared, data); err != nil {
		return nil, invalid(slot, CodeCorrupt, "image could not be decoded")
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("%s.%s", slot, allowed[declared])
	}
	return &File{
		Slot:    slot,
		Name:    name,
		MIME:    declared,
		Data:    data,
		Preview: Preview(declared, data),
	}, nil
}

// Preview renders a data URL for immediate display.
func Preview(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// AsValidationError extracts a *ValidationError from err.
func AsValidationError(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}

func decodeCheck(mimeType string, data []byte) error {
	if mimeType == MIMEWebP {
		_, err := webp.Decode(bytes.NewReader(data), &decoder.Options{})
		return err
	}
	_, _, err := image.DecodeConfig(bytes.NewReader(data))
	return err
}

func unsupportedMessage(mimeType string) string {
	if mimeType == "" {
		return "unsupported file type; use JPEG, PNG or WebP"
	}
	return fmt.Sprintf("unsupported file type %s; use JPEG, PNG or WebP", mimeType)
}

func invalid(slot domain.Slot, code, msg string) *ValidationError {
	return &ValidationError{Slot: slot, Code: code, Message: msg}
}
