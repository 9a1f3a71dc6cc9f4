package intake

import (
	"errors"
	"strings"
	"testing"

	"bogofit/internal/domain"
)

func TestValidateAcceptsSupportedTypes(t *testing.T) {
	cases := []struct {
		name     string
		declared string
		data     []byte
		wantMIME string
	}{
		{name: "png", declared: "image/png", data: pngBytes(t, 24), wantMIME: MIMEPNG},
		{name: "jpeg", declared: "image/jpeg", data: jpegBytes(t), wantMIME: MIMEJPEG},
		{name: "jpg alias", declared: "image/jpg", data: jpegBytes(t), wantMIME: MIMEJPEG},
		{name: "webp", declared: "image/webp", data: webpBytes(t), wantMIME: MIMEWebP},
		{name: "sniffed when undeclared", declared: "", data: pngBytes(t, 8), wantMIME: MIMEPNG},
	}

	v := NewValidator(0)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := v.Validate(domain.SlotGarment, "shirt", tc.declared, tc.data)
			if err != nil {
				t.Fatalf("Validate returned error: %v", err)
			}
			if f.MIME != tc.wantMIME {
				t.Fatalf("MIME = %q, want %q", f.MIME, tc.wantMIME)
			}
			if !strings.HasPrefix(f.Preview, "data:"+tc.wantMIME+";base64,") {
				t.Fatalf("unexpected preview prefix: %.40s", f.Preview)
			}
			if f.Size() != len(tc.data) {
				t.Fatalf("Size = %d, want %d", f.Size(), len(tc.data))
			}
		})
	}
}

func TestValidateRejects(t *testing.T) {
	v := NewValidator(4096)
	corrupt := append([]byte{}, pngBytes(t, 8)[:20]...)

	cases := []struct {
		name     string
		declared string
		data     []byte
		code     string
	}{
		{name: "gif", declared: "image/gif", data: gifBytes(t), code: CodeUnsupportedType},
		{name: "gif sniffed", declared: "", data: gifBytes(t), code: CodeUnsupportedType},
		{name: "text", declared: "text/plain", data: []byte("hello"), code: CodeUnsupportedType},
		{name: "empty", declared: "image/png", data: nil, code: CodeEmpty},
		{name: "too large", declared: "image/png", data: pngBytes(t, 64), code: CodeTooLarge},
		{name: "mismatch", declared: "image/png", data: jpegBytes(t), code: CodeMismatch},
		{name: "corrupt", declared: "image/png", data: corrupt, code: CodeCorrupt},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := v.Validate(domain.SlotHuman, "x", tc.declared, tc.data)
			if f != nil {
				t.Fatalf("expected no file, got %+v", f)
			}
			verr, ok := AsValidationError(err)
			if !ok {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Code != tc.code {
				t.Fatalf("code = %q, want %q", verr.Code, tc.code)
			}
			if verr.Slot != domain.SlotHuman || verr.Message == "" {
				t.Fatalf("unexpected error %+v", verr)
			}
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation in chain")
			}
		})
	}
}

func TestValidateDefaultsFileName(t *testing.T) {
	f, err := NewValidator(0).Validate(domain.SlotLower, " ", "image/png", pngBytes(t, 8))
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if f.Name != "lower.png" {
		t.Fatalf("Name = %q, want lower.png", f.Name)
	}
}
