package synth

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestParseResponseWellFormed(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		artifact Artifact
		success  bool
		url      string
		errText  string
	}{
		{name: "imageUrl", body: `{"success":true,"imageUrl":"https://x/a.png"}`, artifact: ArtifactImage, success: true, url: "https://x/a.png"},
		{name: "snake case", body: `{"success":true,"image_url":"https://x/b.png"}`, artifact: ArtifactImage, success: true, url: "https://x/b.png"},
		{name: "no flag", body: `{"resultUrl":"https://x/c.webp"}`, artifact: ArtifactImage, success: true, url: "https://x/c.webp"},
		{name: "nested data", body: `{"success":true,"data":{"videoUrl":"https://x/v.mp4"}}`, artifact: ArtifactVideo, success: true, url: "https://x/v.mp4"},
		{name: "video key ignored for image", body: `{"success":true,"videoUrl":"https://x/v.mp4"}`, artifact: ArtifactImage, success: false},
		{name: "rejected", body: `{"success":false,"error":"quota exceeded"}`, artifact: ArtifactImage, success: false, errText: "quota exceeded"},
		{name: "nested error", body: `{"success":false,"error":{"message":"bad garment"}}`, artifact: ArtifactImage, success: false, errText: "bad garment"},
		{name: "success without url", body: `{"success":true}`, artifact: ArtifactImage, success: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, wellFormed := ParseResponse([]byte(tc.body), tc.artifact)
			if !wellFormed {
				t.Fatalf("expected well-formed parse")
			}
			if res.Success != tc.success {
				t.Fatalf("Success = %v, want %v (%+v)", res.Success, tc.success, res)
			}
			if tc.url != "" && res.URL != tc.url {
				t.Fatalf("URL = %q, want %q", res.URL, tc.url)
			}
			if tc.errText != "" && res.ErrorText != tc.errText {
				t.Fatalf("ErrorText = %q, want %q", res.ErrorText, tc.errText)
			}
			if !tc.success && res.ErrorText == "" {
				t.Fatalf("failed result must carry error text")
			}
			if res.Lenient {
				t.Fatalf("well-formed result must not be lenient")
			}
		})
	}
}

func TestParseResponseLenient(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		artifact Artifact
		url      string
	}{
		{name: "truncated json", body: `{"success":true,"imageUrl":"https://x/a.png","meta":{`, artifact: ArtifactImage, url: "https://x/a.png"},
		{name: "log noise prefix", body: "INFO done\n{\"image_url\": \"https://cdn.x/r/1.jpg\"}", artifact: ArtifactImage, url: "https://cdn.x/r/1.jpg"},
		{name: "bare link", body: "result saved to https://cdn.x/out/9.WEBP?sig=abc ok", artifact: ArtifactImage, url: "https://cdn.x/out/9.WEBP?sig=abc"},
		{name: "keyed wins over bare", body: `https://x/first.png "resultUrl":"https://x/keyed.png"`, artifact: ArtifactImage, url: "https://x/keyed.png"},
		{name: "video", body: `{"videoUrl":"https://x/clip.mp4",,}`, artifact: ArtifactVideo, url: "https://x/clip.mp4"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, wellFormed := ParseResponse([]byte(tc.body), tc.artifact)
			if wellFormed {
				t.Fatalf("expected malformed body")
			}
			if res == nil || !res.Success || !res.Lenient {
				t.Fatalf("expected lenient success, got %+v", res)
			}
			if res.URL != tc.url {
				t.Fatalf("URL = %q, want %q", res.URL, tc.url)
			}
		})
	}
}

func TestParseResponseUnrecoverable(t *testing.T) {
	bodies := []string{
		"<!DOCTYPE html><html><body>502 Bad Gateway</body></html>",
		"internal error",
		`{"imageUrl":"ftp://x/a.png"`,
		"see https://x/readme.txt",
	}
	for _, body := range bodies {
		if res, _ := ParseResponse([]byte(body), ArtifactImage); res != nil {
			t.Fatalf("%q: expected nil result, got %+v", body, res)
		}
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		body string
		want Kind
	}{
		{body: "<!DOCTYPE html><html>", want: KindMalformedHTML},
		{body: "  <html><head><title>504</title>", want: KindMalformedHTML},
		{body: "PIL.UnidentifiedImageError: cannot identify image file", want: KindImageProcessing},
		{body: "Invalid image payload", want: KindImageProcessing},
		{body: "error in PIL decoder", want: KindImageProcessing},
		{body: "upstream connect error", want: KindNetwork},
		{body: "pillow-free pipeline failed", want: KindNetwork},
		{body: "", want: KindNetwork},
	}
	for _, tc := range cases {
		if got := Classify(tc.body); got != tc.want {
			t.Fatalf("Classify(%q) = %s, want %s", tc.body, got, tc.want)
		}
	}
}

func TestSnippetKeepsRunes(t *testing.T) {
	body := "이미지 처리 중 오류가 발생했습니다"
	for limit := 1; limit < len(body); limit++ {
		got := snippet(body, limit)
		if !utf8.ValidString(got) {
			t.Fatalf("limit %d: cut mid-rune: %q", limit, got)
		}
		if !strings.HasSuffix(got, "...") || len(got)-3 > limit {
			t.Fatalf("limit %d: got %q", limit, got)
		}
	}
	if got := snippet("  short  ", 10); got != "short" {
		t.Fatalf("got %q", got)
	}
}
