package synth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"google.golang.org/genai"

	"bogofit/internal/domain"
)

type stubGenerator struct {
	resp     *genai.GenerateContentResponse
	err      error
	model    string
	contents []*genai.Content
}

func (s *stubGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	s.model = model
	s.contents = contents
	return s.resp, s.err
}

type stubStore struct {
	key         string
	contentType string
	data        []byte
	err         error
}

func (s *stubStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	s.key, s.contentType, s.data = key, contentType, data
	if s.err != nil {
		return "", s.err
	}
	return "https://cdn.example.com/" + key, nil
}

func inlineResponse(data []byte, mimeType string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "here you go"},
				{InlineData: &genai.Blob{Data: data, MIMEType: mimeType}},
			}},
		}},
	}
}

func TestNewGeminiEngineRequiresDependencies(t *testing.T) {
	if _, err := NewGeminiEngine(GeminiOptions{Store: &stubStore{}}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
	if _, err := NewGeminiEngine(GeminiOptions{Generator: &stubGenerator{}}); err == nil {
		t.Fatalf("expected error without store")
	}
	if _, err := NewGeminiModels(context.Background(), " "); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestGeminiEngineStoresInlineImage(t *testing.T) {
	gen := &stubGenerator{resp: inlineResponse([]byte{0xff, 0xd8, 0xff, 0x00}, "image/jpeg")}
	store := &stubStore{}
	engine, err := NewGeminiEngine(GeminiOptions{Generator: gen, Store: store})
	if err != nil {
		t.Fatalf("NewGeminiEngine: %v", err)
	}

	res, err := engine.SynthesizeImage(context.Background(), ImageRequest{
		Inputs:       []Input{{Slot: domain.SlotGarment, MIME: "image/png", Data: []byte("garment")}},
		ProductTitle: "Linen shirt",
	})
	if err != nil {
		t.Fatalf("SynthesizeImage: %v", err)
	}
	if gen.model != DefaultGeminiModel {
		t.Fatalf("model = %q", gen.model)
	}
	if len(gen.contents) != 1 || len(gen.contents[0].Parts) != 2 {
		t.Fatalf("expected prompt plus one image part, got %+v", gen.contents)
	}
	prompt := gen.contents[0].Parts[0].Text
	if !strings.Contains(prompt, "top garment") || !strings.Contains(prompt, "Linen shirt") {
		t.Fatalf("unexpected prompt %q", prompt)
	}
	if store.contentType != "image/jpeg" || !strings.HasSuffix(store.key, ".jpg") || !strings.HasPrefix(store.key, "fitting/") {
		t.Fatalf("unexpected stored object %s (%s)", store.key, store.contentType)
	}
	if res.URL != "https://cdn.example.com/"+store.key || !res.Success {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestGeminiEngineNoImageIsRejected(t *testing.T) {
	gen := &stubGenerator{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: "I can't help with that"}}}}},
	}}
	engine, _ := NewGeminiEngine(GeminiOptions{Generator: gen, Store: &stubStore{}})

	_, err := engine.SynthesizeImage(context.Background(), ImageRequest{Inputs: []Input{{Slot: domain.SlotGarment, Data: []byte("x")}}})
	var serr *Error
	if !errors.As(err, &serr) || serr.Kind != KindRejected {
		t.Fatalf("expected rejected error, got %v", err)
	}
	if !strings.Contains(serr.Body, "can't help") {
		t.Fatalf("Body = %q", serr.Body)
	}
}

func TestGeminiEngineErrors(t *testing.T) {
	cases := []struct {
		name string
		gen  *stubGenerator
		put  error
		kind Kind
	}{
		{name: "deadline", gen: &stubGenerator{err: context.DeadlineExceeded}, kind: KindTimeout},
		{name: "api error", gen: &stubGenerator{err: errors.New("Error 500, INTERNAL")}, kind: KindNetwork},
		{name: "store error", gen: &stubGenerator{resp: inlineResponse([]byte("x"), "image/jpeg")}, put: errors.New("denied"), kind: KindNetwork},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine, _ := NewGeminiEngine(GeminiOptions{Generator: tc.gen, Store: &stubStore{err: tc.put}})
			_, err := engine.SynthesizeImage(context.Background(), ImageRequest{Inputs: []Input{{Slot: domain.SlotHuman, Data: []byte("x")}}})
			if KindOf(err) != tc.kind {
				t.Fatalf("kind = %s, want %s (%v)", KindOf(err), tc.kind, err)
			}
		})
	}
}

func TestDefaultVideoPrompt(t *testing.T) {
	en := DefaultVideoPrompt("  linen   summer shirt ", "en-US")
	if !strings.Contains(en, "Linen Summer Shirt") {
		t.Fatalf("expected title-cased product, got %q", en)
	}
	ko := DefaultVideoPrompt("린넨 셔츠", "ko")
	if !strings.Contains(ko, "린넨 셔츠") || !strings.HasPrefix(ko, "모델이") {
		t.Fatalf("unexpected korean prompt %q", ko)
	}
	if DefaultVideoPrompt("", "en") == "" {
		t.Fatalf("empty title must still produce a prompt")
	}
}
