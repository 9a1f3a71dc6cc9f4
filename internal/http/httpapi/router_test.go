package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"bogofit/internal/domain"
	"bogofit/internal/http/handlers"
	"bogofit/internal/infra"
	"bogofit/internal/intake"
	"bogofit/internal/middleware"
	"bogofit/internal/pipeline"
	"bogofit/internal/productform"
	"bogofit/internal/progress"
	"bogofit/internal/runstore"
	"bogofit/internal/synth"
)

const testSecret = "test-secret"

type stubImageEngine struct {
	calls atomic.Int32
	delay time.Duration
}

func (s *stubImageEngine) SynthesizeImage(ctx context.Context, req synth.ImageRequest) (*synth.Result, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &synth.Result{Success: true, URL: "https://x/a.png"}, nil
}

type testEnv struct {
	server *httptest.Server
	engine *stubImageEngine
	forms  *productform.Registry
	token  string
}

func newTestEnv(t *testing.T, delay time.Duration) *testEnv {
	t.Helper()
	engine := &stubImageEngine{delay: delay}
	require, accept := pipeline.StandardSlots()
	reg, err := pipeline.NewRegistry(pipeline.Profile{Name: pipeline.EngineStandard, RequireAny: require, Accept: accept, Image: engine})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	store := runstore.NewMemory(time.Minute)
	pipe, err := pipeline.New(pipeline.Options{
		Engines:       reg,
		Store:         store,
		Estimator:     progress.Estimator{Interval: time.Millisecond},
		ImageProgress: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	forms := productform.NewRegistry(nil)
	app := &handlers.App{
		Config:    &infra.Config{},
		Logger:    zerolog.Nop(),
		Pipeline:  pipe,
		Runs:      store,
		Validator: intake.NewValidator(0),
		Fetcher:   intake.NewFetcher(intake.FetcherOptions{Allowlist: []string{"cdn.example.com"}}),
		Forms:     forms,
	}
	srv := httptest.NewServer(NewRouter(app, Options{JWTSecret: testSecret, DefaultLocale: "ko", Logger: zerolog.Nop()}))
	t.Cleanup(srv.Close)
	token, err := middleware.SignJWT(testSecret, "merchant-1", "", time.Hour)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	return &testEnv{server: srv, engine: engine, forms: forms, token: token}
}

func (e *testEnv) do(t *testing.T, method, path string, body *bytes.Buffer, contentType string) *http.Response {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req, err := http.NewRequest(method, e.server.URL+path, body)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Authorization", "Bearer "+e.token)
	resp, err := e.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 24, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 24; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 10), G: uint8(y * 10), B: uint8(x ^ y), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func gifBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := gif.Encode(&buf, image.NewPaletted(image.Rect(0, 0, 4, 4), color.Palette{color.Black, color.White}), nil); err != nil {
		t.Fatalf("encode gif: %v", err)
	}
	return buf.Bytes()
}

type part struct {
	field, filename, contentType string
	data                         []byte
}

func multipartBody(t *testing.T, parts []part, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		h := make(map[string][]string)
		h["Content-Disposition"] = []string{`form-data; name="` + p.field + `"; filename="` + p.filename + `"`}
		h["Content-Type"] = []string{p.contentType}
		w, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("CreatePart: %v", err)
		}
		_, _ = w.Write(p.data)
	}
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func waitDone(t *testing.T, env *testEnv, id string) domain.Run {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var run domain.Run
		decode(t, env.do(t, http.MethodGet, "/v1/fitting/runs/"+id, nil, ""), &run)
		if run.Stage.Terminal() {
			return run
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("run %s did not finish", id)
	return domain.Run{}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, 0)
	resp, err := env.server.Client().Get(env.server.URL + "/v1/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("missing request id header")
	}
}

func TestFittingRoutesRequireAuth(t *testing.T) {
	env := newTestEnv(t, 0)
	resp, err := env.server.Client().Post(env.server.URL+"/v1/fitting/runs", "multipart/form-data", strings.NewReader(""))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestCreateRunAndMergeIntoForm(t *testing.T) {
	env := newTestEnv(t, 0)
	body, ct := multipartBody(t,
		[]part{{field: "garment_file", filename: "shirt.png", contentType: "image/png", data: pngBytes(t)}},
		map[string]string{"product_title": "linen shirt", "form_id": "form-1"},
	)
	resp := env.do(t, http.MethodPost, "/v1/fitting/runs", body, ct)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var started domain.Run
	decode(t, resp, &started)
	if started.ID == "" || started.Stage != domain.StageSynthesizingImage {
		t.Fatalf("unexpected start snapshot %+v", started)
	}

	run := waitDone(t, env, started.ID)
	if run.Stage != domain.StageDone || run.GeneratedImage != "https://x/a.png" || run.Progress != 100 {
		t.Fatalf("unexpected final run %+v", run)
	}

	deadline := time.Now().Add(time.Second)
	for {
		state, err := env.forms.Get("form-1")
		if err == nil && len(state.Images) == 1 {
			if state.Images[0].URL != "https://x/a.png" || state.Images[0].Source != productform.SourceFitting {
				t.Fatalf("unexpected form %+v", state)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("artifact never merged into the form")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestCreateRunRejectsGIFWithoutCallingEngine(t *testing.T) {
	env := newTestEnv(t, 0)
	body, ct := multipartBody(t, []part{
		{field: "garment_file", filename: "shirt.png", contentType: "image/png", data: pngBytes(t)},
		{field: "human_file", filename: "me.gif", contentType: "image/gif", data: gifBytes(t)},
	}, nil)
	resp := env.do(t, http.MethodPost, "/v1/fitting/runs", body, ct)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var payload struct {
		FileErrors map[string]string `json:"fileErrors"`
	}
	decode(t, resp, &payload)
	if payload.FileErrors["human_file"] == "" {
		t.Fatalf("expected human_file error, got %#v", payload.FileErrors)
	}
	if env.engine.calls.Load() != 0 {
		t.Fatalf("engine was called for an invalid request")
	}
}

func TestCreateRunKeepsRejectedGarmentOverProductImage(t *testing.T) {
	env := newTestEnv(t, 0)
	body, ct := multipartBody(t,
		[]part{{field: "garment_file", filename: "shirt.gif", contentType: "image/gif", data: gifBytes(t)}},
		map[string]string{"product_image_url": "https://cdn.example.com/product.png"},
	)
	resp := env.do(t, http.MethodPost, "/v1/fitting/runs", body, ct)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var payload struct {
		FileErrors map[string]string `json:"fileErrors"`
	}
	decode(t, resp, &payload)
	if payload.FileErrors["garment_file"] == "" {
		t.Fatalf("expected garment_file error, got %#v", payload.FileErrors)
	}
	if env.engine.calls.Load() != 0 {
		t.Fatalf("engine was called for an invalid request")
	}
}

func TestCreateRunRejectsDisallowedURL(t *testing.T) {
	env := newTestEnv(t, 0)
	body, ct := multipartBody(t, nil, map[string]string{"garment_url": "https://evil.example/shirt.png"})
	resp := env.do(t, http.MethodPost, "/v1/fitting/runs", body, ct)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var payload struct {
		FileErrors map[string]string `json:"fileErrors"`
	}
	decode(t, resp, &payload)
	if payload.FileErrors["garment_file"] == "" {
		t.Fatalf("expected garment_file error, got %#v", payload.FileErrors)
	}
}

func TestUnknownEngineIsBadRequest(t *testing.T) {
	env := newTestEnv(t, 0)
	body, ct := multipartBody(t,
		[]part{{field: "garment_file", filename: "shirt.png", contentType: "image/png", data: pngBytes(t)}},
		map[string]string{"engine": "dalle"},
	)
	resp := env.do(t, http.MethodPost, "/v1/fitting/runs", body, ct)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decode(t, resp, &payload)
	if payload.Error.Code != "unsupported_engine" {
		t.Fatalf("code = %q", payload.Error.Code)
	}
}

func TestResetRun(t *testing.T) {
	env := newTestEnv(t, 0)
	if resp := env.do(t, http.MethodPost, "/v1/fitting/runs/missing/reset", nil, ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing run status = %d", resp.StatusCode)
	}

	body, ct := multipartBody(t, []part{{field: "garment_file", filename: "shirt.png", contentType: "image/png", data: pngBytes(t)}}, nil)
	var started domain.Run
	decode(t, env.do(t, http.MethodPost, "/v1/fitting/runs", body, ct), &started)
	waitDone(t, env, started.ID)

	resp := env.do(t, http.MethodPost, "/v1/fitting/runs/"+started.ID+"/reset", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset status = %d", resp.StatusCode)
	}
	var idle domain.Run
	decode(t, resp, &idle)
	if idle.Stage != domain.StageIdle || idle.GeneratedImage != "" {
		t.Fatalf("unexpected reset run %+v", idle)
	}
	if resp := env.do(t, http.MethodPost, "/v1/fitting/runs/"+started.ID+"/reset", nil, ""); resp.StatusCode != http.StatusConflict {
		t.Fatalf("second reset status = %d", resp.StatusCode)
	}
}

func TestStreamRun(t *testing.T) {
	env := newTestEnv(t, 60*time.Millisecond)
	body, ct := multipartBody(t, []part{{field: "garment_file", filename: "shirt.png", contentType: "image/png", data: pngBytes(t)}}, nil)
	var started domain.Run
	decode(t, env.do(t, http.MethodPost, "/v1/fitting/runs", body, ct), &started)

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/v1/fitting/runs/" + started.ID + "/stream?access_token=" + env.token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var last domain.Run
	lastProgress := -1
	for {
		var snap domain.Run
		if err := conn.ReadJSON(&snap); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				break
			}
			t.Fatalf("ReadJSON: %v", err)
		}
		if snap.Stage == domain.StageSynthesizingImage {
			if snap.Progress < lastProgress {
				t.Fatalf("progress went backwards: %d after %d", snap.Progress, lastProgress)
			}
			lastProgress = snap.Progress
		}
		last = snap
	}
	if last.Stage != domain.StageDone || last.GeneratedImage != "https://x/a.png" {
		t.Fatalf("stream ended on %+v", last)
	}
}
