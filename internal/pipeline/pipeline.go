// Package pipeline runs one fitting request through image synthesis and the
// optional video stage, and exposes its state while it runs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"bogofit/internal/domain"
	"bogofit/internal/infra"
	"bogofit/internal/intake"
	"bogofit/internal/progress"
	"bogofit/internal/synth"
)

// Stage deadlines and cosmetic progress durations used when none are configured.
const (
	DefaultImageTimeout      = 120 * time.Second
	DefaultBackgroundTimeout = 300 * time.Second
	DefaultVideoTimeout      = 300 * time.Second
	DefaultImageProgress     = 40 * time.Second
	DefaultVideoProgress     = 90 * time.Second
	outcomeRecordTimeout     = 5 * time.Second
)

// VideoSource selects the Stage 2 input image.
type VideoSource string

const (
	VideoFromGenerated VideoSource = "generated"
	VideoFromOriginal  VideoSource = "original"
)

// ErrUnknownVideoSource rejects a VideoSource other than generated or original.
var ErrUnknownVideoSource = fmt.Errorf("%w: video source must be generated or original", domain.ErrValidation)

func (v VideoSource) valid() bool {
	return v == "" || v == VideoFromGenerated || v == VideoFromOriginal
}

// InputError carries slot-scoped validation failures found before any
// upstream call.
type InputError struct {
	Fields map[string]string
}

func (e *InputError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "pipeline: invalid input: " + strings.Join(parts, "; ")
}

func (e *InputError) Unwrap() error { return domain.ErrValidation }

// StartRequest is everything needed to launch a run.
type StartRequest struct {
	// RunID reuses a run that was reset to idle; empty creates a new run.
	RunID            string
	Engine           string
	Slots            *intake.SlotSet
	ProductTitle     string
	GenerateVideo    bool
	VideoSource      VideoSource
	OriginalImageURL string
	VideoPrompt      string
	Locale           string
	Sink             Sink
}

// Options configures a Pipeline.
type Options struct {
	Engines       *Registry
	Store         domain.RunRepository
	Recorder      domain.OutcomeRecorder
	Estimator     progress.Estimator
	ImageProgress time.Duration
	VideoProgress time.Duration
	Logger        *infra.Logger
	Now           func() time.Time
}

// Pipeline launches and tracks fitting runs.
type Pipeline struct {
	engines       *Registry
	store         domain.RunRepository
	recorder      domain.OutcomeRecorder
	est           progress.Estimator
	imageProgress time.Duration
	videoProgress time.Duration
	logger        *infra.Logger
	now           func() time.Time

	mu      sync.Mutex
	futures map[string]*Future
}

// New constructs a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Engines == nil {
		return nil, errors.New("pipeline: engine registry is required")
	}
	if opts.Store == nil {
		return nil, errors.New("pipeline: run store is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	imageProgress := opts.ImageProgress
	if imageProgress <= 0 {
		imageProgress = DefaultImageProgress
	}
	videoProgress := opts.VideoProgress
	if videoProgress <= 0 {
		videoProgress = DefaultVideoProgress
	}
	return &Pipeline{
		engines:       opts.Engines,
		store:         opts.Store,
		recorder:      opts.Recorder,
		est:           opts.Estimator,
		imageProgress: imageProgress,
		videoProgress: videoProgress,
		logger:        infra.LoggerOrDiscard(opts.Logger),
		now:           now,
		futures:       make(map[string]*Future),
	}, nil
}

// Engines exposes the engine registry.
func (p *Pipeline) Engines() *Registry {
	return p.engines
}

// Check validates a request without starting it. It never performs network
// calls.
func (p *Pipeline) Check(req StartRequest) (Profile, error) {
	prof, err := p.engines.Lookup(strings.TrimSpace(req.Engine))
	if err != nil {
		return Profile{}, err
	}
	if !req.VideoSource.valid() {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownVideoSource, req.VideoSource)
	}
	if req.Slots == nil {
		req.Slots = intake.NewSlotSet(intake.NewValidator(0), nil)
	}

	fields := req.Slots.Errors()
	for _, slot := range req.Slots.Filled() {
		if !prof.accepts(slot) {
			fields[slot.FieldName()] = inputMessage(req.Locale, slotNotSupported, slot)
		}
	}
	if len(fields) > 0 {
		return Profile{}, &InputError{Fields: fields}
	}

	filled := req.Slots.Filled()
	if len(filled) == 0 {
		key := domain.SlotGarment
		if len(prof.RequireAny) > 0 {
			key = prof.RequireAny[0]
		}
		return Profile{}, &InputError{Fields: map[string]string{key.FieldName(): inputMessage(req.Locale, slotRequired, key)}}
	}
	if len(prof.RequireAny) > 0 && !anyFilled(req.Slots, prof.RequireAny) {
		slot := prof.RequireAny[0]
		return Profile{}, &InputError{Fields: map[string]string{slot.FieldName(): inputMessage(req.Locale, slotRequired, slot)}}
	}

	if req.GenerateVideo {
		if prof.Video == nil {
			return Profile{}, fmt.Errorf("%w: %s cannot generate video", domain.ErrUnsupportedEngine, prof.Name)
		}
		if req.VideoSource == VideoFromOriginal && strings.TrimSpace(req.OriginalImageURL) == "" {
			return Profile{}, &InputError{Fields: map[string]string{"original_image_url": message(req.Locale, msgNoSourceImage)}}
		}
	}
	return prof, nil
}

// Start validates req and launches the run in the background. The returned
// snapshot is already in synthesizing-image. Validation failures return an
// *InputError and leave no run behind.
func (p *Pipeline) Start(ctx context.Context, req StartRequest) (domain.Run, *Future, error) {
	prof, err := p.Check(req)
	if err != nil {
		return domain.Run{}, nil, err
	}

	now := p.now().UTC()
	run := domain.Run{
		ID:        uuid.NewString(),
		Stage:     domain.StageIdle,
		CreatedAt: now,
	}
	if req.RunID != "" {
		existing, err := p.store.Get(ctx, req.RunID)
		if err != nil {
			return domain.Run{}, nil, err
		}
		if existing.Stage != domain.StageIdle {
			return domain.Run{}, nil, Transition(existing.Stage, domain.StageSynthesizingImage)
		}
		run = existing
	}

	run.Engine = prof.Name
	run.Stage = domain.StageSynthesizingImage
	run.Progress = 0
	run.StatusMessage = message(req.Locale, msgImageStarted)
	run.VideoRequested = req.GenerateVideo
	run.Locale = req.Locale
	run.ProductTitle = strings.TrimSpace(req.ProductTitle)
	run.UpdatedAt = now
	if err := p.store.Save(ctx, run); err != nil {
		return domain.Run{}, nil, fmt.Errorf("pipeline: save run: %w", err)
	}

	future := newFuture()
	p.mu.Lock()
	p.futures[run.ID] = future
	p.mu.Unlock()

	st := &runState{run: run, store: p.store, now: p.now, logger: p.logger.With().Str("run_id", run.ID).Str("engine", prof.Name).Logger()}
	inputs := collectInputs(req.Slots)
	go func() {
		defer p.forget(run.ID, future)
		p.execute(context.WithoutCancel(ctx), st, prof, req, inputs, future)
	}()

	return run.Clone(), future, nil
}

// Get returns the latest snapshot of a run.
func (p *Pipeline) Get(ctx context.Context, id string) (domain.Run, error) {
	return p.store.Get(ctx, id)
}

// Future returns the completion handle of a run this process is still
// executing. Settled runs are read back through Get.
func (p *Pipeline) Future(id string) (*Future, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.futures[id]
	return f, ok
}

// Reset moves a done or failed run back to idle, clearing its artifacts.
func (p *Pipeline) Reset(ctx context.Context, id string) (domain.Run, error) {
	run, err := p.store.Get(ctx, id)
	if err != nil {
		return domain.Run{}, err
	}
	if err := Transition(run.Stage, domain.StageIdle); err != nil {
		return domain.Run{}, err
	}
	run.Stage = domain.StageIdle
	run.Progress = 0
	run.StatusMessage = message(run.Locale, msgIdle)
	run.GeneratedImage = ""
	run.GeneratedVideo = ""
	run.VideoRequested = false
	run.FailureKind = ""
	run.ImageLenient = false
	run.VideoLenient = false
	run.FinishedAt = nil
	run.UpdatedAt = p.now().UTC()
	if err := p.store.Save(ctx, run); err != nil {
		return domain.Run{}, fmt.Errorf("pipeline: save run: %w", err)
	}

	p.mu.Lock()
	delete(p.futures, id)
	p.mu.Unlock()
	return run.Clone(), nil
}

func (p *Pipeline) forget(id string, future *Future) {
	p.mu.Lock()
	if p.futures[id] == future {
		delete(p.futures, id)
	}
	p.mu.Unlock()
}

func (p *Pipeline) execute(ctx context.Context, st *runState, prof Profile, req StartRequest, inputs []synth.Input, future *Future) {
	log := st.logger
	tracker := progress.NewTracker(p.est, func(stage string, v int) {
		st.progress(ctx, domain.Stage(stage), v)
	})

	imageReq := synth.ImageRequest{Inputs: inputs, ProductTitle: req.ProductTitle}
	hasBackground := imageReq.HasSlot(domain.SlotBackground)
	log.Info().Int("inputs", len(inputs)).Bool("background", hasBackground).Bool("video", req.GenerateVideo).Msg("pipeline: image stage started")

	tracker.Begin(string(domain.StageSynthesizingImage), p.imageProgress)
	stageCtx, cancel := context.WithTimeout(ctx, prof.imageTimeout(hasBackground))
	imageRes, err := prof.Image.SynthesizeImage(stageCtx, imageReq)
	cancel()
	if err != nil {
		tracker.Abort()
		p.fail(ctx, st, future, err, "")
		return
	}
	tracker.Complete()
	st.update(ctx, func(r *domain.Run) {
		r.GeneratedImage = imageRes.URL
		r.ImageLenient = imageRes.Lenient
	})
	if imageRes.Lenient {
		log.Warn().Bool("lenient", true).Str("stage", string(domain.StageSynthesizingImage)).Msg("pipeline: image url recovered leniently")
	}

	if !req.GenerateVideo {
		p.finish(ctx, st, future, req, msgDone)
		return
	}

	if err := st.transition(ctx, domain.StageSynthesizingVideo, message(req.Locale, msgVideoStarted)); err != nil {
		log.Error().Err(err).Msg("pipeline: unexpected transition failure")
		return
	}
	source := imageRes.URL
	if req.VideoSource == VideoFromOriginal {
		source = strings.TrimSpace(req.OriginalImageURL)
	}
	prompt := strings.TrimSpace(req.VideoPrompt)
	if prompt == "" {
		prompt = synth.DefaultVideoPrompt(req.ProductTitle, req.Locale)
	}
	log.Info().Str("source", source).Msg("pipeline: video stage started")

	tracker.Begin(string(domain.StageSynthesizingVideo), p.videoProgress)
	stageCtx, cancel = context.WithTimeout(ctx, prof.VideoTimeout)
	videoRes, err := prof.Video.SynthesizeVideo(stageCtx, synth.VideoRequest{ImageURL: source, Prompt: prompt, ProductTitle: req.ProductTitle})
	cancel()
	if err != nil {
		tracker.Abort()
		p.fail(ctx, st, future, err, message(req.Locale, msgVideoFailed))
		return
	}
	tracker.Complete()
	st.update(ctx, func(r *domain.Run) {
		r.GeneratedVideo = videoRes.URL
		r.VideoLenient = videoRes.Lenient
	})
	if videoRes.Lenient {
		log.Warn().Bool("lenient", true).Str("stage", string(domain.StageSynthesizingVideo)).Msg("pipeline: video url recovered leniently")
	}
	p.finish(ctx, st, future, req, msgDoneWithVideo)
}

func (p *Pipeline) finish(ctx context.Context, st *runState, future *Future, req StartRequest, key messageKey) {
	if err := st.transition(ctx, domain.StageDone, message(req.Locale, key)); err != nil {
		st.logger.Error().Err(err).Msg("pipeline: unexpected transition failure")
		return
	}
	final := st.snapshot()
	st.logger.Info().Str("artifact", final.FinalArtifact()).Msg("pipeline: run done")
	p.record(ctx, final)
	future.resolve(final)
	if req.Sink != nil {
		deliver(ctx, st, req.Sink, final.FinalArtifact())
	}
}

// fail moves the run to failed. prefix, when set, is prepended to the
// category message so partial failures say what was kept.
func (p *Pipeline) fail(ctx context.Context, st *runState, future *Future, cause error, prefix string) {
	kind := synth.KindOf(cause)
	key := failureMessage(kind)
	switch {
	case errors.Is(cause, synth.ErrNoSourceImage):
		key = msgNoSourceImage
	case errors.Is(cause, synth.ErrNoInputs), errors.Is(cause, synth.ErrMissingBaseURL):
		key = msgEngineMisfired
	}
	locale := st.snapshot().Locale
	text := message(locale, key)
	if prefix != "" {
		text = prefix + " " + text
	}
	st.update(ctx, func(r *domain.Run) {
		r.FailureKind = string(kind)
	})
	if err := st.transition(ctx, domain.StageFailed, text); err != nil {
		st.logger.Error().Err(err).Msg("pipeline: unexpected transition failure")
		return
	}
	final := st.snapshot()
	st.logger.Error().Err(cause).Str("kind", string(kind)).Str("image", final.GeneratedImage).Msg("pipeline: run failed")
	p.record(ctx, final)
	future.resolve(final)
}

func (p *Pipeline) record(ctx context.Context, run domain.Run) {
	if p.recorder == nil {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, outcomeRecordTimeout)
	defer cancel()
	if err := p.recorder.RecordOutcome(rctx, run); err != nil {
		p.logger.Warn().Err(err).Str("run_id", run.ID).Msg("pipeline: record outcome failed")
	}
}

func deliver(ctx context.Context, st *runState, sink Sink, url string) {
	defer func() {
		if r := recover(); r != nil {
			st.logger.Error().Interface("panic", r).Msg("pipeline: result sink panicked")
		}
	}()
	sink(ctx, url)
}

func collectInputs(slots *intake.SlotSet) []synth.Input {
	var inputs []synth.Input
	for _, slot := range slots.Filled() {
		f := slots.File(slot)
		inputs = append(inputs, synth.Input{Slot: slot, Name: f.Name, MIME: f.MIME, Data: f.Data})
	}
	return inputs
}

func anyFilled(slots *intake.SlotSet, want []domain.Slot) bool {
	for _, slot := range want {
		if slots.File(slot) != nil {
			return true
		}
	}
	return false
}
