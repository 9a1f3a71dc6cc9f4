// Package engines assembles the engine registry from configuration.
package engines

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"bogofit/internal/infra"
	"bogofit/internal/infra/credentials"
	"bogofit/internal/pipeline"
	"bogofit/internal/synth"
)

// ErrNoEngines is returned when neither the fitting endpoint nor Gemini is configured.
var ErrNoEngines = errors.New("engines: no synthesis engine configured")

// TokenSource resolves API tokens, preferring stored ones over env values.
type TokenSource interface {
	TokenOr(ctx context.Context, provider, fallback string) string
}

type envTokens struct{}

func (envTokens) TokenOr(_ context.Context, _ string, fallback string) string { return fallback }

// Options configures Build.
type Options struct {
	Config    *infra.Config
	Tokens    TokenSource
	Artifacts synth.ArtifactStore
	// Generator overrides the genai client; nil creates one from the Gemini key.
	Generator  synth.ContentGenerator
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Build registers the standard and cafe24 profiles when FITTING_BASE_URL is
// set and the gemini profile when a Gemini key is available. Video is attached
// to every profile once VIDEO_BASE_URL is set.
func Build(ctx context.Context, opts Options) (*pipeline.Registry, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("engines: config is required")
	}
	tokens := opts.Tokens
	if tokens == nil {
		tokens = envTokens{}
	}
	logger := infra.LoggerOrDiscard(opts.Logger)

	var video synth.VideoEngine
	if strings.TrimSpace(cfg.VideoBaseURL) != "" {
		client, err := synth.NewClient(synth.Options{
			BaseURL:    cfg.VideoBaseURL,
			APIKey:     tokens.TokenOr(ctx, credentials.ProviderVideo, cfg.VideoAPIKey),
			HTTPClient: opts.HTTPClient,
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("engines: video client: %w", err)
		}
		video = &synth.HTTPEngine{Video: client}
	}

	var profiles []pipeline.Profile
	timeouts := func(p pipeline.Profile) pipeline.Profile {
		p.ImageTimeout = cfg.ImageTimeout
		p.BackgroundTimeout = cfg.BackgroundImageTimeout
		p.VideoTimeout = cfg.VideoTimeout
		return p
	}

	if strings.TrimSpace(cfg.FittingBaseURL) != "" {
		client, err := synth.NewClient(synth.Options{
			BaseURL:    cfg.FittingBaseURL,
			APIKey:     tokens.TokenOr(ctx, credentials.ProviderFitting, cfg.FittingAPIKey),
			HTTPClient: opts.HTTPClient,
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("engines: fitting client: %w", err)
		}
		image := &synth.HTTPEngine{Image: client}
		require, accept := pipeline.StandardSlots()
		profiles = append(profiles, timeouts(pipeline.Profile{
			Name: pipeline.EngineStandard, RequireAny: require, Accept: accept, Image: image, Video: video,
		}))
		require, accept = pipeline.ItemSlots()
		profiles = append(profiles, timeouts(pipeline.Profile{
			Name: pipeline.EngineCafe24, RequireAny: require, Accept: accept, Image: image, Video: video,
		}))
	}

	if gemini, err := buildGemini(ctx, opts, tokens, logger); err != nil {
		return nil, err
	} else if gemini != nil {
		require, accept := pipeline.StandardSlots()
		profiles = append(profiles, timeouts(pipeline.Profile{
			Name: pipeline.EngineGemini, RequireAny: require, Accept: accept, Image: gemini, Video: video,
		}))
	}

	if len(profiles) == 0 {
		return nil, ErrNoEngines
	}
	return pipeline.NewRegistry(profiles...)
}

func buildGemini(ctx context.Context, opts Options, tokens TokenSource, logger *infra.Logger) (*synth.GeminiEngine, error) {
	gen := opts.Generator
	if gen == nil {
		key := tokens.TokenOr(ctx, credentials.ProviderGemini, opts.Config.GeminiAPIKey)
		if strings.TrimSpace(key) == "" {
			return nil, nil
		}
		var err error
		if gen, err = synth.NewGeminiModels(ctx, key); err != nil {
			return nil, fmt.Errorf("engines: %w", err)
		}
	}
	if opts.Artifacts == nil {
		logger.Warn().Msg("engines: gemini configured without an artifact store, skipping")
		return nil, nil
	}
	return synth.NewGeminiEngine(synth.GeminiOptions{
		Generator: gen,
		Store:     opts.Artifacts,
		Model:     opts.Config.GeminiModel,
		Logger:    logger,
	})
}
