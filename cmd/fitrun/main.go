package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"bogofit/internal/domain"
	"bogofit/internal/engines"
	"bogofit/internal/infra"
	"bogofit/internal/infra/credentials"
	"bogofit/internal/intake"
	"bogofit/internal/pipeline"
	"bogofit/internal/progress"
	"bogofit/internal/runstore"
	"bogofit/internal/storage"
)

type options struct {
	slots        map[domain.Slot]*string
	engine       string
	title        string
	video        bool
	videoSource  string
	original     string
	prompt       string
	locale       string
	upload       bool
	backendToken string
	timeout      time.Duration
}

func main() {
	opts := options{slots: make(map[domain.Slot]*string, len(domain.Slots))}
	for _, slot := range domain.Slots {
		opts.slots[slot] = flag.String(string(slot), "", fmt.Sprintf("%s image: local file or http(s) url", slot))
	}
	flag.StringVar(&opts.engine, "engine", "", "engine profile (standard, cafe24, gemini); empty selects the default")
	flag.StringVar(&opts.title, "title", "", "product title used in prompts")
	flag.BoolVar(&opts.video, "video", false, "also generate a video")
	flag.StringVar(&opts.videoSource, "video-source", string(pipeline.VideoFromGenerated), "video input: generated or original")
	flag.StringVar(&opts.original, "original", "", "original product image url for -video-source=original")
	flag.StringVar(&opts.prompt, "prompt", "", "video prompt override")
	flag.StringVar(&opts.locale, "locale", "ko", "status message locale (ko or en)")
	flag.BoolVar(&opts.upload, "upload-original", false, "upload the garment file through the backend and use it as the original image")
	flag.StringVar(&opts.backendToken, "token", os.Getenv("BACKEND_TOKEN"), "bearer token for the backend presign endpoint")
	flag.DurationVar(&opts.timeout, "timeout", 15*time.Minute, "overall deadline")
	flag.Parse()

	_ = godotenv.Load()
	os.Exit(run(opts))
}

// run executes one fitting and returns the process exit code: 0 done,
// 1 failed or aborted, 2 rejected input.
func run(opts options) int {
	cfg := infra.LoadToolConfig()
	logger := infra.NewLogger(cfg.AppEnv).Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Str("cmd", "fitrun").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	var tokens *credentials.Store
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return failf("failed to connect database: %v", err)
		}
		defer pool.Close()
		tokens = credentials.NewStore(infra.NewSQLRunner(pool, logger))
	}

	artifacts, _, err := storage.FromConfig(ctx, cfg, &logger)
	if err != nil {
		return failf("failed to initialise storage: %v", err)
	}
	registry, err := engines.Build(ctx, engines.Options{Config: cfg, Tokens: tokens, Artifacts: artifacts, Logger: &logger})
	if err != nil {
		return failf("failed to configure engines: %v", err)
	}

	runs := runstore.NewMemory(time.Hour)
	pipe, err := pipeline.New(pipeline.Options{
		Engines:       registry,
		Store:         runs,
		Estimator:     progress.Estimator{Interval: 250 * time.Millisecond},
		ImageProgress: cfg.ImageProgressDuration,
		VideoProgress: cfg.VideoProgressDuration,
		Logger:        &logger,
	})
	if err != nil {
		return failf("failed to build pipeline: %v", err)
	}

	validator := intake.NewValidator(cfg.MaxUploadBytes)
	slots := intake.NewSlotSet(validator, intake.NewFetcher(intake.FetcherOptions{MaxBytes: cfg.MaxUploadBytes, Logger: &logger}))
	for _, slot := range domain.Slots {
		if err := loadSlot(ctx, slots, slot, *opts.slots[slot]); err != nil {
			return failf("%s: %v", slot, err)
		}
	}

	original := strings.TrimSpace(opts.original)
	if opts.upload && original == "" {
		original, err = uploadGarment(ctx, cfg, opts.backendToken, slots, &logger)
		if err != nil {
			return failf("upload original: %v", err)
		}
		fmt.Printf("original uploaded: %s\n", original)
	}

	started, future, err := pipe.Start(ctx, pipeline.StartRequest{
		Engine:           opts.engine,
		Slots:            slots,
		ProductTitle:     opts.title,
		GenerateVideo:    opts.video,
		VideoSource:      pipeline.VideoSource(opts.videoSource),
		OriginalImageURL: original,
		VideoPrompt:      opts.prompt,
		Locale:           opts.locale,
	})
	if err != nil {
		var inputErr *pipeline.InputError
		if errors.As(err, &inputErr) {
			printFieldErrors(os.Stderr, inputErr.Fields)
			return 2
		}
		if errors.Is(err, domain.ErrValidation) {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		return failf("start run: %v", err)
	}

	updates, release, err := runs.Subscribe(ctx, started.ID)
	if err != nil {
		return failf("subscribe: %v", err)
	}
	defer release()

	fmt.Println(progressLine(started))
	last := started
	for {
		select {
		case snap := <-updates:
			if snap.Stage != last.Stage || snap.Progress != last.Progress || snap.StatusMessage != last.StatusMessage {
				fmt.Println(progressLine(snap))
				last = snap
			}
		case <-future.Done():
			final, _ := future.Result()
			if final.Stage != last.Stage || final.Progress != last.Progress {
				fmt.Println(progressLine(final))
			}
			return report(os.Stdout, final)
		case <-ctx.Done():
			return failf("aborted: %v", ctx.Err())
		}
	}
}

// loadSlot fills slot from a local path or an http(s) URL. Validation
// problems stay on the slot set and surface when the run starts.
func loadSlot(ctx context.Context, slots *intake.SlotSet, slot domain.Slot, source string) error {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil
	}
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		_ = slots.PutURL(ctx, slot, source)
		return nil
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return err
	}
	_ = slots.Put(slot, filepath.Base(source), intake.NormalizeMIME(http.DetectContentType(data)), data)
	return nil
}

func uploadGarment(ctx context.Context, cfg *infra.Config, token string, slots *intake.SlotSet, logger *infra.Logger) (string, error) {
	garment := slots.File(domain.SlotGarment)
	if garment == nil {
		return "", errors.New("-upload-original needs a garment image")
	}
	uploader, err := storage.NewUploader(storage.UploaderOptions{BaseURL: cfg.BackendBaseURL, Token: token, Logger: logger})
	if err != nil {
		return "", err
	}
	return uploader.Upload(ctx, garment.Name, garment.MIME, garment.Data)
}

func progressLine(run domain.Run) string {
	return fmt.Sprintf("[%-18s] %3d%% %s", run.Stage, run.Progress, run.StatusMessage)
}

func printFieldErrors(w io.Writer, fields map[string]string) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s: %s\n", k, fields[k])
	}
}

// report prints the artifacts and returns the process exit code.
func report(w io.Writer, run domain.Run) int {
	if run.GeneratedImage != "" {
		fmt.Fprintf(w, "image: %s\n", run.GeneratedImage)
	}
	if run.GeneratedVideo != "" {
		fmt.Fprintf(w, "video: %s\n", run.GeneratedVideo)
	}
	if run.ImageLenient || run.VideoLenient {
		fmt.Fprintln(w, "note: upstream response needed lenient parsing")
	}
	if run.Stage != domain.StageDone {
		return 1
	}
	return 0
}

func failf(format string, args ...any) int {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	return 1
}
