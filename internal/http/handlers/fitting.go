package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"bogofit/internal/domain"
	"bogofit/internal/intake"
	"bogofit/internal/middleware"
	"bogofit/internal/pipeline"
)

const multipartMemory = 32 << 20

// CreateRun validates the slot inputs and starts a fitting run. Invalid
// inputs are answered with 422 and per-slot fileErrors before any engine is
// contacted.
func (a *App) CreateRun(w http.ResponseWriter, r *http.Request) {
	maxFile := a.Validator.MaxBytes
	if maxFile <= 0 {
		maxFile = intake.DefaultMaxBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxFile*int64(len(domain.Slots))+(1<<20))
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart payload")
		return
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	slots := intake.NewSlotSet(a.Validator, a.Fetcher)
	for _, slot := range domain.Slots {
		if err := a.readSlot(r, slots, slot, maxFile); err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
	}
	if productImage := strings.TrimSpace(r.FormValue("product_image_url")); productImage != "" {
		_ = slots.AutoFill(r.Context(), domain.SlotGarment, productImage)
	}

	req := pipeline.StartRequest{
		RunID:            strings.TrimSpace(r.FormValue("run_id")),
		Engine:           strings.TrimSpace(r.FormValue("engine")),
		Slots:            slots,
		ProductTitle:     r.FormValue("product_title"),
		GenerateVideo:    formBool(r.FormValue("generate_video")),
		VideoSource:      pipeline.VideoSource(strings.TrimSpace(r.FormValue("video_source"))),
		OriginalImageURL: strings.TrimSpace(r.FormValue("original_image_url")),
		VideoPrompt:      r.FormValue("video_prompt"),
		Locale:           middleware.LocaleFromContext(r.Context()),
	}
	if req.VideoSource == "" {
		req.VideoSource = pipeline.VideoFromGenerated
	}
	if req.VideoSource != pipeline.VideoFromGenerated && req.VideoSource != pipeline.VideoFromOriginal {
		a.error(w, http.StatusBadRequest, "bad_request", "video_source must be generated or original")
		return
	}
	if formID := strings.TrimSpace(r.FormValue("form_id")); formID != "" && a.Forms != nil {
		req.Sink = a.Forms.Sink(formID)
	}

	run, _, err := a.Pipeline.Start(r.Context(), req)
	if err != nil {
		var inputErr *pipeline.InputError
		if errors.As(err, &inputErr) {
			a.json(w, http.StatusUnprocessableEntity, map[string]any{
				"error":      map[string]string{"code": "validation_failed", "message": "some images could not be used"},
				"fileErrors": inputErr.Fields,
			})
			return
		}
		a.domainError(w, r, err)
		return
	}
	a.Logger.Info().
		Str("run_id", run.ID).
		Str("engine", run.Engine).
		Str("user_id", a.currentUserID(r)).
		Bool("video", run.VideoRequested).
		Msg("fitting run started")
	a.json(w, http.StatusAccepted, run)
}

// readSlot fills slot from its <slot>_file part or, failing that, from its
// <slot>_url field. Slot-level problems are recorded on the set, not returned.
func (a *App) readSlot(r *http.Request, slots *intake.SlotSet, slot domain.Slot, maxFile int64) error {
	file, header, err := r.FormFile(slot.FieldName())
	switch {
	case err == nil:
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, maxFile+1))
		if err != nil {
			return err
		}
		_ = slots.Put(slot, header.Filename, header.Header.Get("Content-Type"), data)
		return nil
	case errors.Is(err, http.ErrMissingFile):
		if raw := strings.TrimSpace(r.FormValue(slot.URLFieldName())); raw != "" {
			_ = slots.PutURL(r.Context(), slot, raw)
		}
		return nil
	default:
		return err
	}
}

func (a *App) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := a.Pipeline.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, run)
}

// ResetRun returns a finished run to idle so it can be started again.
func (a *App) ResetRun(w http.ResponseWriter, r *http.Request) {
	run, err := a.Pipeline.Reset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, run)
}

func formBool(raw string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return strings.EqualFold(strings.TrimSpace(raw), "on")
	}
	return b
}
