package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"bogofit/internal/productform"
)

type formActionRequest struct {
	Type  string `json:"type" validate:"required,oneof=add_image remove_image set_main set_title merge_artifact"`
	URL   string `json:"url" validate:"omitempty,url,max=2048"`
	Index *int   `json:"index" validate:"omitempty,min=0"`
	Title string `json:"title" validate:"max=200"`
	Video bool   `json:"video"`
}

func (req formActionRequest) action() (productform.Action, error) {
	index := -1
	if req.Index != nil {
		index = *req.Index
	}
	switch req.Type {
	case "add_image":
		return productform.AddImage{URL: req.URL}, nil
	case "remove_image":
		return productform.RemoveImage{Index: index}, nil
	case "set_main":
		return productform.SetMain{Index: index}, nil
	case "set_title":
		return productform.SetTitle{Title: req.Title}, nil
	case "merge_artifact":
		return productform.MergeArtifact{URL: req.URL, Video: req.Video}, nil
	}
	return nil, productform.ErrUnknownAction
}

func (a *App) GetForm(w http.ResponseWriter, r *http.Request) {
	state, err := a.Forms.Get(chi.URLParam(r, "id"))
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, state)
}

// DispatchFormAction applies one action to a product form.
func (a *App) DispatchFormAction(w http.ResponseWriter, r *http.Request) {
	var req formActionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.validate().Struct(req); err != nil {
		a.error(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
		return
	}
	action, err := req.action()
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	state, err := a.Forms.Dispatch(chi.URLParam(r, "id"), action)
	switch {
	case errors.Is(err, productform.ErrIndexOutOfRange), errors.Is(err, productform.ErrEmptyURL):
		a.error(w, http.StatusUnprocessableEntity, "invalid_action", err.Error())
		return
	case errors.Is(err, productform.ErrGalleryFull):
		a.error(w, http.StatusConflict, "gallery_full", err.Error())
		return
	case err != nil:
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, state)
}
