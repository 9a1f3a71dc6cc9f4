package domain

import "time"

// Stage enumerates the lifecycle states of a fitting run.
type Stage string

const (
	StageIdle              Stage = "idle"
	StageSynthesizingImage Stage = "synthesizing-image"
	StageSynthesizingVideo Stage = "synthesizing-video"
	StageDone              Stage = "done"
	StageFailed            Stage = "failed"
)

// Terminal reports whether the stage only leaves through an explicit reset.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// Run is the request-scoped state of one fitting pipeline execution.
type Run struct {
	ID             string     `json:"id"`
	Engine         string     `json:"engine"`
	Stage          Stage      `json:"stage"`
	Progress       int        `json:"progress"`
	StatusMessage  string     `json:"status_message"`
	GeneratedImage string     `json:"generated_image,omitempty"`
	GeneratedVideo string     `json:"generated_video,omitempty"`
	VideoRequested bool       `json:"video_requested"`
	FailureKind    string     `json:"failure_kind,omitempty"`
	ImageLenient   bool       `json:"image_lenient,omitempty"`
	VideoLenient   bool       `json:"video_lenient,omitempty"`
	Locale         string     `json:"locale,omitempty"`
	ProductTitle   string     `json:"product_title,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (r Run) Clone() Run {
	out := r
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		out.FinishedAt = &t
	}
	return out
}

// FinalArtifact is the URL delivered to the result sink: the video when one
// was produced, otherwise the image.
func (r Run) FinalArtifact() string {
	if r.GeneratedVideo != "" {
		return r.GeneratedVideo
	}
	return r.GeneratedImage
}
