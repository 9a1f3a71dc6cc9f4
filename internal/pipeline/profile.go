package pipeline

import (
	"fmt"
	"sort"
	"time"

	"bogofit/internal/domain"
	"bogofit/internal/synth"
)

// Engine names.
const (
	EngineStandard = "standard"
	EngineCafe24   = "cafe24"
	EngineGemini   = "gemini"
)

// Profile describes one engine variant: which slots it accepts, which must be
// present, and the backends used for each stage.
type Profile struct {
	Name string
	// RequireAny lists slots of which at least one must be filled.
	RequireAny []domain.Slot
	// Accept lists every slot the engine can consume.
	Accept []domain.Slot
	Image  synth.ImageEngine
	Video  synth.VideoEngine

	ImageTimeout      time.Duration
	BackgroundTimeout time.Duration
	VideoTimeout      time.Duration
}

// StandardSlots is the slot configuration of the storefront fitting page.
func StandardSlots() (require, accept []domain.Slot) {
	return []domain.Slot{domain.SlotGarment}, []domain.Slot{domain.SlotHuman, domain.SlotGarment, domain.SlotLower, domain.SlotBackground}
}

// ItemSlots is the slot configuration of the product-registration fitting
// panel, which works from item images and has no background input.
func ItemSlots() (require, accept []domain.Slot) {
	return []domain.Slot{domain.SlotGarment, domain.SlotLower}, []domain.Slot{domain.SlotHuman, domain.SlotGarment, domain.SlotLower}
}

func (p Profile) accepts(slot domain.Slot) bool {
	for _, s := range p.Accept {
		if s == slot {
			return true
		}
	}
	return false
}

func (p Profile) imageTimeout(hasBackground bool) time.Duration {
	if hasBackground && p.BackgroundTimeout > p.ImageTimeout {
		return p.BackgroundTimeout
	}
	return p.ImageTimeout
}

// Registry resolves engine names to profiles.
type Registry struct {
	profiles map[string]Profile
	fallback string
}

// NewRegistry builds a registry; the first profile is the default engine.
func NewRegistry(profiles ...Profile) (*Registry, error) {
	r := &Registry{profiles: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		if p.Name == "" || p.Image == nil {
			return nil, fmt.Errorf("pipeline: profile %q needs a name and an image engine", p.Name)
		}
		if len(p.Accept) == 0 {
			_, p.Accept = StandardSlots()
		}
		if p.ImageTimeout <= 0 {
			p.ImageTimeout = DefaultImageTimeout
		}
		if p.BackgroundTimeout <= 0 {
			p.BackgroundTimeout = DefaultBackgroundTimeout
		}
		if p.VideoTimeout <= 0 {
			p.VideoTimeout = DefaultVideoTimeout
		}
		if r.fallback == "" {
			r.fallback = p.Name
		}
		r.profiles[p.Name] = p
	}
	if len(r.profiles) == 0 {
		return nil, fmt.Errorf("pipeline: at least one engine profile is required")
	}
	return r, nil
}

// Lookup returns the profile for name; an empty name selects the default.
func (r *Registry) Lookup(name string) (Profile, error) {
	if name == "" {
		name = r.fallback
	}
	p, ok := r.profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedEngine, name)
	}
	return p, nil
}

// Names lists registered engines in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Default returns the default engine name.
func (r *Registry) Default() string {
	return r.fallback
}
