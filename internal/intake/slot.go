package intake

import (
	"context"

	"bogofit/internal/domain"
)

// SlotState is one named input of a run.
type SlotState struct {
	File *File
	Err  string
}

// SlotSet holds the four slots of a single run. It is owned by one run and
// not safe for concurrent use.
type SlotSet struct {
	validator Validator
	fetcher   *Fetcher
	slots     map[domain.Slot]*SlotState
}

// NewSlotSet creates an empty set. fetcher may be nil when remote URLs are not
// accepted.
func NewSlotSet(v Validator, fetcher *Fetcher) *SlotSet {
	s := &SlotSet{validator: v, fetcher: fetcher, slots: make(map[domain.Slot]*SlotState, len(domain.Slots))}
	for _, slot := range domain.Slots {
		s.slots[slot] = &SlotState{}
	}
	return s
}

// Put validates and stores an uploaded file. On failure the slot keeps its
// previous file and records the error.
func (s *SlotSet) Put(slot domain.Slot, name, mimeType string, data []byte) error {
	f, err := s.validator.Validate(slot, name, mimeType, data)
	return s.record(slot, f, err)
}

// PutURL fetches a remote image into the slot.
func (s *SlotSet) PutURL(ctx context.Context, slot domain.Slot, rawURL string) error {
	if s.fetcher == nil {
		return s.record(slot, nil, invalid(slot, CodeFetch, "remote images are not accepted"))
	}
	f, err := s.fetcher.Fetch(ctx, slot, rawURL)
	return s.record(slot, f, err)
}

// AutoFill fills an empty slot from a product's existing image. A filled slot
// or one holding a rejected upload is left untouched.
func (s *SlotSet) AutoFill(ctx context.Context, slot domain.Slot, rawURL string) error {
	if s.File(slot) != nil || s.Err(slot) != "" {
		return nil
	}
	return s.PutURL(ctx, slot, rawURL)
}

// Clear empties a slot and drops its error.
func (s *SlotSet) Clear(slot domain.Slot) {
	if st, ok := s.slots[slot]; ok {
		*st = SlotState{}
	}
}

// File returns the slot's accepted file, or nil.
func (s *SlotSet) File(slot domain.Slot) *File {
	if st, ok := s.slots[slot]; ok {
		return st.File
	}
	return nil
}

// Err returns the slot's last validation message.
func (s *SlotSet) Err(slot domain.Slot) string {
	if st, ok := s.slots[slot]; ok {
		return st.Err
	}
	return ""
}

// Errors returns validation messages keyed by field name (human_file, ...).
func (s *SlotSet) Errors() map[string]string {
	out := map[string]string{}
	for _, slot := range domain.Slots {
		if msg := s.slots[slot].Err; msg != "" {
			out[slot.FieldName()] = msg
		}
	}
	return out
}

// HasErrors reports whether any slot carries a validation error.
func (s *SlotSet) HasErrors() bool {
	for _, st := range s.slots {
		if st.Err != "" {
			return true
		}
	}
	return false
}

// Filled lists populated slots in submission order.
func (s *SlotSet) Filled() []domain.Slot {
	var out []domain.Slot
	for _, slot := range domain.Slots {
		if s.slots[slot].File != nil {
			out = append(out, slot)
		}
	}
	return out
}

// Files returns the populated files keyed by slot.
func (s *SlotSet) Files() map[domain.Slot]*File {
	out := make(map[domain.Slot]*File)
	for _, slot := range domain.Slots {
		if f := s.slots[slot].File; f != nil {
			out[slot] = f
		}
	}
	return out
}

func (s *SlotSet) record(slot domain.Slot, f *File, err error) error {
	st, ok := s.slots[slot]
	if !ok {
		return invalid(slot, CodeUnsupportedType, "unknown slot")
	}
	if err != nil {
		if verr, ok := AsValidationError(err); ok {
			st.Err = verr.Message
		} else {
			st.Err = err.Error()
		}
		return err
	}
	st.File = f
	st.Err = ""
	return nil
}
