package domain

import "strings"

// Slot names one of the image inputs accepted by the fitting pipeline.
type Slot string

const (
	SlotHuman      Slot = "human"
	SlotGarment    Slot = "garment"
	SlotLower      Slot = "lower"
	SlotBackground Slot = "background"
)

// Slots lists every slot in submission order.
var Slots = []Slot{SlotHuman, SlotGarment, SlotLower, SlotBackground}

// FieldName is the multipart field and error key used for the slot.
func (s Slot) FieldName() string {
	return string(s) + "_file"
}

// URLFieldName is the form field carrying a remote image URL for the slot.
func (s Slot) URLFieldName() string {
	return string(s) + "_url"
}

// ParseSlot accepts either the bare slot name or its field name.
func ParseSlot(value string) (Slot, bool) {
	value = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(value)), "_file")
	for _, s := range Slots {
		if string(s) == value {
			return s, true
		}
	}
	return "", false
}
