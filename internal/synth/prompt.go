package synth

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"bogofit/internal/domain"
)

// DefaultVideoPrompt describes a short runway clip for the product. Korean
// titles are kept as written; Latin titles are title-cased.
func DefaultVideoPrompt(productTitle, locale string) string {
	title := strings.Join(strings.Fields(productTitle), " ")
	tag := language.English
	if strings.HasPrefix(strings.ToLower(locale), "ko") {
		tag = language.Korean
	}
	if title != "" {
		title = cases.Title(tag).String(title)
	}
	if tag == language.Korean {
		if title == "" {
			return "모델이 옷을 입고 자연스럽게 걸으며 천천히 회전하는 5초 패션 영상. 스튜디오 조명, 고정 카메라."
		}
		return "모델이 " + title + " 제품을 입고 자연스럽게 걸으며 천천히 회전하는 5초 패션 영상. 스튜디오 조명, 고정 카메라."
	}
	if title == "" {
		return "A five second fashion clip of the model walking naturally and turning slowly to show the outfit. Studio lighting, static camera."
	}
	return "A five second fashion clip of the model wearing the " + title + ", walking naturally and turning slowly to show the outfit. Studio lighting, static camera."
}

// DefaultFittingPrompt instructs a general image model to composite the slot
// images into one try-on photo.
func DefaultFittingPrompt(req ImageRequest) string {
	var b strings.Builder
	b.WriteString("Create a photorealistic virtual try-on image for an online fashion store.")
	for i, in := range req.Inputs {
		b.WriteString(" Image ")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(" is the ")
		switch in.Slot {
		case domain.SlotHuman:
			b.WriteString("model who must wear the clothes.")
		case domain.SlotGarment:
			b.WriteString("top garment to put on the model.")
		case domain.SlotLower:
			b.WriteString("bottom garment to put on the model.")
		case domain.SlotBackground:
			b.WriteString("background scene to place the model in.")
		default:
			b.WriteString("reference image.")
		}
	}
	if !req.HasSlot(domain.SlotHuman) {
		b.WriteString(" No model photo is given: generate a natural-looking fashion model.")
	}
	if title := strings.TrimSpace(req.ProductTitle); title != "" {
		b.WriteString(" The product is: ")
		b.WriteString(title)
		b.WriteString(".")
	}
	b.WriteString(" Keep garment colors, patterns and logos exactly as in the inputs. Full body, clean studio lighting.")
	return b.String()
}
