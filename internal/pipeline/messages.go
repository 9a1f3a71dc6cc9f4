package pipeline

import (
	"golang.org/x/text/language"

	"bogofit/internal/domain"
	"bogofit/internal/synth"
)

type messageKey string

const (
	msgIdle           messageKey = "idle"
	msgImageStarted   messageKey = "image_started"
	msgVideoStarted   messageKey = "video_started"
	msgDone           messageKey = "done"
	msgDoneWithVideo  messageKey = "done_video"
	msgMalformedHTML  messageKey = "malformed_html"
	msgImageProcess   messageKey = "image_processing"
	msgNetwork        messageKey = "network"
	msgTimeout        messageKey = "timeout"
	msgRejected       messageKey = "rejected"
	msgVideoFailed    messageKey = "video_failed"
	msgNoSourceImage  messageKey = "no_source_image"
	msgEngineMisfired messageKey = "engine_error"
)

var catalog = map[language.Base]map[messageKey]string{
	mustBase(language.Korean): {
		msgIdle:           "",
		msgImageStarted:   "AI가 피팅 이미지를 만들고 있어요. 잠시만 기다려 주세요.",
		msgVideoStarted:   "피팅 이미지가 준비됐어요. 이제 영상을 만들고 있어요.",
		msgDone:           "피팅 이미지가 완성됐어요.",
		msgDoneWithVideo:  "피팅 이미지와 영상이 모두 완성됐어요.",
		msgMalformedHTML:  "서버 응답을 읽을 수 없어요. 잠시 후 다시 시도해 주세요.",
		msgImageProcess:   "업로드한 이미지를 처리하지 못했어요. 다른 이미지로 다시 시도해 주세요.",
		msgNetwork:        "네트워크 문제로 요청을 완료하지 못했어요. 다시 시도해 주세요.",
		msgTimeout:        "처리 시간이 너무 오래 걸려 중단됐어요. 다시 시도해 주세요.",
		msgRejected:       "AI 서비스가 요청을 처리하지 못했어요. 이미지를 확인한 뒤 다시 시도해 주세요.",
		msgVideoFailed:    "피팅 이미지는 완성됐지만 영상을 만들지 못했어요.",
		msgNoSourceImage:  "영상을 만들 원본 이미지가 없어요.",
		msgEngineMisfired: "요청을 처리하는 중 문제가 생겼어요. 다시 시도해 주세요.",
	},
	mustBase(language.English): {
		msgIdle:           "",
		msgImageStarted:   "Creating your fitting image. This can take a minute.",
		msgVideoStarted:   "Your fitting image is ready. Now creating the video.",
		msgDone:           "Your fitting image is ready.",
		msgDoneWithVideo:  "Your fitting image and video are ready.",
		msgMalformedHTML:  "We couldn't read the server's response. Please try again shortly.",
		msgImageProcess:   "We couldn't process the uploaded image. Please try a different one.",
		msgNetwork:        "A network problem stopped the request. Please try again.",
		msgTimeout:        "The request took too long and was stopped. Please try again.",
		msgRejected:       "The AI service couldn't handle this request. Check your images and try again.",
		msgVideoFailed:    "Your fitting image is ready, but the video could not be created.",
		msgNoSourceImage:  "There is no source image to make a video from.",
		msgEngineMisfired: "Something went wrong while processing the request. Please try again.",
	},
}

var fallbackBase = mustBase(language.Korean)

func mustBase(tag language.Tag) language.Base {
	base, _ := tag.Base()
	return base
}

// message returns the localized text for key; unknown locales use Korean.
func message(locale string, key messageKey) string {
	return catalog[localeBase(locale)][key]
}

func localeBase(locale string) language.Base {
	if tag, err := language.Parse(locale); err == nil {
		if b, _ := tag.Base(); catalog[b] != nil {
			return b
		}
	}
	return fallbackBase
}

func failureMessage(kind synth.Kind) messageKey {
	switch kind {
	case synth.KindMalformedHTML:
		return msgMalformedHTML
	case synth.KindImageProcessing:
		return msgImageProcess
	case synth.KindTimeout:
		return msgTimeout
	case synth.KindRejected:
		return msgRejected
	default:
		return msgNetwork
	}
}

type inputProblem int

const (
	slotRequired inputProblem = iota
	slotNotSupported
)

var slotLabels = map[language.Base]map[domain.Slot]string{
	mustBase(language.Korean): {
		domain.SlotHuman:      "모델 사진",
		domain.SlotGarment:    "상의 이미지",
		domain.SlotLower:      "하의 이미지",
		domain.SlotBackground: "배경 이미지",
	},
	mustBase(language.English): {
		domain.SlotHuman:      "model photo",
		domain.SlotGarment:    "top garment image",
		domain.SlotLower:      "bottom garment image",
		domain.SlotBackground: "background image",
	},
}

func inputMessage(locale string, problem inputProblem, slot domain.Slot) string {
	base := localeBase(locale)
	label := slotLabels[base][slot]
	english := base == mustBase(language.English)
	switch problem {
	case slotNotSupported:
		if english {
			return "This engine does not use a " + label + "."
		}
		return "선택한 엔진에서는 " + label + "을(를) 사용할 수 없어요."
	default:
		if english {
			return "Please add a " + label + "."
		}
		return label + "을(를) 올려 주세요."
	}
}
