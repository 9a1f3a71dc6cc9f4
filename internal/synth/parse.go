package synth

import (
	"encoding/json"
	"regexp"
	"strings"
)

var urlKeys = map[Artifact][]string{
	ArtifactImage: {"imageUrl", "image_url", "resultUrl", "result_url", "url"},
	ArtifactVideo: {"videoUrl", "video_url", "resultUrl", "result_url", "url"},
}

var (
	keyedImageURL = regexp.MustCompile(`"(?:imageUrl|image_url|resultUrl|result_url|url)"\s*:\s*"(https?://[^"\s]+)"`)
	keyedVideoURL = regexp.MustCompile(`"(?:videoUrl|video_url|resultUrl|result_url|url)"\s*:\s*"(https?://[^"\s]+)"`)
	bareImageURL  = regexp.MustCompile(`(?i)https?://[^\s"'<>\\]+\.(?:png|jpe?g|webp)(?:\?[^\s"'<>\\]*)?`)
	bareVideoURL  = regexp.MustCompile(`(?i)https?://[^\s"'<>\\]+\.(?:mp4|webm|mov)(?:\?[^\s"'<>\\]*)?`)
)

// ParseResponse decodes a synthesis response body. The boolean reports whether
// the body was valid JSON; when it was not, the URL is recovered by pattern
// matching and Result.Lenient is set. A nil Result means nothing usable was
// found.
func ParseResponse(body []byte, artifact Artifact) (*Result, bool) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err == nil && doc != nil {
		return parseDocument(doc, artifact), true
	}
	if url := ExtractURL(string(body), artifact); url != "" {
		return &Result{Success: true, URL: url, Lenient: true}, false
	}
	return nil, false
}

// ExtractURL finds an artifact URL in raw text, preferring keyed JSON-like
// fragments over bare links.
func ExtractURL(raw string, artifact Artifact) string {
	keyed, bare := keyedImageURL, bareImageURL
	if artifact == ArtifactVideo {
		keyed, bare = keyedVideoURL, bareVideoURL
	}
	if m := keyed.FindStringSubmatch(raw); len(m) == 2 {
		return m[1]
	}
	return bare.FindString(raw)
}

func parseDocument(doc map[string]any, artifact Artifact) *Result {
	res := &Result{}
	url := lookupURL(doc, artifact)
	if data, ok := doc["data"].(map[string]any); ok && url == "" {
		url = lookupURL(data, artifact)
	}
	res.URL = url
	res.ErrorText = firstString(doc, "error", "message", "detail")

	success, hasFlag := doc["success"].(bool)
	switch {
	case hasFlag:
		res.Success = success && url != ""
	default:
		res.Success = url != ""
	}
	if !res.Success && res.ErrorText == "" {
		res.ErrorText = "response did not include a result url"
	}
	return res
}

func lookupURL(doc map[string]any, artifact Artifact) string {
	for _, key := range urlKeys[artifact] {
		if v, ok := doc[key].(string); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

func firstString(doc map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := doc[key].(type) {
		case string:
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		case map[string]any:
			if msg, ok := v["message"].(string); ok && strings.TrimSpace(msg) != "" {
				return strings.TrimSpace(msg)
			}
		}
	}
	return ""
}
