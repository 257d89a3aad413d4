package generation

import (
	"encoding/base64"

	"github.com/tidwall/gjson"
)

// Artifact is a generated image recovered from a provider response.
type Artifact struct {
	Data     []byte
	MimeType string
}

// minBase64TextLen guards the text-sniffing strategy: anything shorter is
// assumed to be prose, not an embedded image.
const minBase64TextLen = 1000

// extractStrategy locates an artifact within a provider response body.
// Strategies run in order; the first hit wins. New provider response shapes
// are added as new strategies without touching the orchestrator.
type extractStrategy struct {
	name    string
	extract func(body []byte) (*Artifact, bool)
}

var extractStrategies = []extractStrategy{
	{name: "inline_data", extract: extractInlineData},
	{name: "base64_text", extract: extractBase64Text},
}

// extractArtifact runs the strategy chain over the raw response body.
func extractArtifact(body []byte) (*Artifact, string) {
	for _, s := range extractStrategies {
		if artifact, ok := s.extract(body); ok {
			return artifact, s.name
		}
	}
	return nil, ""
}

// extractInlineData finds the first response part carrying a dedicated
// binary-data field. The provider emits both inlineData and inline_data
// depending on the endpoint revision.
func extractInlineData(body []byte) (*Artifact, bool) {
	parts := gjson.GetBytes(body, "candidates.0.content.parts")
	if !parts.Exists() {
		return nil, false
	}

	var found *Artifact
	parts.ForEach(func(_, part gjson.Result) bool {
		data := part.Get("inlineData.data")
		if !data.Exists() {
			data = part.Get("inline_data.data")
		}
		if !data.Exists() || data.String() == "" {
			return true
		}

		decoded, err := base64.StdEncoding.DecodeString(data.String())
		if err != nil {
			return true
		}

		mimeType := part.Get("inlineData.mimeType").String()
		if mimeType == "" {
			mimeType = part.Get("inline_data.mime_type").String()
		}
		if mimeType == "" {
			mimeType = "image/png"
		}

		found = &Artifact{Data: decoded, MimeType: mimeType}
		return false
	})
	return found, found != nil
}

// extractBase64Text finds a text part whose content is long enough and looks
// like raw base64. Some provider revisions return the image this way instead
// of using the binary field.
func extractBase64Text(body []byte) (*Artifact, bool) {
	parts := gjson.GetBytes(body, "candidates.0.content.parts")
	if !parts.Exists() {
		return nil, false
	}

	var found *Artifact
	parts.ForEach(func(_, part gjson.Result) bool {
		text := part.Get("text").String()
		if len(text) < minBase64TextLen || !looksLikeBase64(text) {
			return true
		}

		decoded, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return true
		}

		found = &Artifact{Data: decoded, MimeType: "image/png"}
		return false
	})
	return found, found != nil
}

// looksLikeBase64 checks the first 100 characters against the base64 alphabet.
func looksLikeBase64(s string) bool {
	n := len(s)
	if n > 100 {
		n = 100
	}
	for i := 0; i < n; i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '+' || c == '/' || c == '=':
		default:
			return false
		}
	}
	return true
}

// policyRejectionReasons are finish reasons that signal a content-policy
// rejection rather than a generation failure.
var policyRejectionReasons = map[string]bool{
	"SAFETY":             true,
	"IMAGE_SAFETY":       true,
	"PROHIBITED_CONTENT": true,
	"BLOCKLIST":          true,
}

// policyRejection reports whether the provider declined on content grounds,
// and the reason it gave.
func policyRejection(body []byte) (string, bool) {
	if reason := gjson.GetBytes(body, "promptFeedback.blockReason").String(); reason != "" {
		return reason, true
	}
	reason := gjson.GetBytes(body, "candidates.0.finishReason").String()
	if policyRejectionReasons[reason] {
		return reason, true
	}
	return "", false
}
