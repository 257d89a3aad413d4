package generation

import (
	"encoding/base64"
	"fmt"
	"strings"
	"testing"
)

func inlineDataBody(data []byte, mimeType string) []byte {
	encoded := base64.StdEncoding.EncodeToString(data)
	return []byte(fmt.Sprintf(
		`{"candidates":[{"content":{"parts":[{"text":"sure, here you go"},{"inlineData":{"mimeType":%q,"data":%q}}]},"finishReason":"STOP"}]}`,
		mimeType, encoded,
	))
}

func TestExtractInlineData(t *testing.T) {
	artifact, strategy := extractArtifact(inlineDataBody([]byte("fake-image-bytes"), "image/jpeg"))
	if artifact == nil {
		t.Fatal("no artifact extracted")
	}
	if strategy != "inline_data" {
		t.Fatalf("strategy = %q, want inline_data", strategy)
	}
	if string(artifact.Data) != "fake-image-bytes" {
		t.Fatalf("data = %q, want fake-image-bytes", artifact.Data)
	}
	if artifact.MimeType != "image/jpeg" {
		t.Fatalf("mime type = %q, want image/jpeg", artifact.MimeType)
	}
}

func TestExtractInlineDataSnakeCase(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("snake-image"))
	body := fmt.Sprintf(
		`{"candidates":[{"content":{"parts":[{"inline_data":{"mime_type":"image/webp","data":%q}}]}}]}`,
		encoded,
	)

	artifact, _ := extractArtifact([]byte(body))
	if artifact == nil {
		t.Fatal("no artifact extracted")
	}
	if string(artifact.Data) != "snake-image" {
		t.Fatalf("data = %q, want snake-image", artifact.Data)
	}
	if artifact.MimeType != "image/webp" {
		t.Fatalf("mime type = %q, want image/webp", artifact.MimeType)
	}
}

func TestExtractLongBase64Text(t *testing.T) {
	// A text part long enough to be sniffed as an embedded image.
	encoded := strings.Repeat("QUJD", 300)
	body := fmt.Sprintf(`{"candidates":[{"content":{"parts":[{"text":%q}]}}]}`, encoded)

	artifact, strategy := extractArtifact([]byte(body))
	if artifact == nil {
		t.Fatal("no artifact extracted")
	}
	if strategy != "base64_text" {
		t.Fatalf("strategy = %q, want base64_text", strategy)
	}
	if artifact.MimeType != "image/png" {
		t.Fatalf("mime type = %q, want image/png", artifact.MimeType)
	}
	if string(artifact.Data) != strings.Repeat("ABC", 300) {
		t.Fatal("decoded payload mismatch")
	}
}

func TestExtractIgnoresShortText(t *testing.T) {
	body := `{"candidates":[{"content":{"parts":[{"text":"QUJDRA=="}]}}]}`
	if artifact, _ := extractArtifact([]byte(body)); artifact != nil {
		t.Fatal("short text sniffed as artifact")
	}
}

func TestExtractIgnoresProse(t *testing.T) {
	prose := strings.Repeat("I cannot generate that image for you. ", 40)
	body := fmt.Sprintf(`{"candidates":[{"content":{"parts":[{"text":%q}]}}]}`, prose)
	if artifact, _ := extractArtifact([]byte(body)); artifact != nil {
		t.Fatal("prose sniffed as artifact")
	}
}

func TestExtractEmptyResponse(t *testing.T) {
	for _, body := range []string{`{}`, `{"candidates":[]}`, `{"candidates":[{"content":{"parts":[]}}]}`} {
		if artifact, _ := extractArtifact([]byte(body)); artifact != nil {
			t.Fatalf("artifact extracted from %s", body)
		}
	}
}

func TestPolicyRejection(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		reason string
		want   bool
	}{
		{"finish_reason_safety", `{"candidates":[{"finishReason":"IMAGE_SAFETY"}]}`, "IMAGE_SAFETY", true},
		{"finish_reason_prohibited", `{"candidates":[{"finishReason":"PROHIBITED_CONTENT"}]}`, "PROHIBITED_CONTENT", true},
		{"block_reason", `{"promptFeedback":{"blockReason":"SAFETY"}}`, "SAFETY", true},
		{"normal_stop", `{"candidates":[{"finishReason":"STOP"}]}`, "", false},
		{"empty", `{}`, "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reason, rejected := policyRejection([]byte(tc.body))
			if rejected != tc.want {
				t.Fatalf("rejected = %v, want %v", rejected, tc.want)
			}
			if reason != tc.reason {
				t.Fatalf("reason = %q, want %q", reason, tc.reason)
			}
		})
	}
}

func TestComposePrompt(t *testing.T) {
	plain := composePrompt("", false)
	if !strings.Contains(plain, promptDefault) {
		t.Fatal("default instruction missing when no input given")
	}
	if !strings.Contains(plain, "Never return the input photo unchanged") {
		t.Fatal("anti-echo framing missing")
	}

	withRef := composePrompt("", true)
	if !strings.Contains(withRef, promptReference) {
		t.Fatal("reference instruction missing")
	}
	if strings.Contains(withRef, promptDefault) {
		t.Fatal("default instruction present despite reference image")
	}

	withText := composePrompt("  short bob, copper red  ", false)
	if !strings.Contains(withText, "short bob, copper red.") {
		t.Fatal("user instructions missing or untrimmed")
	}
	if strings.Contains(withText, promptDefault) {
		t.Fatal("default instruction present despite user instructions")
	}
}
