package generation

import "strings"

// The provider is observed, empirically, to sometimes echo the input image
// back unchanged. The framing below instructs it to preserve identity-bearing
// features, alter only the hairstyle, and never return the input as-is.
const (
	promptFraming = "Change only the hair and hairstyle of the person in the first photo. " +
		"Keep the face, eyes, skin tone, clothing, background and lighting exactly as they are. " +
		"Never return the input photo unchanged; the hairstyle must be visibly different."

	promptReference = "The new hairstyle must match the hairstyle in the second photo as closely as possible."

	promptDefault = "Give them a beautiful, modern hairstyle that suits their face."

	promptQuality = "Photorealistic, high quality, like a professional photo from an expensive salon."
)

// composePrompt builds the outbound prompt from the fixed framing, the user's
// free-text instructions, and whether a style-reference image was supplied.
// Absence of both selects the generic default instruction.
func composePrompt(instructions string, hasReference bool) string {
	parts := []string{promptFraming}

	instructions = strings.TrimSpace(instructions)
	if instructions != "" {
		parts = append(parts, instructions+".")
	}
	if hasReference {
		parts = append(parts, promptReference)
	}
	if instructions == "" && !hasReference {
		parts = append(parts, promptDefault)
	}
	parts = append(parts, promptQuality)

	return strings.Join(parts, " ")
}
