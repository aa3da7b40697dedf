package scanning

import "strings"

// trimFences removes the markdown code fences models like to wrap JSON in.
// Anything else in the answer is left for the caller to deal with.
func trimFences(text string) string {
	text = strings.TrimSpace(text)

	// Remove opening markdown code blocks
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```JSON")
	text = strings.TrimPrefix(text, "```")

	// Remove closing markdown code blocks
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	return strings.TrimSpace(text)
}
