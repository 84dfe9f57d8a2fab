package persona

import "strings"

const replyMarker = "Aura:"

// Extract isolates the newly generated reply from the decoded model
// output. The decoded text contains the original prompt followed by the
// continuation, so the reply is whatever follows the last "Aura:" marker
// (the open turn marker the prompt ends with). When the marker is absent
// the whole trimmed text is returned.
func Extract(decoded string) string {
	if idx := strings.LastIndex(decoded, replyMarker); idx >= 0 {
		decoded = decoded[idx+len(replyMarker):]
	}
	return limitQuestions(strings.TrimSpace(decoded))
}

// limitQuestions enforces Aura's at-most-one-question constraint: when a
// reply contains more than one "?", every occurrence except the last is
// demoted to a period.
func limitQuestions(text string) string {
	count := strings.Count(text, "?")
	if count <= 1 {
		return text
	}
	return strings.Replace(text, "?", ".", count-1)
}
