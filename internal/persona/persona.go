package persona

import "strings"

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one exchange unit in a conversation. Immutable once built;
// turns live only for the duration of the request that carried them.
type Turn struct {
	Role    Role
	Content string
}

// historyWindow bounds how many trailing history turns reach the prompt.
const historyWindow = 8

// Prompt is the fixed behavioural description Aura speaks from.
const Prompt = `You are Aura.

You are calm, grounded, and emotionally present.
You are not a therapist or counselor.
You do not analyze, diagnose, or interrogate.
You do not ask questions when someone sounds anxious or low.

You speak like a human sitting nearby, not a professional.`

// bannedMarkers are literal substrings a user could inject to forge
// role-turn boundaries or impersonate Aura inside the flat prompt.
var bannedMarkers = []string{"User:", "Assistant:", "Aura:", "[/]", "[INST]", "[/INST]"}

// Sanitize removes every occurrence of the banned role markers and trims
// surrounding whitespace. Sanitizing already-sanitized text is a no-op.
func Sanitize(text string) string {
	for _, marker := range bannedMarkers {
		text = strings.ReplaceAll(text, marker, "")
	}
	return strings.TrimSpace(text)
}

// Assemble builds the flat text prompt from the persona description, the
// trailing window of the conversation history, and the new user message.
// The result always ends with the new user message followed by an open
// "Aura:" turn marker, so the model continuation is unambiguously the
// persona's reply.
func Assemble(personaPrompt string, history []Turn, newMessage string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(personaPrompt))
	b.WriteString("\n\n")

	start := 0
	if len(history) > historyWindow {
		start = len(history) - historyWindow
	}
	for _, turn := range history[start:] {
		label := "Aura"
		if turn.Role == RoleUser {
			label = "User"
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(Sanitize(turn.Content))
		b.WriteString("\n")
	}

	b.WriteString("User: ")
	b.WriteString(Sanitize(newMessage))
	b.WriteString("\nAura:")

	return b.String()
}
