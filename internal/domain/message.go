package domain

// Chat roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is a single entry of the chat thread.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatHistory is the chronological, append-only chat thread.
type ChatHistory []ChatMessage

// Append returns the history with msg added at the end.
func (h ChatHistory) Append(role, content string) ChatHistory {
	return append(h, ChatMessage{Role: role, Content: content})
}

// LastAssistant returns the most recent assistant message, if any.
func (h ChatHistory) LastAssistant() (ChatMessage, bool) {
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].Role == RoleAssistant {
			return h[i], true
		}
	}
	return ChatMessage{}, false
}

// WithoutLast returns a copy of the history minus its final message.
func (h ChatHistory) WithoutLast() ChatHistory {
	if len(h) == 0 {
		return ChatHistory{}
	}
	out := make(ChatHistory, len(h)-1)
	copy(out, h[:len(h)-1])
	return out
}

// Clone returns an independent copy that is never nil.
func (h ChatHistory) Clone() ChatHistory {
	out := make(ChatHistory, len(h))
	copy(out, h)
	return out
}
