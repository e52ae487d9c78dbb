package domain

// ConversationSummary is an entry of the saved-conversation list.
type ConversationSummary struct {
	ID                 FlexString `json:"id"`
	Title              string     `json:"title,omitempty"`
	UpdatedAt          string     `json:"updated_at"`
	MessageCount       int        `json:"message_count"`
	LastMessagePreview string     `json:"last_message_preview,omitempty"`
}

// Conversation is a saved conversation loaded from the server.
type Conversation struct {
	ID       FlexString    `json:"id"`
	Title    string        `json:"title,omitempty"`
	Messages []ChatMessage `json:"messages"`
}
