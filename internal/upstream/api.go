// Package upstream is the client for the remote chat and recommendation API.
package upstream

import (
	"context"

	"github.com/unigo-labs/unigo-chat/internal/domain"
)

// API defines the remote collaborator used by the session controller.
// This interface is implemented by the HTTP client.
type API interface {
	// Me reports whether the forwarded credentials belong to a signed-in user.
	Me(ctx context.Context) (domain.AuthInfo, error)

	// History returns the user's server-side history. Reference only; never merged.
	History(ctx context.Context) (domain.ChatHistory, error)

	// Chat sends one general chat turn.
	Chat(ctx context.Context, req ChatRequest) (ChatReply, error)

	// Recommend submits onboarding answers for ranked majors.
	Recommend(ctx context.Context, answers map[string]string) (domain.RecommendationResult, error)

	// Save stores the given thread server-side.
	Save(ctx context.Context, history domain.ChatHistory) error

	// Reset clears the server-side chat session. Guests get an error.
	Reset(ctx context.Context) error

	// ListConversations returns the user's saved conversations.
	ListConversations(ctx context.Context) ([]domain.ConversationSummary, error)

	// LoadConversation fetches one saved conversation.
	LoadConversation(ctx context.Context, id string) (domain.Conversation, error)

	// Summarize returns a summary of the thread.
	Summarize(ctx context.Context, history domain.ChatHistory) (string, error)
}

// Ensure Client implements API.
var _ API = (*Client)(nil)

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message        string             `json:"message"`
	History        domain.ChatHistory `json:"history"`
	ConversationID string             `json:"conversation_id,omitempty"`
}

// ChatReply is the decoded response of POST /api/chat.
type ChatReply struct {
	Response       string
	ConversationID string
}

type chatResponse struct {
	Response       *string           `json:"response"`
	ConversationID domain.FlexString `json:"conversation_id"`
}

type historyResponse struct {
	History domain.ChatHistory `json:"history"`
}

type listResponse struct {
	Conversations []domain.ConversationSummary `json:"conversations"`
}

type loadResponse struct {
	Conversation *domain.Conversation `json:"conversation"`
}

type summarizeResponse struct {
	Summary *string `json:"summary"`
}
