// Package session holds the per-tab chat session: loading, onboarding,
// chat turns, resets and conversation loads.
package session

import (
	"context"
	"time"

	"github.com/unigo-labs/unigo-chat/internal/domain"
)

// View is the presentation sink a controller renders into.
type View interface {
	AppendUser(text string)
	// RevealAssistant shows text with the typing effect. It returns once the
	// whole text is visible.
	RevealAssistant(ctx context.Context, text string, speed time.Duration, transient bool)
	// ShowLoading shows the loading indicator and returns its dismiss func.
	ShowLoading() (dismiss func())
	SetPanel(html string)
	SetPlaceholder(text string)
	SetAvatar(url string)
	ReplaceThread(history domain.ChatHistory)
}

// Skipper is implemented by views whose reveal can be fast-forwarded.
type Skipper interface {
	Skip()
}
