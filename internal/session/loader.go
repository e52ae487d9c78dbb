package session

import (
	"context"
	"log/slog"

	"github.com/unigo-labs/unigo-chat/internal/domain"
	"github.com/unigo-labs/unigo-chat/internal/store"
	"github.com/unigo-labs/unigo-chat/internal/upstream"
)

// Loader builds a tab's session from storage and the auth check.
type Loader struct {
	api    upstream.API
	logger *slog.Logger
}

// NewLoader creates a loader.
func NewLoader(api upstream.API, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{api: api, logger: logger}
}

// Load runs on page load. Signed-in users start from an empty local thread
// with onboarding skipped; guests resume whatever the tab persisted.
func (l *Loader) Load(ctx context.Context, b *store.Bucket) (domain.Session, domain.AuthInfo) {
	auth := l.checkAuth(ctx)
	if !auth.IsAuthenticated {
		return l.readPersisted(ctx, b), auth
	}

	b.SyncAvatar(ctx, auth.User)

	if history, err := l.api.History(ctx); err != nil {
		l.logger.Debug("server history unavailable", "error", err)
	} else {
		l.logger.Info("Server history available", "messages", len(history))
	}

	sess := domain.Session{
		ChatHistory:           domain.ChatHistory{},
		OnboardingState:       domain.CompletedOnboarding(),
		CurrentConversationID: b.ConversationID(ctx),
	}
	b.SaveSession(ctx, sess)
	return sess, auth
}

// Rehydrate restores a tab whose controller was evicted or lost in a
// restart. Unlike Load it keeps the persisted thread of signed-in users.
func (l *Loader) Rehydrate(ctx context.Context, b *store.Bucket) (domain.Session, domain.AuthInfo) {
	return l.readPersisted(ctx, b), l.checkAuth(ctx)
}

func (l *Loader) checkAuth(ctx context.Context) domain.AuthInfo {
	auth, err := l.api.Me(ctx)
	if err != nil {
		l.logger.Warn("auth check failed, continuing as guest", "error", err)
		return domain.Guest()
	}
	return auth
}

func (l *Loader) readPersisted(ctx context.Context, b *store.Bucket) domain.Session {
	return domain.Session{
		ChatHistory:           b.History(ctx),
		OnboardingState:       b.Onboarding(ctx),
		CurrentConversationID: b.ConversationID(ctx),
	}
}
