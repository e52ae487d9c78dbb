package store

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/unigo-labs/unigo-chat/internal/domain"
)

// Storage keys.
const (
	KeyHistory        = "unigo.app.chatHistory"
	KeyOnboarding     = "unigo.app.onboarding"
	KeyConversationID = "unigo.app.currentConversationId"
	KeyResultPanel    = "unigo.app.resultPanel"

	KeyCharacter   = "user_character"
	KeyCustomImage = "user_custom_image"
)

// Bucket is the per-tab view of a KV backend: session-scope keys live under
// the tab namespace, durable keys under the device namespace.
//
// Every read falls back to an empty default. Backend and decode errors are
// logged and never returned, so a damaged record cannot break the tab.
type Bucket struct {
	kv     KV
	tab    string
	device string
	logger *slog.Logger
}

// NewBucket binds kv to a tab and its device.
func NewBucket(kv KV, tabNamespace, deviceNamespace string, logger *slog.Logger) *Bucket {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bucket{kv: kv, tab: tabNamespace, device: deviceNamespace, logger: logger}
}

func (b *Bucket) namespace(scope Scope) string {
	if scope == ScopeDurable {
		return b.device
	}
	return b.tab
}

// Get returns the stored string or "" when absent or unreadable.
func (b *Bucket) Get(ctx context.Context, scope Scope, key string) (string, bool) {
	v, ok, err := b.kv.Get(ctx, scope, b.namespace(scope), key)
	if err != nil {
		b.logger.Warn("storage read failed", "scope", scope.String(), "key", key, "tab", b.tab, "error", err)
		return "", false
	}
	return v, ok
}

// Set stores value; failures are logged.
func (b *Bucket) Set(ctx context.Context, scope Scope, key, value string) {
	if err := b.kv.Set(ctx, scope, b.namespace(scope), key, value); err != nil {
		b.logger.Warn("storage write failed", "scope", scope.String(), "key", key, "tab", b.tab, "error", err)
	}
}

// Remove deletes key; failures are logged.
func (b *Bucket) Remove(ctx context.Context, scope Scope, key string) {
	if err := b.kv.Remove(ctx, scope, b.namespace(scope), key); err != nil {
		b.logger.Warn("storage remove failed", "scope", scope.String(), "key", key, "tab", b.tab, "error", err)
	}
}

func (b *Bucket) setJSON(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		b.logger.Warn("storage encode failed", "key", key, "error", err)
		return
	}
	b.Set(ctx, ScopeSession, key, string(data))
}

// History returns the persisted thread, or an empty one.
func (b *Bucket) History(ctx context.Context) domain.ChatHistory {
	raw, ok := b.Get(ctx, ScopeSession, KeyHistory)
	if !ok || raw == "" {
		return domain.ChatHistory{}
	}
	var h domain.ChatHistory
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		b.logger.Warn("discarding corrupt chat history", "tab", b.tab, "error", err)
		return domain.ChatHistory{}
	}
	if h == nil {
		h = domain.ChatHistory{}
	}
	return h
}

// Onboarding returns the persisted onboarding state, or a fresh one.
func (b *Bucket) Onboarding(ctx context.Context) domain.OnboardingState {
	raw, ok := b.Get(ctx, ScopeSession, KeyOnboarding)
	if !ok || raw == "" {
		return domain.FreshOnboarding()
	}
	var st domain.OnboardingState
	if err := json.Unmarshal([]byte(raw), &st); err != nil || st.Step < 0 {
		b.logger.Warn("discarding corrupt onboarding state", "tab", b.tab, "error", err)
		return domain.FreshOnboarding()
	}
	if st.Answers == nil {
		st.Answers = map[string]string{}
	}
	return st
}

// ConversationID returns the active conversation id, or "".
func (b *Bucket) ConversationID(ctx context.Context) string {
	v, _ := b.Get(ctx, ScopeSession, KeyConversationID)
	return v
}

// SaveSession persists history, onboarding state and the conversation id.
func (b *Bucket) SaveSession(ctx context.Context, s domain.Session) {
	history := s.ChatHistory
	if history == nil {
		history = domain.ChatHistory{}
	}
	b.setJSON(ctx, KeyHistory, history)
	b.setJSON(ctx, KeyOnboarding, s.OnboardingState)
	if s.CurrentConversationID != "" {
		b.Set(ctx, ScopeSession, KeyConversationID, s.CurrentConversationID)
	} else {
		b.Remove(ctx, ScopeSession, KeyConversationID)
	}
}

// ClearSession removes every session-scope key of the tab.
func (b *Bucket) ClearSession(ctx context.Context) {
	for _, key := range []string{KeyHistory, KeyOnboarding, KeyResultPanel, KeyConversationID} {
		b.Remove(ctx, ScopeSession, key)
	}
}

// PanelHTML returns the cached side-panel markup.
func (b *Bucket) PanelHTML(ctx context.Context) (string, bool) {
	return b.Get(ctx, ScopeSession, KeyResultPanel)
}

// SetPanelHTML caches the side-panel markup.
func (b *Bucket) SetPanelHTML(ctx context.Context, html string) {
	b.Set(ctx, ScopeSession, KeyResultPanel, html)
}

// Avatar returns the durable character and custom image preferences.
func (b *Bucket) Avatar(ctx context.Context) (character, customImage string) {
	character, _ = b.Get(ctx, ScopeDurable, KeyCharacter)
	customImage, _ = b.Get(ctx, ScopeDurable, KeyCustomImage)
	return character, customImage
}

// SyncAvatar mirrors the server profile into durable storage. A missing custom
// image clears any cached one; a missing character keeps the cached value.
func (b *Bucket) SyncAvatar(ctx context.Context, user *domain.User) {
	if user == nil {
		return
	}
	if user.CustomImageURL != "" {
		b.Set(ctx, ScopeDurable, KeyCustomImage, user.CustomImageURL)
	} else {
		b.Remove(ctx, ScopeDurable, KeyCustomImage)
	}
	if user.Character != "" {
		b.Set(ctx, ScopeDurable, KeyCharacter, user.Character)
	}
}
