package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/unigo-labs/unigo-chat/internal/domain"
	"github.com/unigo-labs/unigo-chat/internal/onboarding"
	"github.com/unigo-labs/unigo-chat/internal/panel"
	"github.com/unigo-labs/unigo-chat/internal/reveal"
	"github.com/unigo-labs/unigo-chat/internal/store"
	"github.com/unigo-labs/unigo-chat/internal/transcript"
	"github.com/unigo-labs/unigo-chat/internal/upstream"
)

// Fixed user-visible texts.
const (
	ChatErrorText         = "오류가 발생했습니다."
	RecommendFailedText   = "죄송합니다. 추천 정보를 불러오는데 실패했습니다."
	ChatPlaceholder       = "궁금한 점을 물어보세요!"
	GreetingReturning     = "다시 만나서 반갑습니다! 무엇을 도와드릴까요?"
	GreetingNew           = "안녕하세요! 처음 뵙겠습니다. 무엇을 도와드릴까요?"
	GreetingAfterReset    = "새로운 대화를 시작합니다! 무엇을 도와드릴까요?"
	GuestConversationsMsg = "게스트 사용자는 저장된 대화를 불러올 수 없습니다. 로그인 후 이용해주세요."
)

// Options configures controllers.
type Options struct {
	Questions onboarding.QuestionSet
	// Autostart opens the questionnaire for a fresh session. When false a
	// fresh session goes straight to free chat.
	Autostart bool
}

// Controller owns one tab's session. Callers serialize operations; the
// Manager does this per tab.
type Controller struct {
	api     upstream.API
	bucket  *store.Bucket
	opts    Options
	logger  *slog.Logger
	journal transcript.Logger
	key     Key

	mu          sync.RWMutex
	session     domain.Session
	auth        domain.AuthInfo
	panelHTML   string
	placeholder string
}

// Snapshot is a read-only copy of a controller's state.
type Snapshot struct {
	TabID          string                 `json:"tab_id"`
	History        domain.ChatHistory     `json:"history"`
	Onboarding     domain.OnboardingState `json:"onboarding"`
	QuestionCount  int                    `json:"question_count"`
	Question       *onboarding.Question   `json:"question,omitempty"`
	ConversationID string                 `json:"conversation_id,omitempty"`
	PanelHTML      string                 `json:"panel_html"`
	Placeholder    string                 `json:"placeholder"`
	AvatarURL      string                 `json:"avatar_url"`
	Authenticated  bool                   `json:"authenticated"`
}

func newController(key Key, api upstream.API, b *store.Bucket, sess domain.Session, auth domain.AuthInfo, opts Options, journal transcript.Logger, logger *slog.Logger) *Controller {
	if sess.ChatHistory == nil {
		sess.ChatHistory = domain.ChatHistory{}
	}
	if sess.OnboardingState.Answers == nil {
		sess.OnboardingState.Answers = map[string]string{}
	}
	c := &Controller{
		api:     api,
		bucket:  b,
		opts:    opts,
		logger:  logger.With("tab", key.String()),
		journal: journal,
		key:     key,
		session: sess,
		auth:    auth,
	}
	c.panelHTML, _ = b.PanelHTML(context.Background())
	if q, ok := onboarding.Pending(sess.OnboardingState, opts.Questions); ok {
		c.placeholder = onboarding.Placeholder(q)
	} else {
		c.placeholder = ChatPlaceholder
	}
	return c
}

// Start renders the tab on page load and resumes onboarding if needed.
func (c *Controller) Start(ctx context.Context, view View) {
	view.SetAvatar(c.avatarURL(ctx))
	view.ReplaceThread(c.history())

	if html, ok := c.bucket.PanelHTML(ctx); ok && html != "" {
		c.setPanel(ctx, view, html)
	} else {
		c.setPanel(ctx, view, panel.DefaultHTML)
	}

	c.mu.RLock()
	ob := c.session.OnboardingState
	empty := len(c.session.ChatHistory) == 0
	auth := c.auth
	c.mu.RUnlock()

	if !ob.IsComplete && (ob.Step > 0 || c.opts.Autostart) {
		c.enterPending(ctx, view)
		return
	}

	c.markComplete(ctx)
	c.setPlaceholder(view, ChatPlaceholder)
	if empty && auth.IsAuthenticated {
		greeting := GreetingNew
		if auth.HasHistory {
			greeting = GreetingReturning
		}
		view.RevealAssistant(ctx, greeting, reveal.GreetingSpeed, true)
	}
}

// Submit handles one user send. Whitespace-only input is ignored.
func (c *Controller) Submit(ctx context.Context, text string, view View) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	c.log("user_message", "outbound", text, nil)

	c.mu.RLock()
	complete := c.session.OnboardingState.IsComplete
	c.mu.RUnlock()

	switch {
	case onboarding.IsResetTrigger(text):
		c.restartOnboarding(ctx, text, view)
	case !complete:
		c.answer(ctx, text, view)
	default:
		c.chatTurn(ctx, text, view)
	}
}

func (c *Controller) restartOnboarding(ctx context.Context, text string, view View) {
	view.AppendUser(text)
	c.mu.Lock()
	c.session.ChatHistory = c.session.ChatHistory.Append(domain.RoleUser, text)
	c.session.OnboardingState = domain.FreshOnboarding()
	c.mu.Unlock()
	c.persist(ctx)
	c.logger.Info("Onboarding restarted")
	c.enterPending(ctx, view)
}

func (c *Controller) answer(ctx context.Context, text string, view View) {
	view.AppendUser(text)
	c.mu.Lock()
	c.session.ChatHistory = c.session.ChatHistory.Append(domain.RoleUser, text)
	next, done := onboarding.Record(c.session.OnboardingState, c.opts.Questions, text)
	if done {
		next.IsComplete = true
	}
	c.session.OnboardingState = next
	c.mu.Unlock()
	c.persist(ctx)

	if !done {
		c.enterPending(ctx, view)
		return
	}
	c.finishOnboarding(ctx, view)
}

// enterPending shows the current question unless the thread already ends
// with it.
func (c *Controller) enterPending(ctx context.Context, view View) {
	c.mu.RLock()
	q, ok := onboarding.Pending(c.session.OnboardingState, c.opts.Questions)
	history := c.session.ChatHistory
	c.mu.RUnlock()

	if !ok {
		// Step ran past the question set, e.g. the set shrank between deploys.
		c.markComplete(ctx)
		c.setPlaceholder(view, ChatPlaceholder)
		return
	}

	c.setPlaceholder(view, onboarding.Placeholder(q))
	if !onboarding.NeedsPrompt(history, q) {
		return
	}
	c.revealAndAppend(ctx, view, q.Prompt, reveal.PromptSpeed)
}

func (c *Controller) finishOnboarding(ctx context.Context, view View) {
	c.mu.RLock()
	answers := c.session.OnboardingState.Clone().Answers
	c.mu.RUnlock()

	dismiss := view.ShowLoading()
	res, err := c.api.Recommend(ctx, answers)
	dismiss()
	c.setPlaceholder(view, ChatPlaceholder)

	if err != nil {
		c.logger.Error("Recommendation request failed", "error", err)
		c.revealAndAppend(ctx, view, RecommendFailedText, reveal.ReplySpeed)
		return
	}

	html, err := panel.Recommendation(res)
	if err != nil {
		c.logger.Error("Failed to render recommendation panel", "error", err)
	} else {
		c.setPanel(ctx, view, html)
	}
	c.logger.Info("Recommendation received", "majors", len(res.RecommendedMajors))
	c.revealAndAppend(ctx, view, panel.RecommendationMessage(res), reveal.ReplySpeed)
}

func (c *Controller) chatTurn(ctx context.Context, text string, view View) {
	view.AppendUser(text)
	c.mu.Lock()
	c.session.ChatHistory = c.session.ChatHistory.Append(domain.RoleUser, text)
	req := upstream.ChatRequest{
		Message:        text,
		History:        c.session.ChatHistory.WithoutLast(),
		ConversationID: c.session.CurrentConversationID,
	}
	c.mu.Unlock()
	c.persist(ctx)

	dismiss := view.ShowLoading()
	reply, err := c.api.Chat(ctx, req)
	dismiss()
	if err != nil {
		c.logger.Error("Chat request failed", "error", err)
		c.log("chat_error", "inbound", err.Error(), nil)
		view.RevealAssistant(ctx, ChatErrorText, reveal.ErrorSpeed, true)
		return
	}

	c.mu.Lock()
	if c.session.CurrentConversationID == "" && reply.ConversationID != "" {
		c.session.CurrentConversationID = reply.ConversationID
	}
	c.mu.Unlock()
	c.revealAndAppend(ctx, view, reply.Response, reveal.ReplySpeed)
}

// revealAndAppend reveals text and then records it in history. A new
// operation on the tab fast-forwards the reveal, so the append order always
// matches the order operations ran in.
func (c *Controller) revealAndAppend(ctx context.Context, view View, text string, speed time.Duration) {
	view.RevealAssistant(ctx, text, speed, false)
	c.mu.Lock()
	c.session.ChatHistory = c.session.ChatHistory.Append(domain.RoleAssistant, text)
	c.mu.Unlock()
	c.persist(ctx)
	c.log("assistant_message", "inbound", text, nil)
}

// Reset saves (signed-in users) and clears the session, then starts over.
func (c *Controller) Reset(ctx context.Context, view View) {
	c.mu.RLock()
	history := c.session.ChatHistory.Clone()
	c.mu.RUnlock()

	if len(history) > 0 {
		auth, err := c.api.Me(ctx)
		if err != nil {
			c.logger.Warn("auth check before reset failed", "error", err)
		} else {
			c.mu.Lock()
			c.auth = auth
			c.mu.Unlock()
			if auth.IsAuthenticated {
				if err := c.api.Save(ctx, history); err != nil {
					c.logger.Warn("failed to save history before reset", "error", err)
				}
			}
		}
	}
	if err := c.api.Reset(ctx); err != nil {
		c.logger.Debug("server reset failed", "error", err)
	}

	c.mu.Lock()
	c.session = domain.NewSession()
	c.panelHTML = ""
	c.mu.Unlock()
	c.bucket.ClearSession(ctx)
	c.log("reset", "outbound", "", map[string]any{"messages": len(history)})
	c.logger.Info("Session reset", "messages", len(history))

	view.ReplaceThread(domain.ChatHistory{})
	c.setPanel(ctx, view, panel.DefaultHTML)

	if c.opts.Autostart {
		c.persist(ctx)
		c.enterPending(ctx, view)
		return
	}
	c.markComplete(ctx)
	c.setPlaceholder(view, ChatPlaceholder)
	view.RevealAssistant(ctx, GreetingAfterReset, reveal.GreetingSpeed, true)
}

// LoadConversation replaces the session with a saved conversation.
func (c *Controller) LoadConversation(ctx context.Context, id string, onConflict Conflict, view View) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrInvalidConversation
	}

	c.mu.RLock()
	history := c.session.ChatHistory.Clone()
	c.mu.RUnlock()

	if len(history) > 0 {
		switch onConflict {
		case ConflictCancel:
			return ErrLoadCancelled
		case ConflictSave:
			if err := c.api.Save(ctx, history); err != nil {
				c.logger.Warn("failed to save history before load", "error", err)
			}
		case ConflictDiscard:
		default:
			return ErrConflict
		}
	}

	conv, err := c.api.LoadConversation(ctx, id)
	if err != nil {
		c.logger.Error("Failed to load conversation", "conversation_id", id, "error", err)
		return fmt.Errorf("load conversation %s: %w", id, err)
	}
	convID := conv.ID.String()
	if convID == "" {
		convID = id
	}

	c.mu.Lock()
	c.session.ChatHistory = domain.ChatHistory(conv.Messages).Clone()
	c.session.CurrentConversationID = convID
	c.session.OnboardingState.IsComplete = true
	loaded := c.session.ChatHistory.Clone()
	c.mu.Unlock()
	c.persist(ctx)
	c.log("conversation_loaded", "inbound", "", map[string]any{"conversation_id": convID, "messages": len(loaded)})

	view.ReplaceThread(loaded)
	c.setPlaceholder(view, ChatPlaceholder)
	return nil
}

// Conversations lists the signed-in user's saved conversations.
func (c *Controller) Conversations(ctx context.Context) ([]domain.ConversationSummary, error) {
	c.mu.RLock()
	authed := c.auth.IsAuthenticated
	c.mu.RUnlock()
	if !authed {
		return nil, ErrGuest
	}
	list, err := c.api.ListConversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return list, nil
}

// Summarize asks the server for a summary of the thread and shows it in the
// side panel.
func (c *Controller) Summarize(ctx context.Context, view View) (string, error) {
	c.mu.RLock()
	history := c.session.ChatHistory.Clone()
	c.mu.RUnlock()
	if len(history) == 0 {
		return "", ErrNothingToSummarize
	}

	dismiss := view.ShowLoading()
	summary, err := c.api.Summarize(ctx, history)
	dismiss()
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	html, err := panel.Summary(summary)
	if err != nil {
		return "", err
	}
	c.setPanel(ctx, view, html)
	return html, nil
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot(ctx context.Context) Snapshot {
	avatar := c.avatarURL(ctx)

	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := Snapshot{
		TabID:          c.key.Tab,
		History:        c.session.ChatHistory.Clone(),
		Onboarding:     c.session.OnboardingState.Clone(),
		QuestionCount:  c.opts.Questions.Len(),
		ConversationID: c.session.CurrentConversationID,
		PanelHTML:      c.panelHTML,
		Placeholder:    c.placeholder,
		AvatarURL:      avatar,
		Authenticated:  c.auth.IsAuthenticated,
	}
	if q, ok := onboarding.Pending(c.session.OnboardingState, c.opts.Questions); ok {
		snap.Question = &q
	}
	return snap
}

func (c *Controller) history() domain.ChatHistory {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.ChatHistory.Clone()
}

func (c *Controller) markComplete(ctx context.Context) {
	c.mu.Lock()
	changed := !c.session.OnboardingState.IsComplete
	c.session.OnboardingState.IsComplete = true
	c.mu.Unlock()
	if changed {
		c.persist(ctx)
	}
}

func (c *Controller) persist(ctx context.Context) {
	c.mu.RLock()
	sess := domain.Session{
		ChatHistory:           c.session.ChatHistory.Clone(),
		OnboardingState:       c.session.OnboardingState.Clone(),
		CurrentConversationID: c.session.CurrentConversationID,
	}
	c.mu.RUnlock()
	c.bucket.SaveSession(ctx, sess)
}

func (c *Controller) setPanel(ctx context.Context, view View, html string) {
	c.mu.Lock()
	c.panelHTML = html
	c.mu.Unlock()
	c.bucket.SetPanelHTML(ctx, html)
	view.SetPanel(html)
}

func (c *Controller) setPlaceholder(view View, text string) {
	c.mu.Lock()
	c.placeholder = text
	c.mu.Unlock()
	view.SetPlaceholder(text)
}

func (c *Controller) avatarURL(ctx context.Context) string {
	character, custom := c.bucket.Avatar(ctx)
	return panel.AvatarURL(character, custom)
}

func (c *Controller) log(eventType, direction, content string, meta map[string]any) {
	c.journal.Log(transcript.Event{
		DeviceID:   c.key.Device,
		TabID:      c.key.Tab,
		Channel:    "widget",
		Direction:  direction,
		EventType:  eventType,
		ContentRaw: content,
		Meta:       meta,
	})
}
