package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unigo-labs/unigo-chat/internal/domain"
	"github.com/unigo-labs/unigo-chat/internal/onboarding"
	"github.com/unigo-labs/unigo-chat/internal/store"
	"github.com/unigo-labs/unigo-chat/internal/transcript"
	"github.com/unigo-labs/unigo-chat/internal/upstream"
)

var errUpstream = errors.New("upstream unavailable")

// fakeAPI is a scriptable upstream.API.
type fakeAPI struct {
	mu sync.Mutex

	auth    domain.AuthInfo
	authErr error

	chatReplies []upstream.ChatReply
	chatErr     error
	chatReqs    []upstream.ChatRequest
	// chatGate, when set, holds Chat until closed; chatEntered is
	// signalled once Chat is waiting.
	chatGate    chan struct{}
	chatEntered chan struct{}

	recommend    domain.RecommendationResult
	recommendErr error
	answers      []map[string]string

	saved    []domain.ChatHistory
	resets   int
	resetErr error

	conversations []domain.ConversationSummary
	loaded        map[string]domain.Conversation
	loadErr       error

	summary    string
	summaryErr error
}

var _ upstream.API = (*fakeAPI)(nil)

func (f *fakeAPI) Me(context.Context) (domain.AuthInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.authErr != nil {
		return domain.Guest(), f.authErr
	}
	return f.auth, nil
}

func (f *fakeAPI) History(context.Context) (domain.ChatHistory, error) {
	return domain.ChatHistory{{Role: domain.RoleUser, Content: "server copy"}}, nil
}

func (f *fakeAPI) Chat(_ context.Context, req upstream.ChatRequest) (upstream.ChatReply, error) {
	if f.chatGate != nil {
		select {
		case f.chatEntered <- struct{}{}:
		default:
		}
		<-f.chatGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatReqs = append(f.chatReqs, req)
	if f.chatErr != nil {
		return upstream.ChatReply{}, f.chatErr
	}
	if len(f.chatReplies) == 0 {
		return upstream.ChatReply{Response: "reply to " + req.Message}, nil
	}
	r := f.chatReplies[0]
	f.chatReplies = f.chatReplies[1:]
	return r, nil
}

func (f *fakeAPI) Recommend(_ context.Context, answers map[string]string) (domain.RecommendationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, answers)
	return f.recommend, f.recommendErr
}

func (f *fakeAPI) Save(_ context.Context, h domain.ChatHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, h.Clone())
	return nil
}

func (f *fakeAPI) Reset(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return f.resetErr
}

func (f *fakeAPI) ListConversations(context.Context) ([]domain.ConversationSummary, error) {
	return f.conversations, nil
}

func (f *fakeAPI) LoadConversation(_ context.Context, id string) (domain.Conversation, error) {
	if f.loadErr != nil {
		return domain.Conversation{}, f.loadErr
	}
	conv, ok := f.loaded[id]
	if !ok {
		return domain.Conversation{}, &upstream.StatusError{Endpoint: "/api/chat/load", StatusCode: 404}
	}
	return conv, nil
}

func (f *fakeAPI) Summarize(context.Context, domain.ChatHistory) (string, error) {
	return f.summary, f.summaryErr
}

func (f *fakeAPI) chatCalls() []upstream.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]upstream.ChatRequest(nil), f.chatReqs...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func shortSet(t *testing.T) onboarding.QuestionSet {
	t.Helper()
	set, err := onboarding.Builtin("short")
	require.NoError(t, err)
	return set
}

var testKey = Key{Device: "device-1", Tab: "tab-1"}

type harness struct {
	api    *fakeAPI
	kv     *store.MemoryStore
	bucket *store.Bucket
	set    onboarding.QuestionSet
	opts   Options
}

func newHarness(t *testing.T, api *fakeAPI, autostart bool) *harness {
	t.Helper()
	kv := store.NewMemory(time.Hour)
	set := shortSet(t)
	return &harness{
		api:    api,
		kv:     kv,
		bucket: store.NewBucket(kv, testKey.String(), testKey.Device, quietLogger()),
		set:    set,
		opts:   Options{Questions: set, Autostart: autostart},
	}
}

// load runs the loader and builds a started controller.
func (h *harness) load(t *testing.T, view View) *Controller {
	t.Helper()
	sess, auth := NewLoader(h.api, quietLogger()).Load(context.Background(), h.bucket)
	c := newController(testKey, h.api, h.bucket, sess, auth, h.opts, transcript.Noop{}, quietLogger())
	c.Start(context.Background(), view)
	return c
}

// resume builds a controller from persisted state without rendering.
func (h *harness) resume(sess domain.Session, auth domain.AuthInfo) *Controller {
	return newController(testKey, h.api, h.bucket, sess, auth, h.opts, transcript.Noop{}, quietLogger())
}
