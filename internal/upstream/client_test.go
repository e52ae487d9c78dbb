package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unigo-labs/unigo-chat/internal/domain"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(ClientConfig{BaseURL: srv.URL, AuthTimeout: time.Second}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(ClientConfig{BaseURL: "  "}, nil)
	assert.Error(t, err)
}

func TestMeForwardsCookies(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/me", r.URL.Path)
		ck, err := r.Cookie("sessionid")
		require.NoError(t, err)
		assert.Equal(t, "abc", ck.Value)
		assert.Empty(t, r.Header.Get("X-CSRFToken"), "GET must not carry the CSRF header")
		_, _ = io.WriteString(w, `{"is_authenticated":true,"has_history":true,"user":{"character":"hedgehog"}}`)
	}))

	ctx := WithCredentials(context.Background(), Credentials{Cookies: []*http.Cookie{
		{Name: "sessionid", Value: "abc"},
		{Name: "csrftoken", Value: "tok"},
	}})
	info, err := c.Me(ctx)
	require.NoError(t, err)
	assert.True(t, info.IsAuthenticated)
	assert.True(t, info.HasHistory)
	require.NotNil(t, info.User)
	assert.Equal(t, "hedgehog", info.User.Character)
}

func TestMeFailureIsGuest(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	info, err := c.Me(context.Background())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Equal(t, domain.Guest(), info)
}

func TestChatSendsCSRFAndBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, "tok", r.Header.Get("X-CSRFToken"))

		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hi", req.Message)
		assert.Equal(t, "7", req.ConversationID)
		require.Len(t, req.History, 1)
		_, _ = io.WriteString(w, `{"response":"hello","conversation_id":42}`)
	}))

	ctx := WithCredentials(context.Background(), Credentials{Cookies: []*http.Cookie{{Name: "csrftoken", Value: "tok"}}})
	reply, err := c.Chat(ctx, ChatRequest{
		Message:        "hi",
		History:        domain.ChatHistory{{Role: domain.RoleUser, Content: "earlier"}},
		ConversationID: "7",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", reply.Response)
	assert.Equal(t, "42", reply.ConversationID)
}

func TestChatMissingResponseIsMalformed(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"conversation_id":"1"}`)
	}))

	_, err := c.Chat(context.Background(), ChatRequest{Message: "hi"})
	assert.True(t, errors.Is(err, ErrMalformedResponse))
}

func TestChatInvalidJSONIsMalformed(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `not json`)
	}))

	_, err := c.Chat(context.Background(), ChatRequest{Message: "hi"})
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestRecommendDecodesMajors(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Answers map[string]string `json:"answers"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "math", body.Answers["subjects"])
		_, _ = io.WriteString(w, `{"recommended_majors":[{"major_name":"CS","score":0.91,"cluster":"Eng","salary":5000},{"major_name":"Bio"}]}`)
	}))

	res, err := c.Recommend(context.Background(), map[string]string{"subjects": "math"})
	require.NoError(t, err)
	require.Len(t, res.RecommendedMajors, 2)
	assert.Equal(t, "0.91", res.RecommendedMajors[0].ScoreText())
	assert.Equal(t, "5000", res.RecommendedMajors[0].Salary.String())
	assert.Equal(t, "N/A", res.RecommendedMajors[1].ScoreText())
}

func TestListAndLoadConversation(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat/list", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"conversations":[{"id":3,"title":"t","updated_at":"2024-01-01","message_count":4}]}`)
	})
	mux.HandleFunc("/api/chat/load", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3", r.URL.Query().Get("conversation_id"))
		_, _ = io.WriteString(w, `{"conversation":{"id":"3","messages":[{"role":"user","content":"q"},{"role":"assistant","content":"a"}]}}`)
	})
	c := newTestClient(t, mux)

	list, err := c.ListConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "3", list[0].ID.String())
	assert.Equal(t, 4, list[0].MessageCount)

	conv, err := c.LoadConversation(context.Background(), "3")
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 2)
}

func TestLoadConversationWithoutPayload(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))

	_, err := c.LoadConversation(context.Background(), "9")
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestSaveResetAndSummarize(t *testing.T) {
	var saved, reset bool
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat/save", func(w http.ResponseWriter, r *http.Request) {
		saved = true
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/api/chat/reset", func(w http.ResponseWriter, r *http.Request) {
		reset = true
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/api/chat/summarize", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"summary":"short"}`)
	})
	c := newTestClient(t, mux)

	history := domain.ChatHistory{{Role: domain.RoleUser, Content: "x"}}
	require.NoError(t, c.Save(context.Background(), history))
	require.NoError(t, c.Reset(context.Background()))
	summary, err := c.Summarize(context.Background(), history)
	require.NoError(t, err)

	assert.True(t, saved)
	assert.True(t, reset)
	assert.Equal(t, "short", summary)
}

func TestCredentialsFromRequestSkipsOwnCookies(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: "unigo_device_id", Value: "d"})
	r.AddCookie(&http.Cookie{Name: "sessionid", Value: "s"})

	creds := CredentialsFromRequest(r, "unigo_device_id")
	require.Len(t, creds.Cookies, 1)
	assert.Equal(t, "sessionid", creds.Cookies[0].Name)
}
