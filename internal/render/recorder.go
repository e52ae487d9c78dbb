package render

import (
	"context"
	"sync"
	"time"

	"github.com/unigo-labs/unigo-chat/internal/domain"
)

// Reveal is one recorded assistant reveal.
type Reveal struct {
	Text      string
	Speed     time.Duration
	Transient bool
}

// Recorder is a view that records calls instead of rendering them.
type Recorder struct {
	mu           sync.Mutex
	Users        []string
	Reveals      []Reveal
	Panels       []string
	Placeholders []string
	Avatars      []string
	Threads      []domain.ChatHistory
	LoadingShown int
	LoadingOpen  int
}

// AppendUser records text.
func (r *Recorder) AppendUser(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Users = append(r.Users, text)
}

// RevealAssistant records the reveal.
func (r *Recorder) RevealAssistant(_ context.Context, text string, speed time.Duration, transient bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Reveals = append(r.Reveals, Reveal{Text: text, Speed: speed, Transient: transient})
}

// ShowLoading counts the indicator.
func (r *Recorder) ShowLoading() func() {
	r.mu.Lock()
	r.LoadingShown++
	r.LoadingOpen++
	r.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			r.LoadingOpen--
			r.mu.Unlock()
		})
	}
}

// SetPanel records html.
func (r *Recorder) SetPanel(html string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Panels = append(r.Panels, html)
}

// SetPlaceholder records text.
func (r *Recorder) SetPlaceholder(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Placeholders = append(r.Placeholders, text)
}

// SetAvatar records url.
func (r *Recorder) SetAvatar(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Avatars = append(r.Avatars, url)
}

// ReplaceThread records a copy of history.
func (r *Recorder) ReplaceThread(history domain.ChatHistory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Threads = append(r.Threads, history.Clone())
}

// RevealTexts returns the revealed texts in order.
func (r *Recorder) RevealTexts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Reveals))
	for i, rv := range r.Reveals {
		out[i] = rv.Text
	}
	return out
}

// LastPanel returns the most recent panel html.
func (r *Recorder) LastPanel() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Panels) == 0 {
		return ""
	}
	return r.Panels[len(r.Panels)-1]
}

// LastPlaceholder returns the most recent placeholder.
func (r *Recorder) LastPlaceholder() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Placeholders) == 0 {
		return ""
	}
	return r.Placeholders[len(r.Placeholders)-1]
}

// Discard is a view that drops every update.
type Discard struct{}

func (Discard) AppendUser(string)                                            {}
func (Discard) RevealAssistant(context.Context, string, time.Duration, bool) {}
func (Discard) ShowLoading() func()                                          { return func() {} }
func (Discard) SetPanel(string)                                              {}
func (Discard) SetPlaceholder(string)                                        {}
func (Discard) SetAvatar(string)                                             {}
func (Discard) ReplaceThread(domain.ChatHistory)                             {}
