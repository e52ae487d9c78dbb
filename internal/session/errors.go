package session

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConflict means the tab has unsaved history and the caller must say
	// how to resolve it before loading another conversation.
	ErrConflict = errors.New("current conversation must be saved or discarded first")
	// ErrLoadCancelled is returned when the caller cancels a conflicting load.
	ErrLoadCancelled = errors.New("conversation load cancelled")
	// ErrGuest is returned for operations that require a signed-in user.
	ErrGuest = errors.New("saved conversations require sign-in")
	// ErrNothingToSummarize is returned when the history is empty.
	ErrNothingToSummarize = errors.New("no conversation to summarize")
	// ErrInvalidConversation is returned for an empty conversation id.
	ErrInvalidConversation = errors.New("conversation id is required")
	// ErrInvalidConflict is returned for an unknown conflict resolution.
	ErrInvalidConflict = errors.New("unknown conflict resolution")
)

// Conflict says what to do with unsaved history when loading a conversation.
type Conflict int

// Conflict resolutions.
const (
	ConflictUnset Conflict = iota
	ConflictSave
	ConflictDiscard
	ConflictCancel
)

func (c Conflict) String() string {
	switch c {
	case ConflictSave:
		return "save"
	case ConflictDiscard:
		return "discard"
	case ConflictCancel:
		return "cancel"
	default:
		return ""
	}
}

// ParseConflict parses "save", "discard", "cancel" or "" (unset).
func ParseConflict(s string) (Conflict, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return ConflictUnset, nil
	case "save":
		return ConflictSave, nil
	case "discard":
		return ConflictDiscard, nil
	case "cancel":
		return ConflictCancel, nil
	default:
		return ConflictUnset, fmt.Errorf("%w: %q", ErrInvalidConflict, s)
	}
}
