package conversation

// Package conversation keeps the state of a single chat conversation.
//
// A Manager owns the ordered message history, keeps it under a token budget
// by evicting the oldest turns, maintains the persona system message at the
// head of the history and persists the history after every exchange.
//
// The history always starts with a system message and no other message may
// have the system role. Eviction only ever removes whole messages starting at
// index 1, so the system message survives even when it alone exceeds the
// budget.
//
// A Manager is not safe for concurrent use. Use one manager per conversation
// and serialize access externally.

import (
	"context"

	"github.com/go-go-golems/parley/pkg/chat"
)

// Manager defines the conversation operations used by the CLI.
type Manager interface {
	Submit(ctx context.Context, prompt string, options ...SubmitOption) (string, error)
	EnforceBudget() int
	TotalTokens() int
	CountTokens(text string) int
	SetPersona(name PersonaName) error
	SetCustomMessage(text string) error
	SyncSystemMessage()
	Load() (chat.History, error)
	Save() error
	Reset() error
	History() chat.History
}
