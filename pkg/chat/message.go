package chat

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// Message is a single role-tagged entry of a conversation history.
type Message struct {
	Role    Role   `json:"role" yaml:"role" jsonschema:"required,enum=system,enum=user,enum=assistant"`
	Content string `json:"content" yaml:"content" jsonschema:"required"`
}

func NewSystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

func NewAssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

func (m Message) View() string {
	return fmt.Sprintf("[%s]: %s", m.Role, strings.TrimRight(m.Content, "\n"))
}

// History is the chronologically ordered list of messages sent to the model.
// When non-empty, index 0 is the only position allowed to hold a system message.
type History []Message

// Validate checks that no system message appears after index 0.
func (h History) Validate() error {
	for i, m := range h {
		if !m.Role.IsValid() {
			return fmt.Errorf("message %d has unknown role %q", i, m.Role)
		}
		if i > 0 && m.Role == RoleSystem {
			return fmt.Errorf("system message at index %d, only index 0 may be a system message", i)
		}
	}
	return nil
}

func (h History) HasSystemMessage() bool {
	return len(h) > 0 && h[0].Role == RoleSystem
}

// Copy returns a shallow copy whose backing array is not shared with h.
func (h History) Copy() History {
	if h == nil {
		return nil
	}
	ret := make(History, len(h))
	copy(ret, h)
	return ret
}

func (h History) View() string {
	var sb strings.Builder
	for _, m := range h {
		sb.WriteString(m.View())
		sb.WriteString("\n")
	}
	return sb.String()
}
