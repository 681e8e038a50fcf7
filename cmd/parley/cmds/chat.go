package cmds

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-go-golems/parley/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tcnksm/go-input"
)

const chatHelp = `Commands:
  /persona NAME   switch persona (/persona lists them)
  /custom TEXT    set and activate the custom persona
  /reset          reset the conversation
  /history        print the conversation history
  /tokens         print the token usage
  /quit           leave the chat`

func NewChatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			in := &eofReader{Reader: cmd.InOrStdin()}
			ui := &input.UI{
				Writer: cmd.OutOrStdout(),
				Reader: in,
			}
			return runChat(cmd.Context(), s.Manager, ui, in.EOF, cmd.OutOrStdout())
		},
	}
}

type asker interface {
	Ask(query string, opts *input.Options) (string, error)
}

// eofReader remembers whether the underlying reader is exhausted.
type eofReader struct {
	io.Reader
	eof bool
}

func (r *eofReader) Read(p []byte) (int, error) {
	n, err := r.Reader.Read(p)
	if errors.Is(err, io.EOF) {
		r.eof = true
	}
	return n, err
}

func (r *eofReader) EOF() bool {
	return r.eof
}

func runChat(ctx context.Context, m *conversation.ManagerImpl, ui asker, done func() bool, w io.Writer) error {
	_, _ = fmt.Fprintf(w, "Persona: %s. Type /help for commands.\n", m.ActivePersona())

	for {
		line, err := ui.Ask("You", &input.Options{
			Required:    false,
			HideOrder:   true,
			HideDefault: true,
		})
		if err != nil {
			if errors.Is(err, input.ErrInterrupted) || done() {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			if done() {
				return nil
			}
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := handleChatCommand(m, line, w); quit {
				return nil
			}
			continue
		}

		text, err := m.Submit(ctx, line)
		if err != nil && !reportSubmitError(w, err) {
			continue
		}
		_, _ = fmt.Fprint(w, "Bot: ")
		printResponse(w, text)
	}
}

// handleChatCommand runs a slash command and reports whether the chat should
// end.
func handleChatCommand(m *conversation.ManagerImpl, line string, w io.Writer) bool {
	command, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch command {
	case "/quit", "/exit":
		return true

	case "/help":
		_, _ = fmt.Fprintln(w, chatHelp)

	case "/persona":
		if arg == "" {
			printPersonas(w, m)
			return false
		}
		if err := m.SetPersona(conversation.PersonaName(arg)); err != nil {
			_, _ = fmt.Fprintf(w, "Error: %v\n", err)
			return false
		}
		_, _ = fmt.Fprintf(w, "Persona set to %s.\n", arg)

	case "/custom":
		if err := m.SetCustomMessage(arg); err != nil {
			_, _ = fmt.Fprintf(w, "Error: %v\n", err)
			return false
		}
		_, _ = fmt.Fprintln(w, "Custom persona set.")

	case "/reset":
		if err := m.Reset(); err != nil {
			_, _ = fmt.Fprintf(w, "Warning: %v\n", err)
		}
		_, _ = fmt.Fprintln(w, "Conversation history reset.")

	case "/history":
		_, _ = fmt.Fprint(w, m.History().View())

	case "/tokens":
		_, _ = fmt.Fprintf(w, "%d/%d tokens, %d messages\n",
			m.TotalTokens(), m.Settings().TokenBudget, len(m.History()))

	default:
		_, _ = fmt.Fprintf(w, "Unknown command %s\n%s\n", command, chatHelp)
	}

	return false
}

func printPersonas(w io.Writer, m *conversation.ManagerImpl) {
	for _, name := range m.Personas() {
		marker := " "
		if name == m.ActivePersona() {
			marker = "*"
		}
		text, _ := m.PersonaText(name)
		_, _ = fmt.Fprintf(w, "%s %-10s %s\n", marker, name, text)
	}
}

var _ asker = (*input.UI)(nil)
