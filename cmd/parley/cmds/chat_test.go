package cmds

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/go-go-golems/parley/pkg/chat"
	"github.com/go-go-golems/parley/pkg/completion"
	"github.com/go-go-golems/parley/pkg/conversation"
	"github.com/go-go-golems/parley/pkg/settings"
	"github.com/go-go-golems/parley/pkg/store"
	"github.com/go-go-golems/parley/pkg/tokens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/tcnksm/go-input"
)

type scriptedAsker struct {
	lines []string
}

func (s *scriptedAsker) Ask(query string, opts *input.Options) (string, error) {
	if len(s.lines) == 0 {
		return "", nil
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func (s *scriptedAsker) done() bool {
	return len(s.lines) == 0
}

func newTestManager(t *testing.T) *conversation.ManagerImpl {
	t.Helper()
	s := (&settings.Settings{
		HistoryFile: filepath.Join(t.TempDir(), "history.json"),
	}).WithDefaults()
	st, err := store.NewFileStore(s.HistoryFile)
	require.NoError(t, err)
	m, err := conversation.NewManager(s, completion.NewEchoClient(), tokens.NewTiktokenCounter(), st)
	require.NoError(t, err)
	return m
}

func TestRunChat(t *testing.T) {
	m := newTestManager(t)
	ui := &scriptedAsker{lines: []string{
		"hello there",
		"",
		"/persona sassy",
		"/persona",
		"/custom You only answer in rhymes.",
		"/tokens",
		"/bogus",
		"second question",
	}}
	var out bytes.Buffer

	require.NoError(t, runChat(context.Background(), m, ui, ui.done, &out))

	s := out.String()
	assert.Contains(t, s, "Bot: hello there")
	assert.Contains(t, s, "Persona set to sassy.")
	assert.Contains(t, s, "* sassy")
	assert.Contains(t, s, "Custom persona set.")
	assert.Contains(t, s, "/1280 tokens")
	assert.Contains(t, s, "Unknown command /bogus")
	assert.Contains(t, s, "Bot: second question")

	h := m.History()
	require.Len(t, h, 5)
	assert.Equal(t, chat.NewSystemMessage("You only answer in rhymes."), h[0])
	assert.Equal(t, conversation.PersonaCustom, m.ActivePersona())
}

func TestRunChatQuit(t *testing.T) {
	m := newTestManager(t)
	ui := &scriptedAsker{lines: []string{"/quit", "never sent"}}
	var out bytes.Buffer

	require.NoError(t, runChat(context.Background(), m, ui, ui.done, &out))
	assert.Len(t, m.History(), 1)
	assert.Len(t, ui.lines, 1)
}

func TestHandleChatCommandErrors(t *testing.T) {
	m := newTestManager(t)
	var out bytes.Buffer

	assert.False(t, handleChatCommand(m, "/persona pirate", &out))
	assert.Contains(t, out.String(), "unknown persona: pirate")

	out.Reset()
	assert.False(t, handleChatCommand(m, "/custom   ", &out))
	assert.Contains(t, out.String(), "custom message cannot be empty")
	assert.Equal(t, conversation.PersonaConcise, m.ActivePersona())
}

func TestHandleChatCommandReset(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Submit(context.Background(), "hi")
	require.NoError(t, err)
	var out bytes.Buffer

	assert.False(t, handleChatCommand(m, "/reset", &out))
	assert.Contains(t, out.String(), "Conversation history reset.")
	assert.Len(t, m.History(), 1)

	out.Reset()
	assert.False(t, handleChatCommand(m, "/history", &out))
	assert.Contains(t, out.String(), "[system]: ")
}

type recordingProcessor struct {
	rows []types.Row
}

func (p *recordingProcessor) AddRow(ctx context.Context, row types.Row) error {
	p.rows = append(p.rows, row)
	return nil
}

func (p *recordingProcessor) Close(ctx context.Context) error {
	return nil
}

var _ middlewares.Processor = (*recordingProcessor)(nil)

func rowValue(t *testing.T, row types.Row, field string) interface{} {
	t.Helper()
	v, ok := row.Get(field)
	require.True(t, ok, "missing field %s", field)
	return v
}

func TestHistoryRows(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Submit(context.Background(), "hello there")
	require.NoError(t, err)

	gp := &recordingProcessor{}
	require.NoError(t, addHistoryRows(context.Background(), gp, m))

	require.Len(t, gp.rows, 3)
	assert.Equal(t, "system", rowValue(t, gp.rows[0], "role"))
	assert.Equal(t, "user", rowValue(t, gp.rows[1], "role"))
	assert.Equal(t, "hello there", rowValue(t, gp.rows[1], "content"))
	assert.Equal(t, 2, rowValue(t, gp.rows[2], "index"))

	total := 0
	for _, row := range gp.rows {
		total += rowValue(t, row, "tokens").(int)
	}
	assert.Equal(t, m.TotalTokens(), total)
}

func TestPersonaRows(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.SetPersona(conversation.PersonaSassy))

	gp := &recordingProcessor{}
	require.NoError(t, addPersonaRows(context.Background(), gp, m))

	require.Len(t, gp.rows, len(m.Personas()))
	active := []interface{}{}
	for _, row := range gp.rows {
		if rowValue(t, row, "active").(bool) {
			active = append(active, rowValue(t, row, "name"))
		}
	}
	assert.Equal(t, []interface{}{"sassy"}, active)
}

func TestUsageRow(t *testing.T) {
	m := newTestManager(t)

	gp := &recordingProcessor{}
	require.NoError(t, addUsageRow(context.Background(), gp, m))

	require.Len(t, gp.rows, 1)
	assert.Equal(t, m.TotalTokens(), rowValue(t, gp.rows[0], "tokens"))
	assert.Equal(t, 1280, rowValue(t, gp.rows[0], "budget"))
	assert.Equal(t, 1, rowValue(t, gp.rows[0], "messages"))
	assert.Equal(t, "concise", rowValue(t, gp.rows[0], "persona"))
}

func TestWriteTokenCount(t *testing.T) {
	s := (&settings.Settings{Model: "gpt-4"}).WithDefaults()
	var out bytes.Buffer

	require.NoError(t, writeTokenCount(&out, s, "hello world"))
	assert.Equal(t, "Model: gpt-4\nTokenizer: tiktoken-go\nTotal tokens: 2\n", out.String())

	s.Tokenizer = "sentencepiece"
	require.Error(t, writeTokenCount(&out, s, "hello world"))
}

func TestEnsureEventLogLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	ensureEventLogLevel()
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	ensureEventLogLevel()
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestGlazedCommandsBuild(t *testing.T) {
	for _, build := range []func() *cobra.Command{
		NewHistoryCommand,
		NewPersonaCommand,
		NewTokensCommand,
	} {
		cmd := build()
		assert.NotEmpty(t, cmd.Commands())
	}
}

func TestEOFReader(t *testing.T) {
	r := &eofReader{Reader: strings.NewReader("abc")}
	buf := make([]byte, 10)
	_, _ = r.Read(buf)
	_, _ = r.Read(buf)
	assert.True(t, r.EOF())
}
