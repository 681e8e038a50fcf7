package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-go-golems/parley/pkg/chat"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleHistory() chat.History {
	return chat.History{
		chat.NewSystemMessage("You are a straightforward and concise assistant who is always ready to help."),
		chat.NewUserMessage("What is <b>2+2</b>?"),
		chat.NewAssistantMessage("4\n\nAnything else?"),
	}
}

func TestNewFileStorePicksFormat(t *testing.T) {
	s, err := NewFileStore("history.json")
	require.NoError(t, err)
	assert.IsType(t, &JSONFileStore{}, s)

	s, err = NewFileStore("history.YML")
	require.NoError(t, err)
	assert.IsType(t, &YAMLFileStore{}, s)

	s, err = NewFileStore("history")
	require.NoError(t, err)
	assert.IsType(t, &JSONFileStore{}, s)

	_, err = NewFileStore("")
	require.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	for _, name := range []string{"history.json", "history.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			s, err := NewFileStore(path)
			require.NoError(t, err)

			h := sampleHistory()
			require.NoError(t, s.Save(h))

			loaded, err := s.Load()
			require.NoError(t, err)
			assert.Equal(t, h, loaded)

			_, err = os.Stat(path + ".tmp")
			assert.True(t, os.IsNotExist(err))
		})
	}
}

func TestSaveOverwritesWholesale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	s := NewJSONFileStore(path)

	require.NoError(t, s.Save(sampleHistory()))
	short := chat.History{chat.NewSystemMessage("only")}
	require.NoError(t, s.Save(short))

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, short, loaded)
}

func TestJSONIsHumanReadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	s := NewJSONFileStore(path)
	require.NoError(t, s.Save(sampleHistory()))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(b)
	assert.Contains(t, content, "\"role\": \"system\"")
	assert.Contains(t, content, "\"content\": \"What is <b>2+2</b>?\"")
	assert.True(t, strings.HasPrefix(content, "[\n    {"))
}

func TestLoadMissingFile(t *testing.T) {
	for _, name := range []string{"missing.json", "missing.yaml"} {
		s, err := NewFileStore(filepath.Join(t.TempDir(), name))
		require.NoError(t, err)
		_, err = s.Load()
		require.ErrorIs(t, err, ErrNotFound)
	}
}

func TestLoadCorruptJSON(t *testing.T) {
	cases := map[string]string{
		"not json":     "{{{ definitely not json",
		"null":         "null",
		"object":       `{"role": "user", "content": "hi"}`,
		"bad role":     `[{"role": "wizard", "content": "hi"}]`,
		"missing role": `[{"content": "hi"}]`,
		"late system":  `[{"role": "user", "content": "hi"}, {"role": "system", "content": "late"}]`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "history.json")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

			_, err := NewJSONFileStore(path).Load()
			require.Error(t, err)
			var corrupt *CorruptError
			require.True(t, errors.As(err, &corrupt), "expected CorruptError, got %v", err)
			assert.Equal(t, path, corrupt.Path)
			assert.False(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestLoadJSONToleratesExtraFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	content := `[{"role": "system", "content": "sys", "name": "bot"}]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	loaded, err := NewJSONFileStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, chat.History{chat.NewSystemMessage("sys")}, loaded)
}

func TestLoadEmptyJSONArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, []byte("[]"), 0o644))

	loaded, err := NewJSONFileStore(path).Load()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestLoadCorruptYAML(t *testing.T) {
	cases := map[string]string{
		"not yaml":        "- role: [unterminated\n",
		"mapping":         "role: user\ncontent: hi\n",
		"missing content": "- role: user\n",
		"missing role":    "- content: hi\n",
		"bad role":        "- role: wizard\n  content: hi\n",
		"late system":     "- role: user\n  content: hi\n- role: system\n  content: late\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "history.yaml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

			_, err := NewYAMLFileStore(path).Load()
			var corrupt *CorruptError
			require.True(t, errors.As(err, &corrupt), "expected CorruptError, got %v", err)
			assert.Equal(t, path, corrupt.Path)
		})
	}
}

func TestLoadYAMLToleratesExtraFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.yaml")
	content := "- role: system\n  content: sys\n  name: bot\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	loaded, err := NewYAMLFileStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, chat.History{chat.NewSystemMessage("sys")}, loaded)
}

func TestLoadEmptyYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.yaml")
	require.NoError(t, os.WriteFile(path, []byte("\n"), 0o644))

	loaded, err := NewYAMLFileStore(path).Load()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestSaveFailureReportsError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	s := NewJSONFileStore(filepath.Join(blocker, "history.json"))
	require.Error(t, s.Save(sampleHistory()))
}

func TestHistorySchema(t *testing.T) {
	b, err := HistorySchema()
	require.NoError(t, err)
	s := string(b)
	assert.Contains(t, s, `"type": "array"`)
	assert.Contains(t, s, `"assistant"`)
	assert.NotContains(t, s, "$schema")
}
