package store

import (
	"bytes"

	"github.com/go-go-golems/parley/pkg/chat"
	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// YAMLFileStore keeps the history as a YAML sequence of role/content maps.
type YAMLFileStore struct {
	path string
}

var _ Store = (*YAMLFileStore)(nil)

func NewYAMLFileStore(path string) *YAMLFileStore {
	return &YAMLFileStore{path: path}
}

func (s *YAMLFileStore) Path() string {
	return s.path
}

func (s *YAMLFileStore) Load() (chat.History, error) {
	b, err := readFile(s.path)
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(b)) == 0 {
		return chat.History{}, nil
	}

	var node yaml.Node
	if err := yaml.Unmarshal(b, &node); err != nil {
		return nil, &CorruptError{Path: s.path, Err: err}
	}

	// The document is checked against the same schema as the JSON store.
	var document interface{}
	if err := node.Decode(&document); err != nil {
		return nil, &CorruptError{Path: s.path, Err: err}
	}
	if err := validateHistory(gojsonschema.NewGoLoader(document)); err != nil {
		return nil, &CorruptError{Path: s.path, Err: err}
	}

	var history chat.History
	if err := node.Decode(&history); err != nil {
		return nil, &CorruptError{Path: s.path, Err: err}
	}
	if err := checkHistory(s.path, history); err != nil {
		return nil, err
	}
	return history, nil
}

func (s *YAMLFileStore) Save(history chat.History) error {
	if history == nil {
		history = chat.History{}
	}
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(history); err != nil {
		return errors.Wrap(err, "could not encode history")
	}
	if err := encoder.Close(); err != nil {
		return errors.Wrap(err, "could not encode history")
	}
	return writeFile(s.path, buf.Bytes())
}
