package store

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"

	"github.com/go-go-golems/parley/pkg/chat"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

// JSONFileStore keeps the history as an indented JSON array of
// {"role", "content"} objects.
type JSONFileStore struct {
	path string
}

var _ Store = (*JSONFileStore)(nil)

func NewJSONFileStore(path string) *JSONFileStore {
	return &JSONFileStore{path: path}
}

func (s *JSONFileStore) Path() string {
	return s.path
}

func (s *JSONFileStore) Load() (chat.History, error) {
	b, err := readFile(s.path)
	if err != nil {
		return nil, err
	}

	if err := validateJSON(b); err != nil {
		return nil, &CorruptError{Path: s.path, Err: err}
	}

	var history chat.History
	if err := json.Unmarshal(b, &history); err != nil {
		return nil, &CorruptError{Path: s.path, Err: err}
	}
	if err := checkHistory(s.path, history); err != nil {
		return nil, err
	}
	return history, nil
}

func (s *JSONFileStore) Save(history chat.History) error {
	if history == nil {
		history = chat.History{}
	}
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetIndent("", "    ")
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(history); err != nil {
		return errors.Wrap(err, "could not encode history")
	}
	return writeFile(s.path, buf.Bytes())
}

var (
	historySchemaOnce sync.Once
	historySchema     *gojsonschema.Schema
	historySchemaErr  error
)

// HistorySchema returns the JSON schema of a persisted history.
func HistorySchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		Anonymous:                 true,
		AllowAdditionalProperties: true,
	}
	s := r.Reflect(&chat.History{})
	s.Version = ""
	return json.MarshalIndent(s, "", "  ")
}

func loadHistorySchema() (*gojsonschema.Schema, error) {
	historySchemaOnce.Do(func() {
		b, err := HistorySchema()
		if err != nil {
			historySchemaErr = errors.Wrap(err, "could not reflect history schema")
			return
		}
		historySchema, historySchemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(b))
		if historySchemaErr != nil {
			historySchemaErr = errors.Wrap(historySchemaErr, "could not compile history schema")
		}
	})
	return historySchema, historySchemaErr
}

func validateJSON(b []byte) error {
	return validateHistory(gojsonschema.NewBytesLoader(b))
}

func validateHistory(document gojsonschema.JSONLoader) error {
	schema, err := loadHistorySchema()
	if err != nil {
		return err
	}
	result, err := schema.Validate(document)
	if err != nil {
		return errors.Wrap(err, "invalid json")
	}
	if !result.Valid() {
		descriptions := []string{}
		for _, desc := range result.Errors() {
			descriptions = append(descriptions, desc.String())
		}
		return errors.Errorf("schema validation failed: %s", strings.Join(descriptions, "; "))
	}
	return nil
}
