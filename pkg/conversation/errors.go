package conversation

import (
	"fmt"
	"strings"

	"github.com/go-go-golems/parley/pkg/store"
	"github.com/pkg/errors"
)

var (
	ErrEmptyMessage = errors.New("custom message cannot be empty")
	ErrEmptyPrompt  = errors.New("prompt cannot be empty")
)

// UnknownPersonaError is returned by SetPersona for names missing from the
// persona table. The history is left unchanged.
type UnknownPersonaError struct {
	Name      PersonaName
	Available []PersonaName
}

func (e *UnknownPersonaError) Error() string {
	names := make([]string, 0, len(e.Available))
	for _, n := range e.Available {
		names = append(names, string(n))
	}
	return fmt.Sprintf("unknown persona: %s. Available personas are: %s", e.Name, strings.Join(names, ", "))
}

// StorageReadError wraps a failure to load the persisted history. The manager
// has already fallen back to a fresh history when it is returned.
type StorageReadError struct {
	Path string
	Err  error
}

func (e *StorageReadError) Error() string {
	return fmt.Sprintf("could not load history from %s: %v", e.Path, e.Err)
}

func (e *StorageReadError) Unwrap() error { return e.Err }

// Corrupt is true when the file existed but could not be parsed.
func (e *StorageReadError) Corrupt() bool {
	var c *store.CorruptError
	return errors.As(e.Err, &c)
}

// StorageWriteError wraps a failure to persist the history. The in-memory
// history is unaffected.
type StorageWriteError struct {
	Path string
	Err  error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("could not save history to %s: %v", e.Path, e.Err)
}

func (e *StorageWriteError) Unwrap() error { return e.Err }

// CompletionError means no response was produced. The prompt that triggered
// it stays in the history.
type CompletionError struct {
	Model string
	Err   error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("error generating completion with %s: %v", e.Model, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }
