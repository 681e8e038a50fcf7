package conversation

import (
	"context"
	"strings"

	"github.com/go-go-golems/parley/pkg/chat"
	"github.com/go-go-golems/parley/pkg/completion"
	"github.com/go-go-golems/parley/pkg/events"
	"github.com/go-go-golems/parley/pkg/settings"
	"github.com/go-go-golems/parley/pkg/store"
	"github.com/go-go-golems/parley/pkg/tokens"
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// MessageOverhead approximates the framing cost of a single message in the
// chat completion protocol.
const MessageOverhead = 4

type ManagerImpl struct {
	settings *settings.Settings
	client   completion.Client
	counter  tokens.Counter
	store    store.Store
	sink     events.Sink

	personas      *Personas
	activePersona PersonaName
	systemMessage string

	history chat.History

	// loadErr is the failure encountered while loading at construction time.
	loadErr error
}

var _ Manager = (*ManagerImpl)(nil)

type ManagerOption func(*ManagerImpl)

func WithEventSink(sink events.Sink) ManagerOption {
	return func(m *ManagerImpl) {
		m.sink = sink
	}
}

// NewManager builds a manager from already defaulted settings and loads the
// persisted history. Load failures never fail construction: the manager
// starts with a fresh history and LoadError reports what went wrong.
func NewManager(
	s *settings.Settings,
	client completion.Client,
	counter tokens.Counter,
	st store.Store,
	options ...ManagerOption,
) (*ManagerImpl, error) {
	if s == nil {
		return nil, errors.New("settings are required")
	}
	if client == nil {
		return nil, errors.New("completion client is required")
	}
	if counter == nil {
		return nil, errors.New("token counter is required")
	}
	if st == nil {
		return nil, errors.New("history store is required")
	}
	if s.TokenBudget <= 0 {
		return nil, errors.Errorf("token budget must be positive, got %d", s.TokenBudget)
	}

	personas, err := NewPersonas(s.Personas)
	if err != nil {
		return nil, err
	}

	persona := PersonaName(s.Persona)
	if persona == "" {
		persona = DefaultPersona
	}
	systemMessage, ok := personas.Get(persona)
	if !ok {
		return nil, &UnknownPersonaError{Name: persona, Available: personas.Names()}
	}

	m := &ManagerImpl{
		settings:      s.Clone(),
		client:        client,
		counter:       counter,
		store:         st,
		sink:          events.NullSink{},
		personas:      personas,
		activePersona: persona,
		systemMessage: systemMessage,
	}
	for _, option := range options {
		option(m)
	}

	m.history, m.loadErr = m.Load()

	log.Debug().
		Str("history_file", st.Path()).
		Str("persona", string(persona)).
		Int("messages", len(m.history)).
		Int("token_budget", s.TokenBudget).
		Msg("Conversation manager initialized")

	return m, nil
}

// LoadError returns the error that made construction fall back to a fresh
// history, or nil.
func (m *ManagerImpl) LoadError() error {
	return m.loadErr
}

type submitOptions struct {
	temperature *float64
	maxTokens   *int
}

type SubmitOption func(*submitOptions)

// WithTemperature overrides the configured temperature for one call.
func WithTemperature(temperature float64) SubmitOption {
	return func(o *submitOptions) {
		o.temperature = &temperature
	}
}

// WithMaxTokens overrides the configured response cap for one call.
func WithMaxTokens(maxTokens int) SubmitOption {
	return func(o *submitOptions) {
		o.maxTokens = &maxTokens
	}
}

// Submit appends prompt to the history, trims the history to the token
// budget, asks the completion client for a reply and persists the result.
//
// A failed completion returns a *CompletionError and keeps the prompt in the
// history. If the reply was produced but could not be saved, the reply is
// returned together with a *StorageWriteError.
func (m *ManagerImpl) Submit(ctx context.Context, prompt string, options ...SubmitOption) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	opts := &submitOptions{}
	for _, option := range options {
		option(opts)
	}
	temperature := m.settings.Temperature
	if opts.temperature != nil {
		temperature = *opts.temperature
	}
	maxTokens := m.settings.MaxTokens
	if opts.maxTokens != nil {
		maxTokens = *opts.maxTokens
	}

	m.history = append(m.history, chat.NewUserMessage(prompt))
	events.PublishBlind(m.sink, events.Event{
		Type:    events.EventTypePrompt,
		Role:    string(chat.RoleUser),
		Content: prompt,
	})

	m.EnforceBudget()

	text, err := m.client.Complete(ctx, completion.Request{
		Model:       m.settings.Model,
		Messages:    m.history.Copy(),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		log.Warn().Err(err).Str("model", m.settings.Model).Msg("Completion failed, no response produced")
		events.PublishBlind(m.sink, events.Event{
			Type:  events.EventTypeCompletionError,
			Error: err.Error(),
		})
		return "", &CompletionError{Model: m.settings.Model, Err: err}
	}

	m.history = append(m.history, chat.NewAssistantMessage(text))
	events.PublishBlind(m.sink, events.Event{
		Type:    events.EventTypeResponse,
		Role:    string(chat.RoleAssistant),
		Content: text,
		Tokens:  m.TotalTokens(),
	})

	if err := m.Save(); err != nil {
		return text, err
	}
	return text, nil
}

// EnforceBudget drops the oldest non-system message until the history fits
// the token budget or only the system message is left. It returns the number
// of dropped messages.
func (m *ManagerImpl) EnforceBudget() int {
	evicted := 0
	total := m.TotalTokens()
	for total > m.settings.TokenBudget && len(m.history) > 1 {
		m.history = append(m.history[:1], m.history[2:]...)
		evicted++
		total = m.TotalTokens()
	}

	if evicted > 0 {
		log.Debug().
			Int("evicted", evicted).
			Int("total_tokens", total).
			Int("token_budget", m.settings.TokenBudget).
			Msg("Evicted messages to satisfy token budget")
		events.PublishBlind(m.sink, events.Event{
			Type:    events.EventTypeEvicted,
			Evicted: evicted,
			Tokens:  total,
		})
	}
	if total > m.settings.TokenBudget {
		log.Debug().
			Int("total_tokens", total).
			Int("token_budget", m.settings.TokenBudget).
			Msg("Remaining messages exceed the token budget on their own")
	}

	return evicted
}

// TotalTokens counts every message plus a fixed per-message overhead.
func (m *ManagerImpl) TotalTokens() int {
	total := 0
	for _, msg := range m.history {
		total += m.CountTokens(msg.Content) + MessageOverhead
	}
	return total
}

func (m *ManagerImpl) CountTokens(text string) int {
	return m.counter.Count(m.settings.Model, text)
}

// SetPersona makes name the active persona and rewrites the system message.
func (m *ManagerImpl) SetPersona(name PersonaName) error {
	text, ok := m.personas.Get(name)
	if !ok {
		return &UnknownPersonaError{Name: name, Available: m.personas.Names()}
	}
	m.activePersona = name
	m.systemMessage = text
	m.SyncSystemMessage()

	events.PublishBlind(m.sink, events.Event{
		Type:    events.EventTypePersona,
		Persona: string(name),
		Content: text,
	})
	return nil
}

// SetCustomMessage stores text as the custom persona and activates it.
func (m *ManagerImpl) SetCustomMessage(text string) error {
	if err := m.personas.SetCustom(text); err != nil {
		return err
	}
	return m.SetPersona(PersonaCustom)
}

// SyncSystemMessage makes sure index 0 holds the active system message.
func (m *ManagerImpl) SyncSystemMessage() {
	if m.history.HasSystemMessage() {
		m.history[0].Content = m.systemMessage
		return
	}
	m.history = append(chat.History{chat.NewSystemMessage(m.systemMessage)}, m.history...)
}

func (m *ManagerImpl) freshHistory() chat.History {
	return chat.History{chat.NewSystemMessage(m.systemMessage)}
}

// Load reads the persisted history. A missing file yields a fresh history
// and no error. Any other failure yields a fresh history and a
// *StorageReadError.
func (m *ManagerImpl) Load() (chat.History, error) {
	history, err := m.store.Load()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Debug().Str("history_file", m.store.Path()).Msg("No history file, starting fresh")
			return m.freshHistory(), nil
		}

		readErr := &StorageReadError{Path: m.store.Path(), Err: err}
		if readErr.Corrupt() {
			log.Warn().Err(err).Str("history_file", m.store.Path()).
				Msg("Error reading the conversation history file. Starting with an initial history.")
		} else {
			log.Error().Err(err).Str("history_file", m.store.Path()).
				Msg("Could not read the conversation history file. Starting with an initial history.")
		}
		events.PublishBlind(m.sink, events.Event{
			Type:  events.EventTypeLoadError,
			Error: readErr.Error(),
		})
		return m.freshHistory(), readErr
	}

	if len(history) == 0 {
		return m.freshHistory(), nil
	}
	if !history.HasSystemMessage() {
		history = append(chat.History{chat.NewSystemMessage(m.systemMessage)}, history...)
	}
	return history, nil
}

// Save writes the whole history to the store.
func (m *ManagerImpl) Save() error {
	if err := m.store.Save(m.history.Copy()); err != nil {
		writeErr := &StorageWriteError{Path: m.store.Path(), Err: err}
		log.Error().Err(err).Str("history_file", m.store.Path()).
			Msg("A file operation error occurred while saving the conversation history")
		events.PublishBlind(m.sink, events.Event{
			Type:  events.EventTypeSaveError,
			Error: writeErr.Error(),
		})
		return writeErr
	}
	return nil
}

// Reset drops everything but the active system message and saves.
func (m *ManagerImpl) Reset() error {
	m.history = m.freshHistory()
	events.PublishBlind(m.sink, events.Event{
		Type:    events.EventTypeReset,
		Persona: string(m.activePersona),
	})
	return m.Save()
}

// History returns a deep copy of the current history.
func (m *ManagerImpl) History() chat.History {
	return clone.Clone(m.history).(chat.History)
}

func (m *ManagerImpl) Personas() []PersonaName {
	return m.personas.Names()
}

// PersonaText returns the system message of a persona.
func (m *ManagerImpl) PersonaText(name PersonaName) (string, bool) {
	return m.personas.Get(name)
}

func (m *ManagerImpl) ActivePersona() PersonaName {
	return m.activePersona
}

func (m *ManagerImpl) SystemMessage() string {
	return m.systemMessage
}

func (m *ManagerImpl) Settings() *settings.Settings {
	return m.settings.Clone()
}
