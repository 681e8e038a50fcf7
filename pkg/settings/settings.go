package settings

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-go-golems/parley/pkg/tokens"
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL     = "https://api.together.xyz/v1"
	DefaultModel       = "meta-llama/Llama-3-8b-chat-hf"
	DefaultTemperature = 0.5
	DefaultMaxTokens   = 128
	DefaultTokenBudget = 1280
	DefaultHistoryFile = "conversation_history.json"
	DefaultPersona     = "concise"
	DefaultTimeout     = 60 * time.Second
)

// Settings is the explicit configuration handed to the conversation manager.
// Zero values mean "not set" and are replaced by WithDefaults. The yaml keys
// are the ones of the config file, which are also the flag names.
type Settings struct {
	APIKey      string  `yaml:"api-key,omitempty"`
	BaseURL     string  `yaml:"base-url,omitempty"`
	Model       string  `yaml:"model,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty"`
	MaxTokens   int     `yaml:"max-tokens,omitempty"`
	TokenBudget int     `yaml:"token-budget,omitempty"`
	HistoryFile string  `yaml:"history-file,omitempty"`
	Persona     string  `yaml:"persona,omitempty"`
	Tokenizer   string  `yaml:"tokenizer,omitempty"`

	Timeout time.Duration `yaml:"-"`

	// Personas adds named system messages next to the built-in ones.
	Personas map[string]string `yaml:"personas,omitempty"`
}

// UnmarshalYAML reads the timeout as a number of seconds.
func (s *Settings) UnmarshalYAML(value *yaml.Node) error {
	type Alias Settings
	aux := &struct {
		Timeout *int   `yaml:"timeout,omitempty"`
		Alias   *Alias `yaml:",inline"`
	}{
		Alias: (*Alias)(s),
	}
	if err := value.Decode(aux); err != nil {
		return err
	}
	if aux.Timeout != nil {
		s.Timeout = time.Duration(*aux.Timeout) * time.Second
	}
	return nil
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}

// WithDefaults returns a copy where every unset or falsy field carries its
// documented default.
func (s *Settings) WithDefaults() *Settings {
	ret := s.Clone()
	defaulted := []string{}

	if ret.BaseURL == "" {
		ret.BaseURL = DefaultBaseURL
		defaulted = append(defaulted, "base_url")
	}
	if ret.Model == "" {
		ret.Model = DefaultModel
		defaulted = append(defaulted, "model")
	}
	if ret.Temperature == 0 {
		ret.Temperature = DefaultTemperature
		defaulted = append(defaulted, "temperature")
	}
	if ret.MaxTokens == 0 {
		ret.MaxTokens = DefaultMaxTokens
		defaulted = append(defaulted, "max_tokens")
	}
	if ret.TokenBudget == 0 {
		ret.TokenBudget = DefaultTokenBudget
		defaulted = append(defaulted, "token_budget")
	}
	if ret.HistoryFile == "" {
		ret.HistoryFile = DefaultHistoryFile
		defaulted = append(defaulted, "history_file")
	}
	if ret.Persona == "" {
		ret.Persona = DefaultPersona
		defaulted = append(defaulted, "persona")
	}
	if ret.Tokenizer == "" {
		ret.Tokenizer = string(tokens.DefaultBackend)
		defaulted = append(defaulted, "tokenizer")
	}
	if ret.Timeout == 0 {
		ret.Timeout = DefaultTimeout
		defaulted = append(defaulted, "timeout")
	}

	if len(defaulted) > 0 {
		log.Debug().Strs("fields", defaulted).Msg("Using default settings")
	}

	return ret
}

// Validate rejects values that cannot be defaulted away.
func (s *Settings) Validate() error {
	if s.TokenBudget < 0 {
		return &ValidationError{Field: "token_budget", Reason: "must be positive"}
	}
	if s.MaxTokens < 0 {
		return &ValidationError{Field: "max_tokens", Reason: "must be positive"}
	}
	if s.Temperature < 0 || s.Temperature > 2 {
		return &ValidationError{Field: "temperature", Reason: "must be between 0 and 2"}
	}
	if s.Tokenizer != "" && !tokens.IsKnownBackend(tokens.Backend(s.Tokenizer)) {
		return &ValidationError{Field: "tokenizer", Reason: "unknown backend " + s.Tokenizer}
	}
	for name, text := range s.Personas {
		if strings.TrimSpace(name) == "" {
			return &ValidationError{Field: "personas", Reason: "persona name cannot be empty"}
		}
		if strings.TrimSpace(text) == "" {
			return &ValidationError{Field: "personas." + name, Reason: "system message cannot be empty"}
		}
	}
	return nil
}

// FromViper builds settings from a viper instance. Keys use the CLI flag
// names (api-key, base-url, ...). The result is not defaulted.
func FromViper(v *viper.Viper) (*Settings, error) {
	s := &Settings{
		APIKey:      v.GetString("api-key"),
		BaseURL:     v.GetString("base-url"),
		Model:       v.GetString("model"),
		Temperature: v.GetFloat64("temperature"),
		MaxTokens:   v.GetInt("max-tokens"),
		TokenBudget: v.GetInt("token-budget"),
		HistoryFile: v.GetString("history-file"),
		Persona:     v.GetString("persona"),
		Tokenizer:   v.GetString("tokenizer"),
	}
	if v.IsSet("timeout") {
		s.Timeout = time.Duration(v.GetInt("timeout")) * time.Second
	}
	if v.IsSet("personas") {
		s.Personas = v.GetStringMapString("personas")
	}
	// viper lowercases map keys, so persona names are taken from the file
	// itself when it can be decoded here.
	if configFile := v.ConfigFileUsed(); isYAMLFile(configFile) {
		fileSettings, err := LoadFile(configFile)
		if err != nil {
			return nil, err
		}
		if fileSettings.Personas != nil {
			s.Personas = fileSettings.Personas
		}
	}

	if err := s.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid settings")
	}
	return s, nil
}

func isYAMLFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	default:
		return false
	}
}

// LoadFile decodes a config file. JSON files are read as YAML.
func LoadFile(path string) (*Settings, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read config file %s", path)
	}
	s := &Settings{}
	if err := yaml.Unmarshal(b, s); err != nil {
		return nil, errors.Wrapf(err, "could not parse config file %s", path)
	}
	return s, nil
}

// ValidationError reports an invalid configuration value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}
