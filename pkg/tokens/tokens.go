// Package tokens counts tokens for a model the way the model's tokenizer would.
//
// Counters never fail: an unrecognized model falls back to the cl100k_base
// encoding, and an encoding error degrades to a character based estimate.
package tokens

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
)

// Counter maps a text to its token count under the encoding of model.
type Counter interface {
	Count(model string, text string) int
}

type Backend string

const (
	BackendTiktokenGo Backend = "tiktoken-go"
	BackendWeaviate   Backend = "weaviate"

	DefaultBackend = BackendTiktokenGo

	// FallbackEncoding is used for models the tokenizer does not know.
	FallbackEncoding = "cl100k_base"
)

func Backends() []Backend {
	return []Backend{BackendTiktokenGo, BackendWeaviate}
}

func IsKnownBackend(b Backend) bool {
	for _, b_ := range Backends() {
		if b_ == b {
			return true
		}
	}
	return false
}

func NewCounter(backend Backend) (Counter, error) {
	switch backend {
	case "", BackendTiktokenGo:
		return NewTiktokenCounter(), nil
	case BackendWeaviate:
		return NewWeaviateCounter(), nil
	default:
		return nil, errors.Errorf("unknown tokenizer backend %q", backend)
	}
}

// estimate is the last resort when no codec can encode the text.
func estimate(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}

// TiktokenCounter counts with github.com/tiktoken-go/tokenizer.
type TiktokenCounter struct {
	mu     sync.Mutex
	codecs map[string]tokenizer.Codec
}

var _ Counter = (*TiktokenCounter)(nil)

func NewTiktokenCounter() *TiktokenCounter {
	return &TiktokenCounter{
		codecs: map[string]tokenizer.Codec{},
	}
}

func (t *TiktokenCounter) codec(model string) (tokenizer.Codec, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.codecs[model]; ok {
		return c, nil
	}

	c, err := tokenizer.ForModel(tokenizer.Model(model))
	if err != nil {
		log.Debug().Str("model", model).Str("encoding", FallbackEncoding).
			Msg("Model unknown to tokenizer, using fallback encoding")
		c, err = tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			return nil, errors.Wrap(err, "could not load fallback encoding")
		}
	}
	t.codecs[model] = c
	return c, nil
}

func (t *TiktokenCounter) Count(model string, text string) int {
	if text == "" {
		return 0
	}
	c, err := t.codec(model)
	if err != nil {
		log.Warn().Err(err).Str("model", model).Msg("No codec available, estimating token count")
		return estimate(text)
	}
	ids, _, err := c.Encode(text)
	if err != nil {
		log.Warn().Err(err).Str("model", model).Str("codec", c.GetName()).
			Msg("Could not encode text, estimating token count")
		return estimate(text)
	}
	return len(ids)
}

// EncodingName reports which encoding is used for model.
func (t *TiktokenCounter) EncodingName(model string) string {
	c, err := t.codec(model)
	if err != nil {
		return ""
	}
	return c.GetName()
}
