package tokens

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/weaviate/tiktoken-go"
)

// WeaviateCounter counts with the github.com/weaviate/tiktoken-go port.
// The port downloads its BPE ranks on first use, so a model whose encoding
// cannot be loaded is remembered and estimated from then on instead of
// retrying the download on every count.
type WeaviateCounter struct {
	mu          sync.Mutex
	encodings   map[string]*tiktoken.Tiktoken
	unavailable map[string]error
	load        func(model string) (*tiktoken.Tiktoken, error)
}

var _ Counter = (*WeaviateCounter)(nil)

func NewWeaviateCounter() *WeaviateCounter {
	return &WeaviateCounter{
		encodings:   map[string]*tiktoken.Tiktoken{},
		unavailable: map[string]error{},
		load:        loadWeaviateEncoding,
	}
}

func loadWeaviateEncoding(model string) (*tiktoken.Tiktoken, error) {
	e, err := tiktoken.EncodingForModel(model)
	if err == nil {
		return e, nil
	}
	log.Debug().Err(err).Str("model", model).Str("encoding", FallbackEncoding).
		Msg("Could not load model encoding, using fallback encoding")
	e, err = tiktoken.GetEncoding(FallbackEncoding)
	if err != nil {
		return nil, errors.Wrap(err, "could not load fallback encoding")
	}
	return e, nil
}

func (w *WeaviateCounter) encoding(model string) (*tiktoken.Tiktoken, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if e, ok := w.encodings[model]; ok {
		return e, nil
	}
	if err, ok := w.unavailable[model]; ok {
		return nil, err
	}

	e, err := w.load(model)
	if err != nil {
		log.Warn().Err(err).Str("model", model).Msg("No encoding available, estimating token counts")
		w.unavailable[model] = err
		return nil, err
	}
	w.encodings[model] = e
	return e, nil
}

func (w *WeaviateCounter) Count(model string, text string) int {
	if text == "" {
		return 0
	}
	e, err := w.encoding(model)
	if err != nil {
		return estimate(text)
	}
	return len(e.Encode(text, nil, nil))
}
