package tokens

import (
	"os"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/weaviate/tiktoken-go"
)

// staticBpeLoader serves a small fixed vocabulary so that the weaviate
// backend never reaches the network in tests.
type staticBpeLoader struct{}

func (staticBpeLoader) LoadTiktokenBpe(string) (map[string]int, error) {
	return map[string]int{
		"hello":  0,
		" world": 1,
	}, nil
}

func TestMain(m *testing.M) {
	tiktoken.SetBpeLoader(staticBpeLoader{})
	os.Exit(m.Run())
}

func TestWeaviateCounterRemembersUnavailableEncoding(t *testing.T) {
	attempts := 0
	c := NewWeaviateCounter()
	c.load = func(model string) (*tiktoken.Tiktoken, error) {
		attempts++
		return nil, errors.New("offline")
	}

	for i := 0; i < 5; i++ {
		assert.Equal(t, estimate("hello world"), c.Count("gpt-4", "hello world"))
	}
	assert.Equal(t, 1, attempts)

	c.Count("gpt-3.5-turbo", "hello")
	assert.Equal(t, 2, attempts)
}

func TestWeaviateCounterCachesEncoding(t *testing.T) {
	attempts := 0
	c := NewWeaviateCounter()
	c.load = func(model string) (*tiktoken.Tiktoken, error) {
		attempts++
		return loadWeaviateEncoding(model)
	}

	for i := 0; i < 3; i++ {
		assert.Equal(t, 2, c.Count("gpt-4", "hello world"))
	}
	assert.Equal(t, 1, attempts)
}
