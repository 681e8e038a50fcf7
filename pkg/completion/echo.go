package completion

import (
	"context"

	"github.com/go-go-golems/parley/pkg/chat"
	"github.com/pkg/errors"
)

// EchoClient answers with the last user message. It is used for offline runs
// and tests.
type EchoClient struct {
	Prefix string
}

var _ Client = (*EchoClient)(nil)

func NewEchoClient() *EchoClient {
	return &EchoClient{}
}

func (e *EchoClient) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == chat.RoleUser {
			return e.Prefix + req.Messages[i].Content, nil
		}
	}
	return "", errors.New("no user message to echo")
}
