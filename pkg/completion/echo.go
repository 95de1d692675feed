package completion

import (
	"context"

	"github.com/pkg/errors"
)

// EchoCompleter replies with the content of the last message. It needs no
// network access and is used for offline runs and tests.
type EchoCompleter struct {
	Prefix string
}

func (e *EchoCompleter) Complete(ctx context.Context, req *Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(req.Messages) == 0 {
		return "", errors.New("no input")
	}
	return e.Prefix + req.Messages[len(req.Messages)-1].Content, nil
}
