// Package tokens turns message text into token counts for a given model.
//
// The conversation tree never talks to a tokenizer library directly. It asks a
// Resolver for a Counter bound to the conversation's model and keeps that
// counter until the model changes. Counters are backed by tiktoken codecs when
// the model is known, and by a configurable fallback encoding otherwise.
package tokens

import (
	"fmt"

	"github.com/pkg/errors"
)

// Overhead is the fixed per-message cost added on top of the encoded content,
// modelling the framing of a chat message on the wire.
const Overhead = 5

// Counter counts the tokens of a text for one specific encoding.
type Counter interface {
	Count(text string) (int, error)
}

// CounterFunc adapts a plain function to the Counter interface.
type CounterFunc func(text string) (int, error)

func (f CounterFunc) Count(text string) (int, error) {
	return f(text)
}

// Resolver returns the Counter to use for a model identifier.
type Resolver func(model string) (Counter, error)

// MessageTokens returns the cost of a message: encoded content plus Overhead.
func MessageTokens(c Counter, content string) (int, error) {
	if c == nil {
		return 0, &EncodingFailure{Err: errors.New("no tokenizer bound")}
	}
	n, err := c.Count(content)
	if err != nil {
		return 0, err
	}
	return n + Overhead, nil
}

var ErrUnknownModel = errors.New("no encoding known for model")

// EncodingFailure is returned when text cannot be encoded for a model or
// when no encoding can be found for it.
type EncodingFailure struct {
	Model    string
	Encoding string
	Err      error
}

func (e *EncodingFailure) Error() string {
	switch {
	case e.Model != "" && e.Encoding != "":
		return fmt.Sprintf("encoding failure (model %s, encoding %s): %v", e.Model, e.Encoding, e.Err)
	case e.Model != "":
		return fmt.Sprintf("encoding failure (model %s): %v", e.Model, e.Err)
	case e.Encoding != "":
		return fmt.Sprintf("encoding failure (encoding %s): %v", e.Encoding, e.Err)
	}
	return fmt.Sprintf("encoding failure: %v", e.Err)
}

func (e *EncodingFailure) Unwrap() error {
	return e.Err
}
