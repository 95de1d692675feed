package tokens

import (
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
	"github.com/weaviate/tiktoken-go"
)

const (
	// EncodingEstimate selects the character heuristic instead of a BPE codec.
	EncodingEstimate = "estimate"
	// DefaultFallbackEncoding is used for models no codec knows about.
	DefaultFallbackEncoding = "cl100k_base"
)

type codecCounter struct {
	codec    tokenizer.Codec
	encoding string
}

func (c *codecCounter) Count(text string) (int, error) {
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return 0, &EncodingFailure{Encoding: c.encoding, Err: err}
	}
	return len(ids), nil
}

type tiktokenCounter struct {
	tk       *tiktoken.Tiktoken
	encoding string
}

func (c *tiktokenCounter) Count(text string) (int, error) {
	return len(c.tk.Encode(text, nil, nil)), nil
}

// estimateCounter uses the ~4 characters per token rule of thumb. It is only
// meant for models whose tokenizer is unknown.
type estimateCounter struct{}

func (estimateCounter) Count(text string) (int, error) {
	if len(text) == 0 {
		return 0, nil
	}
	return (len(text) + 3) / 4, nil
}

// Estimate returns the heuristic counter.
func Estimate() Counter {
	return estimateCounter{}
}

// DefaultEncoding returns the encoding name the OpenAI models use.
func DefaultEncoding(model string) string {
	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"):
		return "o200k_base"
	case strings.HasPrefix(model, "gpt-4"),
		strings.HasPrefix(model, "gpt-3.5-turbo"),
		strings.HasPrefix(model, "text-embedding-ada-002"):
		return "cl100k_base"
	case strings.HasPrefix(model, "text-davinci-002"), strings.HasPrefix(model, "text-davinci-003"):
		return "p50k_base"
	default:
		return "r50k_base"
	}
}

// ForEncoding returns a counter for an encoding name such as cl100k_base.
func ForEncoding(encoding string) (Counter, error) {
	if encoding == EncodingEstimate {
		return Estimate(), nil
	}
	if codec, err := tokenizer.Get(tokenizer.Encoding(encoding)); err == nil {
		return &codecCounter{codec: codec, encoding: encoding}, nil
	}
	tk, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, &EncodingFailure{Encoding: encoding, Err: err}
	}
	return &tiktokenCounter{tk: tk, encoding: encoding}, nil
}

// NewResolver builds a caching Resolver. Models are looked up in the
// tiktoken-go/tokenizer tables first and in the weaviate tiktoken tables
// second; unknown models use fallback, and fail when fallback is empty.
func NewResolver(fallback string) Resolver {
	var mu sync.Mutex
	cache := map[string]Counter{}

	return func(model string) (Counter, error) {
		mu.Lock()
		defer mu.Unlock()

		if c, ok := cache[model]; ok {
			return c, nil
		}

		c, err := resolve(model, fallback)
		if err != nil {
			return nil, err
		}
		cache[model] = c
		return c, nil
	}
}

func resolve(model string, fallback string) (Counter, error) {
	if codec, err := tokenizer.ForModel(tokenizer.Model(model)); err == nil {
		return &codecCounter{codec: codec, encoding: DefaultEncoding(model)}, nil
	}
	if tk, err := tiktoken.EncodingForModel(model); err == nil {
		return &tiktokenCounter{tk: tk, encoding: DefaultEncoding(model)}, nil
	}

	if fallback == "" {
		return nil, &EncodingFailure{Model: model, Err: ErrUnknownModel}
	}

	log.Warn().
		Str("model", model).
		Str("fallback", fallback).
		Msg("No tokenizer known for model, using fallback encoding")

	c, err := ForEncoding(fallback)
	if err != nil {
		return nil, &EncodingFailure{Model: model, Encoding: fallback, Err: err}
	}
	return c, nil
}

var defaultResolver = NewResolver(DefaultFallbackEncoding)

// ForModel resolves a counter with the default fallback encoding.
func ForModel(model string) (Counter, error) {
	return defaultResolver(model)
}
