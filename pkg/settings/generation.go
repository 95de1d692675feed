package settings

import (
	_ "embed"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	MinTemperature = 0.0
	MaxTemperature = 1.0
	MinTopP        = 0.0
	MaxTopP        = 1.0
	MinMaxTokens   = 1
	MaxMaxTokens   = 2048
	MinPenalty     = -2.0
	MaxPenalty     = 2.0
)

var ErrInvalidParams = errors.New("invalid generation parameters")

// GenerationParams are the sampling parameters stored with every conversation.
//
// MaxContextTokens is the truncation budget and is stored net of MaxTokens:
// a 4096 token window with 512 reserved for the reply gives 3584.
type GenerationParams struct {
	Temperature      float64 `json:"temperature" yaml:"temperature"`
	TopP             float64 `json:"top_p" yaml:"top_p"`
	MaxTokens        int     `json:"max_tokens" yaml:"max_tokens"`
	MaxContextTokens int     `json:"max_context_tokens" yaml:"max_context_tokens"`
	FrequencyPenalty float64 `json:"frequency_penalty" yaml:"frequency_penalty"`
	PresencePenalty  float64 `json:"presence_penalty" yaml:"presence_penalty"`
}

// Defaults are the values a new conversation starts with.
type Defaults struct {
	Model  string
	Params GenerationParams
}

//go:embed "flags/generation.yaml"
var generationYAML []byte

type generationDefaults struct {
	Model            string  `yaml:"model"`
	Temperature      float64 `yaml:"temperature"`
	TopP             float64 `yaml:"top_p"`
	MaxTokens        int     `yaml:"max_tokens"`
	MaxContextTokens int     `yaml:"max_context_tokens"`
	FrequencyPenalty float64 `yaml:"frequency_penalty"`
	PresencePenalty  float64 `yaml:"presence_penalty"`
}

// NewDefaults parses the embedded defaults. The context window from the file
// is converted into the net budget.
func NewDefaults() (*Defaults, error) {
	var d generationDefaults
	if err := yaml.Unmarshal(generationYAML, &d); err != nil {
		return nil, errors.Wrap(err, "could not parse generation defaults")
	}

	p := GenerationParams{
		Temperature:      d.Temperature,
		TopP:             d.TopP,
		MaxTokens:        d.MaxTokens,
		FrequencyPenalty: d.FrequencyPenalty,
		PresencePenalty:  d.PresencePenalty,
	}
	p.SetContextWindow(d.MaxContextTokens)

	return &Defaults{Model: d.Model, Params: p}, nil
}

// DefaultGenerationParams is NewDefaults without the error, for callers that
// only need the parameters. The embedded file is part of the binary, so a
// parse error is a programming error.
func DefaultGenerationParams() GenerationParams {
	d, err := NewDefaults()
	if err != nil {
		panic(err)
	}
	return d.Params
}

// SetContextWindow sets the truncation budget from a gross window size.
func (p *GenerationParams) SetContextWindow(window int) {
	p.MaxContextTokens = window - p.MaxTokens
}

// ContextWindow returns the gross window size the budget was derived from.
func (p GenerationParams) ContextWindow() int {
	return p.MaxContextTokens + p.MaxTokens
}

func (p GenerationParams) Clone() GenerationParams {
	return clone.Clone(p).(GenerationParams)
}

// Validate checks the documented ranges. The budget may not exceed the
// model's window minus the reply reservation.
func (p GenerationParams) Validate(model string) error {
	window := ContextWindowFor(model)
	err := validation.ValidateStruct(&p,
		validation.Field(&p.Temperature, validation.Min(MinTemperature), validation.Max(MaxTemperature)),
		validation.Field(&p.TopP, validation.Min(MinTopP), validation.Max(MaxTopP)),
		validation.Field(&p.MaxTokens, validation.Required, validation.Min(MinMaxTokens), validation.Max(MaxMaxTokens)),
		validation.Field(&p.MaxContextTokens, validation.Required, validation.Min(1), validation.Max(window-p.MaxTokens)),
		validation.Field(&p.FrequencyPenalty, validation.Min(MinPenalty), validation.Max(MaxPenalty)),
		validation.Field(&p.PresencePenalty, validation.Min(MinPenalty), validation.Max(MaxPenalty)),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}
