package cmds

import (
	"context"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/cmds/parameters"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	glazed_settings "github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
)

// ParamsSettings holds the requested changes. Unset flags stay nil and leave
// the corresponding value alone.
type ParamsSettings struct {
	Chat             string   `glazed.parameter:"chat"`
	Model            *string  `glazed.parameter:"model"`
	Temperature      *float64 `glazed.parameter:"temperature"`
	TopP             *float64 `glazed.parameter:"top-p"`
	MaxTokens        *int     `glazed.parameter:"max-tokens"`
	ContextWindow    *int     `glazed.parameter:"context-window"`
	FrequencyPenalty *float64 `glazed.parameter:"frequency-penalty"`
	PresencePenalty  *float64 `glazed.parameter:"presence-penalty"`
}

// ParamsCommand changes the generation parameters of a chat and emits the
// resulting values as a single row.
type ParamsCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*ParamsCommand)(nil)

func NewParamsCommand() (*ParamsCommand, error) {
	glazedLayer, err := glazed_settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, err
	}
	return &ParamsCommand{
		CommandDescription: cmds.NewCommandDescription(
			"params",
			cmds.WithShort("Show or change the generation parameters of a chat"),
			cmds.WithFlags(
				parameters.NewParameterDefinition(
					"chat",
					parameters.ParameterTypeString,
					parameters.WithHelp("Chat to work on (default: the most recently modified one)"),
					parameters.WithDefault(""),
				),
				parameters.NewParameterDefinition(
					"model",
					parameters.ParameterTypeString,
					parameters.WithHelp("Model"),
				),
				parameters.NewParameterDefinition(
					"temperature",
					parameters.ParameterTypeFloat,
					parameters.WithHelp("Sampling temperature (0-1)"),
				),
				parameters.NewParameterDefinition(
					"top-p",
					parameters.ParameterTypeFloat,
					parameters.WithHelp("Nucleus sampling mass (0-1)"),
				),
				parameters.NewParameterDefinition(
					"max-tokens",
					parameters.ParameterTypeInteger,
					parameters.WithHelp("Tokens reserved for the reply (1-2048)"),
				),
				parameters.NewParameterDefinition(
					"context-window",
					parameters.ParameterTypeInteger,
					parameters.WithHelp("Context window of the model, the budget is this minus max-tokens"),
				),
				parameters.NewParameterDefinition(
					"frequency-penalty",
					parameters.ParameterTypeFloat,
					parameters.WithHelp("Frequency penalty (-2 to 2)"),
				),
				parameters.NewParameterDefinition(
					"presence-penalty",
					parameters.ParameterTypeFloat,
					parameters.WithHelp("Presence penalty (-2 to 2)"),
				),
			),
			cmds.WithLayersList(glazedLayer),
		),
	}, nil
}

func (c *ParamsCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedLayers *layers.ParsedLayers,
	gp middlewares.Processor,
) error {
	s := &ParamsSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return err
	}
	return runWithApp(func(app *App) error {
		return updateParams(ctx, app, s, gp)
	})
}

func updateParams(ctx context.Context, app *App, s *ParamsSettings, gp middlewares.Processor) error {
	if s.Chat != "" {
		if err := app.Session.Open(ctx, s.Chat); err != nil {
			return err
		}
	}
	c, err := app.Session.Current(ctx)
	if err != nil {
		return err
	}

	if s.Model != nil {
		if err := app.Session.SetModel(ctx, *s.Model); err != nil {
			return err
		}
	}

	p := c.Params
	changed := false
	for _, f := range []struct {
		value  *float64
		target *float64
	}{
		{s.Temperature, &p.Temperature},
		{s.TopP, &p.TopP},
		{s.FrequencyPenalty, &p.FrequencyPenalty},
		{s.PresencePenalty, &p.PresencePenalty},
	} {
		if f.value != nil {
			*f.target = *f.value
			changed = true
		}
	}
	if s.MaxTokens != nil {
		window := p.ContextWindow()
		p.MaxTokens = *s.MaxTokens
		p.SetContextWindow(window)
		changed = true
	}
	if s.ContextWindow != nil {
		p.SetContextWindow(*s.ContextWindow)
		changed = true
	}
	if changed {
		if err := app.Session.SetParams(ctx, p); err != nil {
			return err
		}
	}

	p = c.Params
	return gp.AddRow(ctx, types.NewRow(
		types.MRP("chat", c.ID()),
		types.MRP("model", c.Model),
		types.MRP("temperature", p.Temperature),
		types.MRP("top_p", p.TopP),
		types.MRP("max_tokens", p.MaxTokens),
		types.MRP("max_context_tokens", p.MaxContextTokens),
		types.MRP("frequency_penalty", p.FrequencyPenalty),
		types.MRP("presence_penalty", p.PresencePenalty),
	))
}
