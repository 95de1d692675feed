package cmds

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-go-golems/chattier/pkg/tokens"
	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	glazed_settings "github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tiktoken-go/tokenizer"
)

func NewTokensCommand() (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Commands related to tokens",
	}
	cmd.AddCommand(newCountCommand())

	listCodecs, err := NewListCodecsCommand()
	if err != nil {
		return nil, err
	}
	listModels, err := NewListModelsCommand()
	if err != nil {
		return nil, err
	}
	for _, c := range []cmds.GlazeCommand{listCodecs, listModels} {
		cobraCommand, err := cli.BuildCobraCommandFromGlazeCommand(c)
		if err != nil {
			return nil, err
		}
		cmd.AddCommand(cobraCommand)
	}
	return cmd, nil
}

func newCountCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "count [files...]",
		Short: "Count the tokens of files or stdin for a model or codec",
		RunE: func(cmd *cobra.Command, args []string) error {
			model, _ := cmd.Flags().GetString("model")
			codec, _ := cmd.Flags().GetString("codec")

			var (
				counter tokens.Counter
				err     error
			)
			if codec != "" {
				counter, err = tokens.ForEncoding(codec)
			} else {
				counter, err = tokens.NewResolver(viper.GetString("tokenizer-fallback"))(model)
				codec = tokens.DefaultEncoding(model)
			}
			if err != nil {
				return err
			}

			var input strings.Builder
			if len(args) == 0 {
				if _, err := io.Copy(&input, cmd.InOrStdin()); err != nil {
					return errors.Wrap(err, "could not read stdin")
				}
			}
			for _, f := range args {
				data, err := os.ReadFile(f)
				if err != nil {
					return errors.Wrapf(err, "could not read %s", f)
				}
				input.Write(data)
			}

			count, err := counter.Count(input.String())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Model: %s\n", model)
			fmt.Fprintf(out, "Codec: %s\n", codec)
			fmt.Fprintf(out, "Total tokens: %d\n", count)
			fmt.Fprintf(out, "As a message: %d\n", count+tokens.Overhead)
			return nil
		},
	}
	cmd.Flags().String("model", "gpt-3.5-turbo", "Model used for encoding")
	cmd.Flags().String("codec", "", "Codec used for encoding, overrides the model")
	return cmd
}

// ListCodecsCommand emits the encodings token counts can be computed with.
type ListCodecsCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*ListCodecsCommand)(nil)

func NewListCodecsCommand() (*ListCodecsCommand, error) {
	glazedLayer, err := glazed_settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, err
	}
	return &ListCodecsCommand{
		CommandDescription: cmds.NewCommandDescription(
			"list-codecs",
			cmds.WithShort("List available codecs"),
			cmds.WithLayersList(glazedLayer),
		),
	}, nil
}

func (l *ListCodecsCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	_ *layers.ParsedLayers,
	gp middlewares.Processor,
) error {
	encodings := []string{
		string(tokenizer.R50kBase),
		string(tokenizer.P50kBase),
		string(tokenizer.P50kEdit),
		string(tokenizer.Cl100kBase),
		tokens.EncodingEstimate,
	}

	for _, e := range encodings {
		row := types.NewRow(
			types.MRP("codec_name", e),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// ListModelsCommand emits the models with a known tokenizer and the codec
// used for them.
type ListModelsCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*ListModelsCommand)(nil)

func NewListModelsCommand() (*ListModelsCommand, error) {
	glazedLayer, err := glazed_settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, err
	}
	return &ListModelsCommand{
		CommandDescription: cmds.NewCommandDescription(
			"list-models",
			cmds.WithShort("List models with a known tokenizer"),
			cmds.WithLayersList(glazedLayer),
		),
	}, nil
}

func (c *ListModelsCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	_ *layers.ParsedLayers,
	gp middlewares.Processor,
) error {
	models := []tokenizer.Model{
		tokenizer.GPT4,
		tokenizer.GPT35Turbo,
		tokenizer.TextEmbeddingAda002,
		tokenizer.TextDavinci003,
		tokenizer.TextDavinci002,
		tokenizer.CodeDavinci002,
	}

	for _, m := range models {
		row := types.NewRow(
			types.MRP("model_name", string(m)),
			types.MRP("codec_name", tokens.DefaultEncoding(string(m))),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}
