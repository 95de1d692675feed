package cmds

import (
	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/spf13/cobra"
)

func Register(rootCmd *cobra.Command) error {
	rootCmd.AddCommand(
		NewServeCommand(),
		NewReplCommand(),
		NewNewCommand(),
		NewShowCommand(),
		NewRenameCommand(),
		NewDeleteCommand(),
		NewSendCommand(),
		NewRegenerateCommand(),
		NewEditCommand(),
		NewDeleteMessageCommand(),
		NewSelectVersionCommand(),
		NewSystemPromptCommand(),
		NewPromptsCommand(),
		NewSchemaCommand(),
		NewConfigCommand(),
	)

	listCommand, err := NewListCommand()
	if err != nil {
		return err
	}
	paramsCommand, err := NewParamsCommand()
	if err != nil {
		return err
	}
	for _, c := range []cmds.GlazeCommand{listCommand, paramsCommand} {
		cobraCommand, err := cli.BuildCobraCommandFromGlazeCommand(c)
		if err != nil {
			return err
		}
		rootCmd.AddCommand(cobraCommand)
	}

	tokensCommand, err := NewTokensCommand()
	if err != nil {
		return err
	}
	rootCmd.AddCommand(tokensCommand)
	return nil
}
