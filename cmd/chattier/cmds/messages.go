package cmds

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func parsePosition(arg string) (int, error) {
	at, err := strconv.Atoi(arg)
	if err != nil {
		return 0, errors.Errorf("invalid position %q", arg)
	}
	return at, nil
}

// printLast prints the last message of the current chat.
func printLast(cmd *cobra.Command, app *App) error {
	c, err := app.Session.Current(cmd.Context())
	if err != nil {
		return err
	}
	path := c.SelectedPath(0)
	_, err = fmt.Fprintln(cmd.OutOrStdout(), path[len(path)-1].Content)
	return err
}

func NewSendCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send [prompt...]",
		Short: "Send a message and print the reply",
		Long: "Send a message and print the reply. Without arguments the prompt is read from stdin; " +
			"an empty prompt only asks for a reply to the current branch.",
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			if err := openChat(cmd, app); err != nil {
				return err
			}
			prompt := strings.Join(args, " ")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return errors.Wrap(err, "could not read prompt")
				}
				prompt = strings.TrimRight(string(data), "\n")
			}
			if err := app.Session.Send(cmd.Context(), prompt); err != nil {
				return err
			}
			return printLast(cmd, app)
		}),
	}
	addChatFlag(cmd)
	return cmd
}

func NewRegenerateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regenerate <position>",
		Short: "Generate a new version of the message at position",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			at, err := parsePosition(args[0])
			if err != nil {
				return err
			}
			if err := openChat(cmd, app); err != nil {
				return err
			}
			if err := app.Session.Regenerate(cmd.Context(), at); err != nil {
				return err
			}
			return printLast(cmd, app)
		}),
	}
	addChatFlag(cmd)
	return cmd
}

func NewEditCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <position> <content...>",
		Short: "Replace the content of a message; position 0 is the system prompt",
		Args:  cobra.MinimumNArgs(2),
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			at, err := parsePosition(args[0])
			if err != nil {
				return err
			}
			if err := openChat(cmd, app); err != nil {
				return err
			}
			return app.Session.Edit(cmd.Context(), at, strings.Join(args[1:], " "))
		}),
	}
	addChatFlag(cmd)
	return cmd
}

func NewDeleteMessageCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete-message <position>",
		Short: "Delete a message together with all its replies",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			at, err := parsePosition(args[0])
			if err != nil {
				return err
			}
			if err := openChat(cmd, app); err != nil {
				return err
			}
			return app.Session.DeleteMessage(cmd.Context(), at)
		}),
	}
	addChatFlag(cmd)
	return cmd
}

func NewSelectVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "select-version <position> <version>",
		Short: "Switch the message at position to another version (1-based)",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			at, err := parsePosition(args[0])
			if err != nil {
				return err
			}
			version, err := strconv.Atoi(args[1])
			if err != nil {
				return errors.Errorf("invalid version %q", args[1])
			}
			if err := openChat(cmd, app); err != nil {
				return err
			}
			return app.Session.SelectVersion(cmd.Context(), at, version-1)
		}),
	}
	addChatFlag(cmd)
	return cmd
}

func NewSystemPromptCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "system-prompt [content...]",
		Short: "Show or replace the system prompt of a chat",
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			if err := openChat(cmd, app); err != nil {
				return err
			}
			name, _ := cmd.Flags().GetString("load")
			switch {
			case name != "":
				if err := app.Session.LoadPrompt(cmd.Context(), name); err != nil {
					return err
				}
			case len(args) > 0:
				if err := app.Session.SetSystemPrompt(cmd.Context(), strings.Join(args, " ")); err != nil {
					return err
				}
			}

			c, err := app.Session.Current(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), c.Root().Content)
			return err
		}),
	}
	addChatFlag(cmd)
	cmd.Flags().String("load", "", "Load the system prompt from the prompt library")
	return cmd
}
