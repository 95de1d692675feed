package cmds

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/go-go-golems/chattier/pkg/chat"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/cmds/parameters"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	glazed_settings "github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type ListSettings struct {
	Match string `glazed.parameter:"match"`
}

// ListCommand emits one row per stored chat, most recently modified first.
type ListCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*ListCommand)(nil)

func NewListCommand() (*ListCommand, error) {
	glazedLayer, err := glazed_settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, err
	}
	return &ListCommand{
		CommandDescription: cmds.NewCommandDescription(
			"list",
			cmds.WithShort("List stored chats, most recent first"),
			cmds.WithFlags(
				parameters.NewParameterDefinition(
					"match",
					parameters.ParameterTypeString,
					parameters.WithHelp("Only show chats whose name fuzzily matches"),
					parameters.WithDefault(""),
				),
			),
			cmds.WithLayersList(glazedLayer),
		),
	}, nil
}

func (c *ListCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedLayers *layers.ParsedLayers,
	gp middlewares.Processor,
) error {
	s := &ListSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return err
	}
	return runWithApp(func(app *App) error {
		return listChats(ctx, app, s, gp)
	})
}

func listChats(ctx context.Context, app *App, s *ListSettings, gp middlewares.Processor) error {
	entries, err := app.Library.Filter(ctx, s.Match)
	if err != nil {
		return err
	}
	for _, e := range entries {
		row := types.NewRow(
			types.MRP("id", e.ID),
			types.MRP("name", e.Name),
			types.MRP("modified", e.Modified.Local().Format("2006-01-02 15:04")),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func NewNewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Start a new chat with the default system prompt",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			c, err := app.Session.NewChat(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), c.ID())
			return nil
		}),
	}
}

func NewShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the selected branch of a chat",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			if err := openChat(cmd, app); err != nil {
				return err
			}
			v, err := app.Session.View(cmd.Context())
			if err != nil {
				return err
			}
			return printView(cmd, v)
		}),
	}
	addChatFlag(cmd)
	cmd.Flags().Bool("raw", false, "Print markdown instead of rendering it")
	cmd.Flags().Int("width", 100, "Word wrap width")
	return cmd
}

func printView(cmd *cobra.Command, v *chat.View) error {
	md := viewMarkdown(v)
	raw, _ := cmd.Flags().GetBool("raw")
	if raw {
		_, err := fmt.Fprint(cmd.OutOrStdout(), md)
		return err
	}

	width, _ := cmd.Flags().GetInt("width")
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width))
	if err != nil {
		return errors.Wrap(err, "could not create renderer")
	}
	out, err := r.Render(md)
	if err != nil {
		return errors.Wrap(err, "could not render chat")
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), out)
	return err
}

// viewMarkdown formats a chat as a markdown document. Positions are printed
// so they can be passed to the message commands.
func viewMarkdown(v *chat.View) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", v.Name)
	fmt.Fprintf(&b, "`%s` · %s · context %d/%d tokens\n\n",
		v.ID, v.Model, v.ContextTokens, v.Params.MaxContextTokens)
	fmt.Fprintf(&b, "**[0] system** (%d tokens)\n\n", v.SystemTokens)
	for _, line := range strings.Split(v.SystemPrompt, "\n") {
		fmt.Fprintf(&b, "> %s\n", line)
	}

	for _, m := range v.Messages {
		b.WriteString("\n---\n\n")
		fmt.Fprintf(&b, "**[%d] %s** (%d tokens", m.Position, m.Role, m.Tokens)
		if m.Versions > 1 {
			fmt.Fprintf(&b, ", version %d/%d", m.Version+1, m.Versions)
		}
		if !m.InContext {
			b.WriteString(", outside context")
		}
		b.WriteString(")\n\n")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

func NewRenameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename a chat",
		Args:  cobra.MinimumNArgs(2),
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			return app.Session.RenameChat(cmd.Context(), args[0], strings.Join(args[1:], " "))
		}),
	}
}

func NewDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete chats",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			for _, id := range args {
				if err := app.Session.DeleteChat(cmd.Context(), id); err != nil {
					return err
				}
			}
			return nil
		}),
	}
}

func NewPromptsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "prompts",
		Short: "List the available system prompts",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			names, err := app.Session.Prompts().List()
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		}),
	}
}
