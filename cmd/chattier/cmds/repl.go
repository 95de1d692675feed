package cmds

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tcnksm/go-input"
)

const replHelp = `Type a message to send it. Commands:
  /show               print the current branch
  /regenerate <pos>   generate a new version of a message
  /version <pos> <n>  switch a message to version n
  /delete <pos>       delete a message and its replies
  /new                start a new chat
  /quit               leave`

func NewReplCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Chat interactively",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			if err := openChat(cmd, app); err != nil {
				return err
			}
			c, err := app.Session.Current(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "chat %s (%s)\n%s\n", c.ID(), c.Model, replHelp)

			ui := &input.UI{
				Writer: out,
				Reader: cmd.InOrStdin(),
			}
			for {
				line, err := ui.Ask("\n>", &input.Options{HideOrder: true})
				if err != nil {
					if errors.Is(err, input.ErrInterrupted) || isEOF(err) {
						return nil
					}
					return err
				}
				quit, err := replLine(cmd, app, strings.TrimSpace(line))
				if quit {
					return nil
				}
				if err != nil {
					if cmd.Context().Err() != nil {
						return nil
					}
					log.Debug().Err(err).Msg("repl command failed")
					fmt.Fprintf(out, "error: %v\n", err)
				}
			}
		}),
	}
	addChatFlag(cmd)
	cmd.Flags().Bool("raw", true, "Print markdown instead of rendering it")
	cmd.Flags().Int("width", 100, "Word wrap width")
	return cmd
}

// isEOF reports whether the input was closed. go-input does not wrap the
// error of the underlying reader.
func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || strings.HasSuffix(err.Error(), io.EOF.Error())
}

func replLine(cmd *cobra.Command, app *App, line string) (bool, error) {
	ctx := cmd.Context()
	if !strings.HasPrefix(line, "/") {
		if line == "" {
			return false, nil
		}
		if err := app.Session.Send(ctx, line); err != nil {
			return false, err
		}
		return false, printLast(cmd, app)
	}

	fields := strings.Fields(line)
	ints := make([]int, 0, len(fields)-1)
	for _, f := range fields[1:] {
		n, err := strconv.Atoi(f)
		if err != nil {
			return false, errors.Errorf("invalid number %q", f)
		}
		ints = append(ints, n)
	}
	arg := func(i int) (int, error) {
		if i >= len(ints) {
			return 0, errors.Errorf("%s needs %d arguments", fields[0], i+1)
		}
		return ints[i], nil
	}

	switch fields[0] {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		_, err := fmt.Fprintln(cmd.OutOrStdout(), replHelp)
		return false, err
	case "/show":
		v, err := app.Session.View(ctx)
		if err != nil {
			return false, err
		}
		return false, printView(cmd, v)
	case "/new":
		c, err := app.Session.NewChat(ctx)
		if err != nil {
			return false, err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "chat %s\n", c.ID())
		return false, err
	case "/regenerate":
		at, err := arg(0)
		if err != nil {
			return false, err
		}
		if err := app.Session.Regenerate(ctx, at); err != nil {
			return false, err
		}
		return false, printLast(cmd, app)
	case "/version":
		at, err := arg(0)
		if err != nil {
			return false, err
		}
		version, err := arg(1)
		if err != nil {
			return false, err
		}
		return false, app.Session.SelectVersion(ctx, at, version-1)
	case "/delete":
		at, err := arg(0)
		if err != nil {
			return false, err
		}
		return false, app.Session.DeleteMessage(ctx, at)
	}
	return false, errors.Errorf("unknown command %s, try /help", fields[0])
}
