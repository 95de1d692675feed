package cmds

import (
	"github.com/go-go-golems/chattier/pkg/server"
	"github.com/go-go-golems/chattier/pkg/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat API over HTTP",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			var options []server.Option
			if fs, ok := app.Store.(*storage.FileStore); ok {
				options = append(options, server.WithWatcher(fs))
			}
			return server.New(app.Session, options...).Run(cmd.Context(), viper.GetString("listen"))
		}),
	}
	cmd.Flags().String("listen", "127.0.0.1:8080", "Address to listen on")
	cobra.CheckErr(viper.BindPFlag("listen", cmd.Flags().Lookup("listen")))
	return cmd
}
