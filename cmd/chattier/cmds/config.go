package cmds

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var secretKeys = map[string]bool{
	"openai-api-key": true,
	"claude-api-key": true,
}

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the chattier configuration file",
	}
	cmd.AddCommand(newSetAPIKeyCommand(), newSetCommand(), newPrintConfigCommand())
	return cmd
}

func newSetAPIKeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set-api-key [provider] <key>",
		Short: "Store the API key of a provider (openai by default) in the config file",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider := "openai"
			if len(args) == 2 {
				provider = args[0]
			}
			key := provider + "-api-key"
			if !secretKeys[key] {
				return errors.Errorf("provider %s takes no API key", provider)
			}
			return setConfigValue(cmd, key, args[len(args)-1])
		},
	}
}

func newSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a value in the config file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setConfigValue(cmd, args[0], args[1])
		},
	}
}

func newPrintConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "print",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# config file: %s\n", viper.ConfigFileUsed())

			keys := viper.AllKeys()
			sort.Strings(keys)
			for _, k := range keys {
				v := viper.GetString(k)
				if secretKeys[k] && v != "" {
					v = maskSecret(v)
				}
				fmt.Fprintf(out, "%s: %s\n", k, v)
			}
		},
	}
}

func maskSecret(v string) string {
	if len(v) <= 8 {
		return strings.Repeat("*", len(v))
	}
	return v[:3] + strings.Repeat("*", len(v)-7) + v[len(v)-4:]
}

// configPath returns the config file in use, or ~/.chattier/config.yaml.
func configPath() (string, error) {
	if f := viper.ConfigFileUsed(); f != "" {
		return f, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "could not find home directory")
	}
	return filepath.Join(home, ".chattier", "config.yaml"), nil
}

func setConfigValue(cmd *cobra.Command, key string, value string) error {
	path, err := configPath()
	if err != nil {
		return err
	}

	root, err := readConfig(path)
	if err != nil {
		return err
	}
	setScalar(root, key, value)
	if err := writeConfig(path, root); err != nil {
		return err
	}

	shown := value
	if secretKeys[key] {
		shown = maskSecret(value)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Set %s to %s in %s\n", key, shown, path)
	return err
}

func readConfig(path string) (*yaml.Node, error) {
	root := &yaml.Node{Kind: yaml.DocumentNode}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return root, nil
		}
		return nil, errors.Wrap(err, "error reading config file")
	}
	if err := yaml.Unmarshal(data, root); err != nil {
		return nil, errors.Wrap(err, "error parsing config file")
	}
	return root, nil
}

// setScalar sets key in the top level mapping of root, keeping comments and
// the order of the other keys.
func setScalar(root *yaml.Node, key string, value string) {
	var mapNode *yaml.Node
	if len(root.Content) > 0 && root.Content[0].Kind == yaml.MappingNode {
		mapNode = root.Content[0]
	} else {
		mapNode = &yaml.Node{Kind: yaml.MappingNode}
		root.Content = []*yaml.Node{mapNode}
	}

	valueNode := &yaml.Node{Kind: yaml.ScalarNode, Value: value}
	for i := 0; i < len(mapNode.Content); i += 2 {
		if mapNode.Content[i].Value == key {
			mapNode.Content[i+1] = valueNode
			return
		}
	}
	mapNode.Content = append(mapNode.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: key},
		valueNode,
	)
}

func writeConfig(path string, root *yaml.Node) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrap(err, "error creating config directory")
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return errors.Wrap(err, "error opening config file for writing")
	}
	defer f.Close()

	encoder := yaml.NewEncoder(f)
	encoder.SetIndent(2)
	if err := encoder.Encode(root); err != nil {
		return errors.Wrap(err, "error writing config file")
	}
	return encoder.Close()
}
