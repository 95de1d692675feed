package settings

import (
	_ "embed"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed "flags/tooltips.yaml"
var tooltipsYAML []byte

// Tooltips returns the help texts shown next to each parameter in the UI.
func Tooltips() (map[string]string, error) {
	ret := map[string]string{}
	if err := yaml.Unmarshal(tooltipsYAML, &ret); err != nil {
		return nil, errors.Wrap(err, "could not parse tooltips")
	}
	return ret, nil
}
