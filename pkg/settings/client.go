package settings

import (
	"net/http"
	"time"

	"github.com/go-go-golems/chattier/pkg/helpers"
	"gopkg.in/yaml.v3"
)

type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderOllama Provider = "ollama"
	ProviderClaude Provider = "claude"
	ProviderEcho   Provider = "echo"
)

// ClientSettings configure the connection to the completion provider.
type ClientSettings struct {
	Provider Provider          `yaml:"provider,omitempty"`
	APIKeys  map[string]string `yaml:"api_keys,omitempty"`
	BaseURLs map[string]string `yaml:"base_urls,omitempty"`
	Timeout  *time.Duration    `yaml:"-"`
	// HTTPClient overrides the client used by providers that accept one.
	HTTPClient *http.Client `yaml:"-" json:"-"`
}

func NewClientSettings() *ClientSettings {
	defaultTimeout := 60 * time.Second
	return &ClientSettings{
		Provider: ProviderOpenAI,
		APIKeys:  map[string]string{},
		BaseURLs: map[string]string{},
		Timeout:  &defaultTimeout,
	}
}

// APIKey returns the key configured for the provider, or "".
func (cs *ClientSettings) APIKey(p Provider) string {
	return cs.APIKeys[string(p)]
}

// BaseURL returns the base URL configured for the provider, or "".
func (cs *ClientSettings) BaseURL(p Provider) string {
	return cs.BaseURLs[string(p)]
}

// Client returns the HTTP client to use, honouring Timeout.
func (cs *ClientSettings) Client() *http.Client {
	if cs.HTTPClient != nil {
		return cs.HTTPClient
	}
	return &http.Client{Timeout: helpers.Deref(cs.Timeout, 0)}
}

// UnmarshalYAML reads timeout as a number of seconds.
func (cs *ClientSettings) UnmarshalYAML(value *yaml.Node) error {
	type Alias ClientSettings
	aux := &struct {
		Timeout *int `yaml:"timeout,omitempty"`
		*Alias  `yaml:",inline"`
	}{
		Alias: (*Alias)(cs),
	}
	if err := value.Decode(aux); err != nil {
		return err
	}
	if aux.Timeout != nil {
		t := time.Duration(*aux.Timeout) * time.Second
		cs.Timeout = &t
	}
	return nil
}
