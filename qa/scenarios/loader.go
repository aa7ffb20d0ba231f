// Package scenarios replays YAML-described conversations between a client,
// the telemetry endpoint and a scripted provider.
package scenarios

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Step is either a provider-side action or one inbound request with its
// expected answer.
type Step struct {
	// Expire invalidates every session issued so far.
	Expire bool `yaml:"expire,omitempty"`
	// Request is the raw JSON body posted to the endpoint.
	Request string `yaml:"request,omitempty"`
	Status  int    `yaml:"status,omitempty"`
	// Body is compared as JSON when set.
	Body string `yaml:"body,omitempty"`
	// ErrorContains is matched against the "error" member of a failure body.
	ErrorContains string `yaml:"error_contains,omitempty"`
	// DetailsContains is matched against the "details" member.
	DetailsContains string `yaml:"details_contains,omitempty"`
}

// Expected holds counters checked after the last step.
type Expected struct {
	Logins        int `yaml:"logins"`
	ProviderCalls int `yaml:"provider_calls"`
}

type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	// ProviderToken is the token the provider accepts.
	ProviderToken string `yaml:"provider_token"`
	// Token is the token configured on the proxy. Nil means ProviderToken.
	Token *string `yaml:"token,omitempty"`
	// Services maps a service to its successive answers; the last repeats.
	Services map[string][]string `yaml:"services,omitempty"`
	Steps    []Step              `yaml:"steps"`
	Expected Expected            `yaml:"expected"`
}

// ProxyToken returns the token the proxy is configured with.
func (s Scenario) ProxyToken() string {
	if s.Token != nil {
		return *s.Token
	}
	return s.ProviderToken
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if err := sc.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &sc, nil
}

func (s Scenario) validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.ProviderToken == "" {
		return fmt.Errorf("provider_token is required")
	}
	for i, st := range s.Steps {
		if st.Request != "" && st.Status == 0 {
			return fmt.Errorf("step %d: status is required with a request", i)
		}
		if st.Request == "" && !st.Expire {
			return fmt.Errorf("step %d: nothing to do", i)
		}
	}
	return nil
}
