// Package llm builds the configured remote classifier backend.
package llm

import (
	"fmt"

	"github.com/linnemanlabs/fbtriage/internal/cfg"
	"github.com/linnemanlabs/fbtriage/internal/llm/azure"
	"github.com/linnemanlabs/fbtriage/internal/llm/claude"
	"github.com/linnemanlabs/fbtriage/internal/triage"
)

// New returns the Provider selected by c.Provider. Missing credentials for
// the selected backend yield an error wrapping triage.ErrNotConnected; callers
// treat that as "run baseline only" rather than a startup failure.
func New(c cfg.LLM) (triage.Provider, error) {
	switch c.Provider {
	case cfg.ProviderAzure:
		p, err := azure.New(azure.Config{
			Endpoint:   c.AzureEndpoint,
			APIKey:     c.AzureAPIKey,
			Deployment: c.AzureDeployment,
			APIVersion: c.AzureAPIVersion,
		}, nil)
		if err != nil {
			return nil, err
		}
		return p, nil
	case cfg.ProviderClaude:
		p, err := claude.New(c.ClaudeAPIKey, c.ClaudeModel)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", c.Provider)
	}
}
