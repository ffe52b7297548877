package llm

import (
	"fmt"
	"strings"

	"github.com/Veraticus/fundwatch/internal/common"
)

// NewClient creates a provider client from cfg. An empty provider selects Anthropic.
func NewClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: llm.api_key is required for provider %q", common.ErrMissingConfig, providerName(cfg.Provider))
	}

	switch providerName(cfg.Provider) {
	case "anthropic":
		return newAnthropicClient(cfg), nil
	case "openai":
		return newOpenAIClient(cfg), nil
	default:
		return nil, fmt.Errorf("%w: unsupported LLM provider: %s", common.ErrInvalidConfig, cfg.Provider)
	}
}

func providerName(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" {
		return "anthropic"
	}
	return p
}
