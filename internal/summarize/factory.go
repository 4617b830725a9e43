package summarize

import (
	"fmt"

	"docwatch/internal/config"
	"docwatch/internal/dw"
)

// NewSummarizerFromConfig creates the summarizer selected by cfg.Type.
func NewSummarizerFromConfig(cfg config.SummarizerConfig, logger dw.Logger) (*Summarizer, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.Type {
	case "openai":
		backend, err = NewOpenAI(OpenAIConfig{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL})
	case "anthropic":
		backend, err = NewAnthropic(AnthropicConfig{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL})
	case "none", "":
		backend = None{}
	default:
		return nil, fmt.Errorf("unsupported summarizer type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return New(backend, cfg.Timeout.Duration, logger), nil
}
