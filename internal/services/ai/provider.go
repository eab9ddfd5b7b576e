package ai

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// ErrNoToolCall is returned when the model answered without calling reportSituation.
var ErrNoToolCall = errors.New("model response contained no reportSituation tool call")

// SituationPrompt carries the two pieces of user-specific context sent to the model.
type SituationPrompt struct {
	// UserDetails is the JSON-serialized profile of the analyzed account.
	UserDetails string
	// Posts is the ranked post listing, one block per post.
	Posts string
}

// SituationReport is the structured result of the reportSituation tool call.
type SituationReport struct {
	Situation              string `json:"situation"`
	RepresentativeTweetURL string `json:"representativeTweetUrl"`
}

// SituationProvider infers the "situation" a user is monitoring from their posts.
type SituationProvider interface {
	ReportSituation(ctx context.Context, prompt SituationPrompt) (*SituationReport, error)
}

// ProviderOptions configures a provider created through the registry.
type ProviderOptions struct {
	APIKey    string
	BaseURL   string
	Model     string
	Logger    *zap.Logger
	DebugMode bool
}

// ProviderFactory creates an AI provider from options
type ProviderFactory func(opts ProviderOptions) (SituationProvider, error)

// ProviderRegistry stores available AI providers
type ProviderRegistry struct {
	providers map[string]ProviderFactory
}

// NewProviderRegistry creates a new provider registry
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[string]ProviderFactory),
	}
}

// Register registers a provider factory
func (r *ProviderRegistry) Register(name string, factory ProviderFactory) {
	r.providers[name] = factory
}

// GetProvider gets a provider by name
func (r *ProviderRegistry) GetProvider(name string, opts ProviderOptions) (SituationProvider, error) {
	factory, ok := r.providers[name]
	if !ok {
		return nil, &ErrProviderNotFound{Name: name}
	}
	return factory(opts)
}

// DefaultRegistry returns a registry with every built-in provider registered.
func DefaultRegistry() *ProviderRegistry {
	r := NewProviderRegistry()
	r.Register("openai", func(opts ProviderOptions) (SituationProvider, error) {
		if opts.APIKey == "" {
			return nil, errors.New("OPENAI_API_KEY is required for the openai provider")
		}
		return NewOpenAIProviderWithLogger(opts.APIKey, opts.BaseURL, opts.Model, opts.Logger, opts.DebugMode), nil
	})
	return r
}

// ErrProviderNotFound is returned when a provider is not found
type ErrProviderNotFound struct {
	Name string
}

func (e *ErrProviderNotFound) Error() string {
	return "AI provider not found: " + e.Name
}
